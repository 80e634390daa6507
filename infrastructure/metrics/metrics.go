// Package metrics exports protocol activity to Prometheus. Counters are
// driven by committed domain events on the bus.
package metrics

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/basedgoydev/greed-farm/events"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"
)

const namespace = "greed"

// Metrics holds every collector
type Metrics struct {
	ticks            *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	currentEpoch     prometheus.Gauge
	epochsAdvanced   prometheus.Counter
	phaseTransitions *prometheus.CounterVec
	distributed      prometheus.Counter
	recipients       prometheus.Counter
	sharedPool       prometheus.Gauge
	wagers           *prometheus.CounterVec
	wagerPayouts     prometheus.Counter
	greedPot         prometheus.Gauge
	commitments      prometheus.Counter
	stakeChanges     *prometheus.CounterVec
	totalStaked      prometheus.Gauge
	quorumStake      prometheus.Gauge
	reconciliations  *prometheus.CounterVec
	claims           prometheus.Counter
	claimedAmount    prometheus.Counter
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epoch_ticks_total",
			Help:      "epoch tick attempts by outcome",
		}, []string{"outcome"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "epoch_tick_duration_seconds",
			Help:      "duration of completed epoch ticks",
			Buckets:   prometheus.DefBuckets,
		}),
		currentEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_epoch",
			Help:      "number of the open epoch",
		}),
		epochsAdvanced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_advanced_total",
			Help:      "epochs closed by a distribution",
		}),
		phaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quorum_phase_transitions_total",
			Help:      "epoch phase transitions by new phase",
		}, []string{"phase"}),
		distributed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distributed_amount_total",
			Help:      "rewards credited, in minor units",
		}),
		recipients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_recipients_total",
			Help:      "reward credits written",
		}),
		sharedPool: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shared_pool_remaining",
			Help:      "shared pool left after the last distribution",
		}),
		wagers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wagers_settled_total",
			Help:      "settled wagers by result",
		}, []string{"result"}),
		wagerPayouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wager_payout_amount_total",
			Help:      "wager winnings paid from the greed pot",
		}),
		greedPot: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "greed_pot",
			Help:      "greed pot after the last settled wager",
		}),
		commitments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wager_commitments_created_total",
			Help:      "commitments issued",
		}),
		stakeChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "custody_stake_changes_total",
			Help:      "custody stake and unstake operations",
		}, []string{"action"}),
		totalStaked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_staked",
			Help:      "sum of active local stakes",
		}),
		quorumStake: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quorum_stake",
			Help:      "stake counted toward quorum at the last reconciliation",
		}),
		reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stake_reconciliations_total",
			Help:      "reconciliation passes by registry availability",
		}, []string{"registry"}),
		claims: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "completed claims",
		}),
		claimedAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_amount_total",
			Help:      "claimable balance paid out",
		}),
	}
}

// Subscribe routes every bus event to Handle
func (m *Metrics) Subscribe(bus *events.Bus) {
	bus.SubscribeAll(m.Handle)
}

// Handle updates the collectors for one event
func (m *Metrics) Handle(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case events.TickCompletedEvent:
		m.ticks.WithLabelValues(e.Outcome).Inc()
		if e.Duration > 0 {
			m.tickDuration.Observe(e.Duration.Seconds())
		}
	case events.EpochAdvancedEvent:
		m.epochsAdvanced.Inc()
		m.currentEpoch.Set(float64(e.NextEpoch))
		m.sharedPool.Set(amountFloat(e.PoolRemaining))
	case events.QuorumStateChangedEvent:
		m.currentEpoch.Set(float64(e.EpochNumber))
		m.phaseTransitions.WithLabelValues(string(e.NewPhase)).Inc()
	case events.DistributionCompletedEvent:
		m.distributed.Add(amountFloat(e.TotalDistributed))
		m.recipients.Add(float64(e.Recipients))
	case events.WagerSettledEvent:
		result := "lost"
		if e.Won {
			result = "won"
		}
		m.wagers.WithLabelValues(result).Inc()
		m.wagerPayouts.Add(amountFloat(e.Payout))
		m.greedPot.Set(amountFloat(e.PotAfter))
	case events.CommitmentCreatedEvent:
		m.commitments.Inc()
	case events.StakeChangedEvent:
		m.stakeChanges.WithLabelValues(string(e.Action)).Inc()
		m.totalStaked.Set(amountFloat(e.TotalStaked))
	case events.StakesReconciledEvent:
		registry := "unavailable"
		if e.RegistryAvailable {
			registry = "available"
		}
		m.reconciliations.WithLabelValues(registry).Inc()
		m.quorumStake.Set(amountFloat(e.QuorumTotal))
	case events.ClaimCompletedEvent:
		m.claims.Inc()
		m.claimedAmount.Add(amountFloat(e.Amount))
	}
}

// amountFloat converts for export; precision loss above 2^53 is acceptable here
func amountFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

// Serve exposes gatherer on addr under /metrics and returns a stop function
func Serve(addr string, gatherer prometheus.Gatherer) func(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("Metrics server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()

	return func(ctx context.Context) {
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Metrics server shutdown incomplete")
		}
		log.Info("Metrics server stopped")
	}
}
