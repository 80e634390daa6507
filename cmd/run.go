package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/application"
	"github.com/basedgoydev/greed-farm/config"
	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/services"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/basedgoydev/greed-farm/infrastructure"
	"github.com/basedgoydev/greed-farm/infrastructure/chain"
	"github.com/basedgoydev/greed-farm/infrastructure/metrics"
	"github.com/basedgoydev/greed-farm/repository"
	"github.com/basedgoydev/greed-farm/repository/memory"
	"github.com/prometheus/client_golang/prometheus"

	log "github.com/sirupsen/logrus"
)

// runtime holds the wired components shared by every command
type runtime struct {
	cfg      *config.Config
	bus      *events.Bus
	protocol *application.Protocol
	registry *prometheus.Registry
	closers  []func()
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		bus:      events.NewBus(),
		registry: prometheus.NewRegistry(),
	}

	uowFactory, err := rt.openStorage(ctx)
	if err != nil {
		rt.close()
		return nil, err
	}

	metrics.New(rt.registry).Subscribe(rt.bus)

	adapter := rt.chainAdapter()

	protocol, err := buildProtocol(cfg, uowFactory, adapter, rt.bus)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.protocol = protocol

	return rt, nil
}

func (rt *runtime) openStorage(ctx context.Context) (interfaces.UnitOfWorkFactory, error) {
	switch rt.cfg.StorageBackend {
	case config.StorageMemory:
		log.Warn("Using in-memory storage, state is lost on exit")
		return memory.NewStore(rt.bus), nil
	default:
		databaseURL := rt.cfg.GetDatabaseURL()

		log.Info("Running database migrations...")
		if err := database.RunMigrationsWithURL(databaseURL); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		log.Info("Connecting to database...")
		db, err := database.NewConnection(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			log.Info("Closing database connection...")
			db.Close()
		})
		log.Info("Database connection established successfully")

		return repository.NewUnitOfWorkFactory(db, rt.bus), nil
	}
}

func (rt *runtime) chainAdapter() interfaces.ChainAdapter {
	if rt.cfg.Environment == "production" && rt.cfg.StorageBackend != config.StorageMemory {
		log.Warn("No chain adapter configured, external reads and transfers will fail")
		return chain.Unavailable{}
	}
	log.WithField("environment", rt.cfg.Environment).Info("Using simulated chain adapter")
	return chain.NewSimulated()
}

func buildProtocol(
	cfg *config.Config,
	uowFactory interfaces.UnitOfWorkFactory,
	adapter interfaces.ChainAdapter,
	publisher interfaces.EventPublisher,
) (*application.Protocol, error) {
	supply, err := cfg.TotalSupplyAmount()
	if err != nil {
		return nil, err
	}
	minDistributable, err := cfg.MinDistributableAmount()
	if err != nil {
		return nil, err
	}

	steps := make([]services.QuorumStep, 0, len(cfg.QuorumSchedule))
	for _, step := range cfg.QuorumSchedule {
		steps = append(steps, services.QuorumStep{FromEpoch: step.FromEpoch, Percent: step.Percent})
	}
	schedule, err := services.NewQuorumSchedule(supply, steps)
	if err != nil {
		return nil, fmt.Errorf("failed to build quorum schedule: %w", err)
	}

	settings := application.Settings{
		Epoch: services.EpochSettings{
			SharedPoolPercent: cfg.SharedPoolPercent,
			MinDistributable:  minDistributable,
			CountdownDuration: cfg.EpochDuration,
			PoolPolicy:        services.PoolPolicy(cfg.PoolPolicy),
		},
		Wager: services.WagerSettings{
			CommitmentTTL:       cfg.CommitmentTTL,
			MinClientSeedLength: cfg.MinClientSeedLength,
		},
		StakeWarmup:           cfg.StakeWarmup,
		ChainTimeout:          cfg.ChainTimeout,
		VerificationCacheSize: cfg.VerificationCacheSize,
	}

	return application.NewProtocol(uowFactory, adapter, publisher, schedule, settings)
}

// startNATS connects the event forwarder when servers are configured
func (rt *runtime) startNATS(ctx context.Context) error {
	if len(rt.cfg.NATSServers) == 0 {
		return nil
	}

	client := infrastructure.NewNATSClient(rt.cfg.NATSServers, programName)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	infrastructure.NewNATSEventForwarder(client, programName).Subscribe(rt.bus)
	rt.closers = append(rt.closers, func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	})
	log.WithField("servers", rt.cfg.NATSServers).Info("Forwarding events to NATS")
	return nil
}

// close releases resources in reverse order of acquisition
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// Run wires every component and blocks until ctx is done
func Run(ctx context.Context, cfg *config.Config) error {
	log.WithField("environment", cfg.Environment).Info("Starting greed farm...")

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	state, err := rt.protocol.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to bootstrap protocol: %w", err)
	}
	log.WithField("epoch", state.CurrentEpoch).Info("Protocol ready")

	stopMetrics := func(context.Context) {}
	if cfg.MetricsAddr != "" {
		stopMetrics = metrics.Serve(cfg.MetricsAddr, rt.registry)
		log.WithField("addr", cfg.MetricsAddr).Info("Metrics endpoint listening")
	}

	if err := rt.startNATS(ctx); err != nil {
		return err
	}

	scheduler, err := application.NewScheduler(rt.protocol, application.Schedules{
		Tick:      cfg.TickSchedule,
		Reconcile: cfg.ReconcileSchedule,
		Cleanup:   cfg.CleanupSchedule,
	})
	if err != nil {
		return err
	}
	stopScheduler := scheduler.Start(ctx)

	log.Infof("Greed farm is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	log.Info("Shutting down greed farm...")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	stopMetrics(shutdownCtx)

	log.Info("Shutdown completed")
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return cfg.ShutdownTimeout
}
