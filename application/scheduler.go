package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/robfig/cron/v3"

	log "github.com/sirupsen/logrus"
)

// Schedules holds the cron specs of the recurring jobs. An empty spec
// disables that job.
type Schedules struct {
	Tick      string
	Reconcile string
	Cleanup   string
}

// Scheduler runs the recurring protocol jobs
type Scheduler struct {
	cron     *cron.Cron
	protocol *Protocol
	ctx      context.Context
}

// NewScheduler registers the jobs of schedules against protocol
func NewScheduler(protocol *Protocol, schedules Schedules) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		protocol: protocol,
		ctx:      context.Background(),
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{"epoch tick", schedules.Tick, s.tick},
		{"stake reconciliation", schedules.Reconcile, s.reconcile},
		{"commitment cleanup", schedules.Cleanup, s.cleanup},
	}

	for _, job := range jobs {
		if job.spec == "" {
			log.WithField("job", job.name).Info("Scheduled job disabled")
			continue
		}
		run := job.run
		if _, err := s.cron.AddFunc(job.spec, func() { run(s.ctx) }); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", job.name, err)
		}
	}

	return s, nil
}

// Start runs the scheduler until ctx is done or the returned stop function
// is called. Jobs run with ctx. Stop waits for running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) func() {
	s.ctx = ctx
	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")

	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			log.Info("Scheduler shutting down (context cancelled)...")
		case <-stopChan:
			log.Info("Scheduler shutting down...")
		}
		<-s.cron.Stop().Done()
		log.Info("Scheduler stopped")
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	result, err := s.protocol.TickEpoch(ctx)
	if err != nil {
		if errors.Is(err, entities.ErrTickInProgress) {
			return
		}
		log.WithError(err).Error("Scheduled epoch tick failed")
		return
	}

	if result.Advanced() {
		log.WithFields(log.Fields{
			"closedEpoch": result.EpochNumber,
			"nextEpoch":   result.NextEpoch,
			"distributed": result.Distribution.TotalDistributed.Dec(),
		}).Info("Scheduled tick advanced epoch")
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	result, err := s.protocol.ReconcileAndGetEligibleStakes(ctx)
	if err != nil {
		log.WithError(err).Error("Scheduled stake reconciliation failed")
		return
	}

	log.WithFields(log.Fields{
		"registryAvailable": result.RegistryAvailable,
		"eligible":          len(result.Eligible),
		"quorumTotal":       result.QuorumTotal.Dec(),
	}).Debug("Scheduled stake reconciliation finished")
}

func (s *Scheduler) cleanup(ctx context.Context) {
	if _, err := s.protocol.CleanupCommitments(ctx); err != nil {
		log.WithError(err).Error("Scheduled commitment cleanup failed")
	}
}
