package application

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/events"

	log "github.com/sirupsen/logrus"
)

// Tick outcomes reported in TickCompletedEvent
const (
	TickOutcomeCompleted = "completed"
	TickOutcomeAdvanced  = "advanced"
	TickOutcomeSkipped   = "skipped"
	TickOutcomeFailed    = "failed"
)

// TickFunc performs one full epoch tick
type TickFunc func(ctx context.Context) (*interfaces.TickResult, error)

// EpochTicker guarantees at most one epoch tick runs at a time. A tick
// requested while another is running is skipped, not queued.
type EpochTicker struct {
	running   atomic.Bool
	tick      TickFunc
	publisher interfaces.EventPublisher
	now       func() time.Time
}

// NewEpochTicker creates a ticker around tick. publisher may be nil.
func NewEpochTicker(tick TickFunc, publisher interfaces.EventPublisher, now func() time.Time) *EpochTicker {
	if now == nil {
		now = time.Now
	}
	return &EpochTicker{
		tick:      tick,
		publisher: publisher,
		now:       now,
	}
}

// Running reports whether a tick is in flight
func (t *EpochTicker) Running() bool {
	return t.running.Load()
}

// Tick runs one tick, or returns entities.ErrTickInProgress when one is
// already running.
func (t *EpochTicker) Tick(ctx context.Context) (*interfaces.TickResult, error) {
	if !t.running.CompareAndSwap(false, true) {
		log.Warn("Epoch tick already in progress, skipping")
		t.publish(events.TickCompletedEvent{Outcome: TickOutcomeSkipped})
		return nil, entities.ErrTickInProgress
	}
	defer t.running.Store(false)

	started := t.now()
	result, err := t.tick(ctx)
	duration := t.now().Sub(started)

	if err != nil {
		log.WithFields(log.Fields{
			"duration": duration,
			"error":    err,
		}).Error("Epoch tick failed")
		t.publish(events.TickCompletedEvent{Outcome: TickOutcomeFailed, Duration: duration})
		return nil, err
	}

	outcome := TickOutcomeCompleted
	if result.Advanced() {
		outcome = TickOutcomeAdvanced
	}

	log.WithFields(log.Fields{
		"epoch":    result.EpochNumber,
		"phase":    result.Phase,
		"outcome":  outcome,
		"duration": duration,
	}).Debug("Epoch tick finished")

	t.publish(events.TickCompletedEvent{Outcome: outcome, Phase: result.Phase, Duration: duration})
	return result, nil
}

func (t *EpochTicker) publish(event events.TickCompletedEvent) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.Publish(event); err != nil {
		log.WithError(err).Error("Failed to publish tick completed event")
	}
}
