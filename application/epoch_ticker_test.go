package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochTicker_SkipsWhileRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})
	publisher := &recordingPublisher{}

	ticker := NewEpochTicker(func(ctx context.Context) (*interfaces.TickResult, error) {
		close(entered)
		<-release
		return &interfaces.TickResult{EpochNumber: 1, Phase: entities.PhaseWaitingForQuorum}, nil
	}, publisher, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = ticker.Tick(context.Background())
	}()

	<-entered
	assert.True(t, ticker.Running())

	for i := 0; i < 3; i++ {
		_, err := ticker.Tick(context.Background())
		assert.ErrorIs(t, err, entities.ErrTickInProgress)
	}

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.False(t, ticker.Running())

	ticks := publisher.ticks()
	require.Len(t, ticks, 4)
	skipped := 0
	for _, tick := range ticks {
		if tick.Outcome == TickOutcomeSkipped {
			skipped++
		}
	}
	assert.Equal(t, 3, skipped)
	assert.Equal(t, TickOutcomeCompleted, ticks[3].Outcome)
}

func TestEpochTicker_ClearsFlagAfterFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	ticker := NewEpochTicker(func(ctx context.Context) (*interfaces.TickResult, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("store down")
		}
		return &interfaces.TickResult{EpochNumber: 1}, nil
	}, nil, nil)

	_, err := ticker.Tick(context.Background())
	assert.EqualError(t, err, "store down")
	assert.False(t, ticker.Running())

	_, err = ticker.Tick(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEpochTicker_ReportsOutcomeAndDuration(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	publisher := &recordingPublisher{}
	ticker := NewEpochTicker(func(ctx context.Context) (*interfaces.TickResult, error) {
		clock.Advance(250 * time.Millisecond)
		return &interfaces.TickResult{
			EpochNumber:  4,
			Phase:        entities.PhaseDistributing,
			Distribution: &interfaces.DistributionResult{EpochNumber: 4},
		}, nil
	}, publisher, clock.Now)

	result, err := ticker.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Advanced())

	ticks := publisher.ticks()
	require.Len(t, ticks, 1)
	assert.Equal(t, TickOutcomeAdvanced, ticks[0].Outcome)
	assert.Equal(t, entities.PhaseDistributing, ticks[0].Phase)
	assert.Equal(t, 250*time.Millisecond, ticks[0].Duration)
}

func TestProtocol_ConcurrentTicksRunOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.protocol.Bootstrap(ctx)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.protocol.TickEpoch(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, entities.ErrTickInProgress)
		}
	}

	state, err := env.protocol.GetGlobalState(ctx)
	require.NoError(t, err)
	assert.False(t, env.protocol.Ticker().Running())
	assert.Len(t, env.publisher.ticks(), callers)
	assert.Equal(t, int64(1), state.CurrentEpoch)
}
