package application

import (
	"sync"
	"testing"
	"time"

	"github.com/basedgoydev/greed-farm/domain/services"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/basedgoydev/greed-farm/infrastructure/chain"
	"github.com/basedgoydev/greed-farm/repository/memory"
	"github.com/holiman/uint256"

	"github.com/stretchr/testify/require"
)

const (
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB = "HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH"
	walletC = "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ticks() []events.TickCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.TickCompletedEvent
	for _, e := range p.events {
		if tick, ok := e.(events.TickCompletedEvent); ok {
			out = append(out, tick)
		}
	}
	return out
}

// fixedSeeds hands out seeds in order, then fails the test
func fixedSeeds(t *testing.T, seeds ...string) services.SeedSource {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, seeds, "seed source exhausted")
		seed := seeds[0]
		seeds = seeds[1:]
		return seed, nil
	}
}

func testQuorumSteps() []services.QuorumStep {
	return []services.QuorumStep{
		{FromEpoch: 1, Percent: 7},
		{FromEpoch: 11, Percent: 10},
		{FromEpoch: 21, Percent: 15},
		{FromEpoch: 51, Percent: 20},
	}
}

type testEnv struct {
	protocol  *Protocol
	store     *memory.Store
	chain     *chain.Simulated
	clock     *testClock
	publisher *recordingPublisher
}

func testSettings() Settings {
	return Settings{
		Epoch: services.EpochSettings{
			SharedPoolPercent: 50,
			MinDistributable:  uint256.NewInt(1),
			CountdownDuration: time.Hour,
			PoolPolicy:        services.PoolPolicyCumulative,
		},
		Wager: services.WagerSettings{
			CommitmentTTL:       5 * time.Minute,
			MinClientSeedLength: 16,
		},
		StakeWarmup:           24 * time.Hour,
		ChainTimeout:          time.Second,
		VerificationCacheSize: 16,
	}
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	clock := &testClock{now: t0}
	store := memory.NewStore(events.NewBus(), memory.WithClock(clock.Now))
	sim := chain.NewSimulated()
	publisher := &recordingPublisher{}

	schedule, err := services.NewQuorumSchedule(uint256.NewInt(10_000), testQuorumSteps())
	require.NoError(t, err)

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	protocol, err := NewProtocol(store, sim, publisher, schedule, testSettings(), opts...)
	require.NoError(t, err)

	return &testEnv{
		protocol:  protocol,
		store:     store,
		chain:     sim,
		clock:     clock,
		publisher: publisher,
	}
}
