package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/basedgoydev/greed-farm/events"
	"github.com/holiman/uint256"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMessage struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []recordedMessage
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, recordedMessage{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) snapshot() []recordedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedMessage(nil), p.messages...)
}

func TestNATSEventForwarder_Forward(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	forwarder := NewNATSEventForwarder(publisher, "greed-farm")
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	forwarder.now = func() time.Time { return fixed }

	err := forwarder.Forward(events.ClaimCompletedEvent{
		Wallet: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Amount: uint256.NewInt(1500),
		TxRef:  "sig-1",
	})
	require.NoError(t, err)

	messages := publisher.snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, "greed.events.claim_completed", messages[0].subject)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(messages[0].data, &envelope))
	assert.Equal(t, events.EventTypeClaimCompleted, envelope.EventType)
	assert.Equal(t, "greed-farm", envelope.SourceService)
	assert.True(t, fixed.Equal(envelope.Timestamp))
	assert.NotEmpty(t, envelope.EventID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, "sig-1", payload["tx_ref"])
	assert.NotNil(t, payload["amount"])
}

func TestNATSEventForwarder_PublishFailureIsReturned(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{err: errors.New("connection closed")}
	forwarder := NewNATSEventForwarder(publisher, "greed-farm")

	err := forwarder.Forward(events.TickCompletedEvent{Outcome: "skipped"})
	assert.Error(t, err)

	// Handle only logs
	forwarder.Handle(context.Background(), events.TickCompletedEvent{Outcome: "skipped"})
}

func TestNATSEventForwarder_SubscribesToBus(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	bus := events.NewBus()
	NewNATSEventForwarder(publisher, "greed-farm").Subscribe(bus)

	bus.Emit(context.Background(), events.EpochAdvancedEvent{ClosedEpoch: 1, NextEpoch: 2})

	assert.Eventually(t, func() bool {
		messages := publisher.snapshot()
		return len(messages) == 1 && messages[0].subject == "greed.events.epoch_advanced"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNATSClient_PublishBeforeConnect(t *testing.T) {
	t.Parallel()

	client := NewNATSClient([]string{"nats://127.0.0.1:4222"}, "greed-farm")
	assert.Error(t, client.Publish("greed.events.test", []byte("{}")))
	assert.NoError(t, client.Close())
}
