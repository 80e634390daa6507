package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/events"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SubjectPrefix is prepended to the event type to form the subject
const SubjectPrefix = "greed.events."

// MessagePublisher sends raw messages. NATSClient implements it.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// EventEnvelope is the JSON document published for each committed event
type EventEnvelope struct {
	EventID       string           `json:"event_id"`
	EventType     events.EventType `json:"event_type"`
	Timestamp     time.Time        `json:"timestamp"`
	SourceService string           `json:"source_service"`
	Payload       json.RawMessage  `json:"payload"`
}

// NATSEventForwarder republishes bus events to NATS
type NATSEventForwarder struct {
	publisher MessagePublisher
	source    string
	now       func() time.Time
}

// NewNATSEventForwarder creates a forwarder
func NewNATSEventForwarder(publisher MessagePublisher, source string) *NATSEventForwarder {
	return &NATSEventForwarder{
		publisher: publisher,
		source:    source,
		now:       time.Now,
	}
}

// SubjectFor maps an event to its subject
func SubjectFor(event events.Event) string {
	return SubjectPrefix + string(event.Type())
}

// Subscribe forwards every event type emitted on bus
func (f *NATSEventForwarder) Subscribe(bus *events.Bus) {
	bus.SubscribeAll(f.Handle)
}

// Handle publishes one event. Failures are logged; forwarding is best effort.
func (f *NATSEventForwarder) Handle(ctx context.Context, event events.Event) {
	if err := f.Forward(event); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to forward event to NATS")
	}
}

// Forward encodes event in an envelope and publishes it
func (f *NATSEventForwarder) Forward(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     event.Type(),
		Timestamp:     f.now().UTC(),
		SourceService: f.source,
		Payload:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := SubjectFor(event)
	if err := f.publisher.Publish(subject, data); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"subject":   subject,
	}).Debug("Forwarded event to NATS")
	return nil
}
