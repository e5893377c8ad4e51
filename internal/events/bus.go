package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a persisted record of something that happened to an order during
// the payment handoff.
type Event struct {
	ID         uuid.UUID
	Topic      string
	OrderID    int64
	Payload    []byte
	OccurredAt time.Time
}

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertPaymentEvent(ctx context.Context, event Event) (Event, error)
}

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// ErrUnknownTopic is returned by Emit for topics outside the bus's list.
var ErrUnknownTopic = errors.New("events: unknown topic")

// Bus persists events and fans them out to notifiers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	// Topics limits what Emit accepts. Empty means DefaultTopics.
	Topics []string
	Now    func() time.Time
}

// Emit records the event and dispatches it to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic string, orderID int64, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if !knownTopic(b.Topics, topic) {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	if orderID <= 0 {
		return Event{}, errors.New("events: order id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev, err := b.Store.InsertPaymentEvent(ctx, Event{
		ID:         uuid.New(),
		Topic:      topic,
		OrderID:    orderID,
		Payload:    encoded,
		OccurredAt: now().UTC(),
	})
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

// LogNotifier writes every event to a zerolog logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Int64("order_id", event.OrderID).
		RawJSON("payload", event.Payload).
		Msg("payment_event")
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		return validJSON([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}
