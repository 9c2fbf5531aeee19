package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const EventVersion = "polbridge.event.v1"

// Event is one step of a deposit or withdrawal as seen by downstream consumers.
type Event struct {
	Version string    `json:"version"`
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	State   string    `json:"state,omitempty"`
	Chain   string    `json:"chain,omitempty"`
	TxHash  string    `json:"tx_hash,omitempty"`
	BurnTx  string    `json:"burn_tx,omitempty"`
	Amount  string    `json:"amount,omitempty"`
	Proof   string    `json:"proof,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Emitter stamps events with an id and time and publishes them as JSON.
type Emitter struct {
	producer Producer
	topic    string

	Now   func() time.Time
	NewID func() string
}

func NewEmitter(p Producer, topic string) (*Emitter, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil producer", ErrInvalidConfig)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: missing topic", ErrInvalidConfig)
	}
	return &Emitter{producer: p, topic: topic, Now: time.Now, NewID: uuid.NewString}, nil
}

// Emit publishes ev keyed by its burn hash, or tx hash when there is no burn.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if strings.TrimSpace(ev.Kind) == "" {
		return fmt.Errorf("%w: missing event kind", ErrInvalidConfig)
	}
	ev.Version = EventVersion
	if ev.ID == "" {
		ev.ID = e.NewID()
	}
	if ev.At.IsZero() {
		ev.At = e.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: marshal event: %w", err)
	}
	key := ev.BurnTx
	if key == "" {
		key = ev.TxHash
	}
	if err := e.producer.Publish(ctx, e.topic, []byte(key), payload); err != nil {
		return fmt.Errorf("queue: publish %s: %w", ev.Kind, err)
	}
	return nil
}
