package realtime

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/metrics"
)

// Event is the envelope carried by the fan-out bus. Type names the handler
// on the receiving session, keeping the bus payload-agnostic: different
// event kinds can share one group namespace.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// Event types understood by sessions.
const (
	EventChatMessage  = "chat.message"
	EventNotification = "notify.notification"
)

// NewEvent builds an event envelope with a fresh ULID and the payload
// marshalled to JSON.
func NewEvent(eventType, group string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:      ulid.Make().String(),
		Type:    eventType,
		Group:   group,
		Payload: data,
	}, nil
}

// Subscriber receives bus deliveries. Deliver must not block; it reports
// whether the event was accepted (a full buffer drops the delivery).
type Subscriber interface {
	Deliver(ev Event) bool
}

// Bus delivers an event to every current member of a group. Publish is
// fire-and-forget with respect to individual member outcomes: a member that
// cannot keep up simply misses the event. Nothing is queued for absent
// members; durability comes from the store, continuity from history replay.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LocalBus fans out within a single process by walking the directory's
// membership snapshot.
type LocalBus struct {
	dir *Directory
	log zerolog.Logger
}

// NewLocalBus creates a bus delivering only to the local directory.
func NewLocalBus(dir *Directory, log zerolog.Logger) *LocalBus {
	return &LocalBus{dir: dir, log: log}
}

// Publish delivers ev to every current member of ev.Group.
func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	deliverLocal(b.dir, ev)
	return nil
}

// Close is a no-op for the local bus.
func (b *LocalBus) Close() error { return nil }

// deliverLocal walks a membership snapshot and hands the event to each
// subscriber. Drops are counted, never retried.
func deliverLocal(dir *Directory, ev Event) {
	for _, sub := range dir.Members(ev.Group) {
		if !sub.Deliver(ev) {
			metrics.BusDeliveriesDropped.Inc()
		}
	}
}
