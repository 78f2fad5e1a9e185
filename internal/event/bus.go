// Package event provides the in-process pub/sub bus for cross-cutting
// notifications (workspace file changes, session lifecycle) using watermill.
//
// The bus is an explicitly owned instance passed to its consumers, not a
// process-wide singleton, so tests get per-test isolation.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type names an event on the bus.
type Type string

const (
	SessionStarted Type = "session.started"
	SessionEnded   Type = "session.ended"
	FileChanged    Type = "file.changed"
)

// Event is one bus notification.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// SessionStartedData accompanies SessionStarted.
type SessionStartedData struct {
	SessionID string `json:"sessionId"`
}

// SessionEndedData accompanies SessionEnded.
type SessionEndedData struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
}

// FileChangedData accompanies FileChanged. Paths are workspace-relative.
type FileChangedData struct {
	SessionID string   `json:"sessionId,omitempty"`
	Paths     []string `json:"paths"`
}

// Subscriber receives published events.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus manages pub/sub over watermill's gochannel transport while keeping
// direct subscriber dispatch so payload types survive.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		subscribers: make(map[Type][]subscriberEntry),
	}
}

// Subscribe registers a subscriber for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers[t] = append(b.subscribers[t], subscriberEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[t]
		for i, entry := range subs {
			if entry.id == id {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers a subscriber for every event and returns an
// unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, entry := range b.global {
			if entry.id == id {
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers an event to all matching subscribers, each on its own
// goroutine so a slow subscriber cannot block the publisher.
func (b *Bus) Publish(event Event) {
	for _, sub := range b.collect(event.Type) {
		go sub(event)
	}
	b.publishMessage(event)
}

// PublishSync delivers an event to all matching subscribers in the calling
// goroutine before returning.
func (b *Bus) PublishSync(event Event) {
	for _, sub := range b.collect(event.Type) {
		sub(event)
	}
	b.publishMessage(event)
}

// publishMessage mirrors the event onto the watermill transport for
// Messages consumers. Marshal failures drop the mirror copy only.
func (b *Bus) publishMessage(event Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = b.pubsub.Publish(string(event.Type), message.NewMessage(watermill.NewUUID(), payload))
}

// Messages subscribes to one event type on the message transport. Each
// message payload is the JSON-encoded Event. Consumers must Ack.
func (b *Bus) Messages(ctx context.Context, t Type) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, string(t))
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Close shuts the bus down; subsequent publishes are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
