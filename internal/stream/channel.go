package stream

import (
	"context"
	"errors"
	"sync"
)

// transportBuffer is the only queuing the channel provides. It absorbs
// short bursts between producer and transport; it is not a replay log.
const transportBuffer = 16

var (
	// ErrClosed is returned by Send after the channel has been closed.
	ErrClosed = errors.New("stream channel closed")
	// ErrSubscribed is returned when a second subscriber attaches.
	ErrSubscribed = errors.New("stream channel already has a subscriber")
)

// Channel delivers an ordered sequence of events for one session to exactly
// one subscriber. Events sent before a subscriber attaches are dropped
// permanently. Sends are serialized, so events from concurrent producers
// are delivered in the order they were accepted, without duplication.
type Channel struct {
	sessionID string

	mu     sync.Mutex
	out    chan Event
	closed bool
}

// NewChannel creates a channel for the given session.
func NewChannel(sessionID string) *Channel {
	return &Channel{sessionID: sessionID}
}

// SessionID returns the owning session's identifier.
func (c *Channel) SessionID() string { return c.sessionID }

// Subscribe attaches the single consumer and returns its event stream. The
// returned channel is closed when the stream terminates.
func (c *Channel) Subscribe() (<-chan Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.out != nil {
		return nil, ErrSubscribed
	}
	c.out = make(chan Event, transportBuffer)
	return c.out, nil
}

// Send delivers an event to the subscriber, blocking while the transport
// buffer is full. Without a subscriber the event is dropped. ctx cancels a
// blocked delivery, which the caller treats as a transport failure.
func (c *Channel) Send(ctx context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.out == nil {
		return nil
	}

	select {
	case c.out <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the stream. The subscriber's channel is closed after all
// accepted events have been handed to it; later Sends fail with ErrClosed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.out != nil {
		close(c.out)
	}
}
