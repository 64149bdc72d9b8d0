package testutil

import (
	"sync"
)

// Event is one message captured by a RecordingConn.
type Event struct {
	Event   string
	Payload any
}

// RecordingConn is a realtime connection double that records everything
// sent to it. It is safe for concurrent use.
type RecordingConn struct {
	id string

	mu     sync.Mutex
	events []Event
	fail   error
}

// NewRecordingConn returns a connection with the given id.
func NewRecordingConn(id string) *RecordingConn {
	return &RecordingConn{id: id}
}

// ID returns the connection id.
func (c *RecordingConn) ID() string { return c.id }

// Send records the event, or returns the error set by FailWith.
func (c *RecordingConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.events = append(c.events, Event{Event: event, Payload: payload})
	return nil
}

// FailWith makes every later Send return err.
func (c *RecordingConn) FailWith(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

// All returns a copy of every recorded event in send order.
func (c *RecordingConn) All() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Events returns the recorded events named event.
func (c *RecordingConn) Events(event string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards recorded events.
func (c *RecordingConn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
