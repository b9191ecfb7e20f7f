// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"sync"
)

// RecorderConn is a fake subscriber connection that records every message
// sent to it. It satisfies the control.Conn interface without any network
// socket behind it.
type RecorderConn struct {
	mu     sync.Mutex
	closed bool
	events []interface{}
}

// NewRecorderConn creates an open recorder connection.
func NewRecorderConn() *RecorderConn {
	return &RecorderConn{}
}

// Send records the message. It reports false once the connection is closed.
func (c *RecorderConn) Send(v interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, v)
	return true
}

// Close marks the connection closed; subsequent sends are refused.
func (c *RecorderConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Events returns a copy of everything sent so far.
func (c *RecorderConn) Events() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.events))
	copy(out, c.events)
	return out
}

// Len reports how many messages were recorded.
func (c *RecorderConn) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Last returns the most recent message, or nil.
func (c *RecorderConn) Last() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}
