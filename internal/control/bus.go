package control

import (
	"sync"

	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
)

// Conn is a live subscriber connection, owned by the transport layer. Send
// must never block: it queues the message and reports false once the
// connection is closed, letting the bus reap it. A slow but open connection
// may drop the message internally and still report true.
type Conn interface {
	Send(v interface{}) bool
}

// Bus maintains the session to subscriber-connection index and fans events
// out to it. Membership has set semantics: re-subscribing and removing an
// absent member are no-ops. Safe for concurrent use.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string]map[Conn]struct{}
	conns map[Conn]map[string]struct{}

	log  *logging.Logger
	mets *metrics.Metrics
}

// BusOption customizes a Bus.
type BusOption func(*Bus)

// WithBusMetrics attaches collectors to the bus.
func WithBusMetrics(m *metrics.Metrics) BusOption {
	return func(b *Bus) { b.mets = m }
}

// NewBus constructs an empty subscription bus.
func NewBus(log *logging.Logger, opts ...BusOption) *Bus {
	if log == nil {
		log = logging.NewDefault("control")
	}
	b := &Bus{
		subs:  make(map[string]map[Conn]struct{}),
		conns: make(map[Conn]map[string]struct{}),
		log:   log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe adds the connection to the session's subscriber set.
func (b *Bus) Subscribe(conn Conn, sessionID string) {
	if conn == nil || sessionID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[Conn]struct{})
		b.subs[sessionID] = set
	}
	if _, exists := set[conn]; exists {
		return
	}
	set[conn] = struct{}{}

	sessions, ok := b.conns[conn]
	if !ok {
		sessions = make(map[string]struct{})
		b.conns[conn] = sessions
	}
	sessions[sessionID] = struct{}{}

	if b.mets != nil {
		b.mets.SubscriberAdded()
	}
}

// Unsubscribe removes the connection from the session's subscriber set.
func (b *Bus) Unsubscribe(conn Conn, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(conn, sessionID)
}

// DropConn removes the connection from every session it subscribed to.
// The transport layer must call this when a connection closes.
func (b *Bus) DropConn(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID := range b.conns[conn] {
		b.removeLocked(conn, sessionID)
	}
}

func (b *Bus) removeLocked(conn Conn, sessionID string) {
	set, ok := b.subs[sessionID]
	if !ok {
		return
	}
	if _, exists := set[conn]; !exists {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(b.subs, sessionID)
	}

	if sessions, ok := b.conns[conn]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(b.conns, conn)
		}
	}

	if b.mets != nil {
		b.mets.SubscriberRemoved()
	}
}

// CloseAll closes every currently subscribed connection that supports
// closing and clears the index. Used during graceful shutdown.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	conns := make([]Conn, 0, len(b.conns))
	var dropped int
	for conn, sessions := range b.conns {
		conns = append(conns, conn)
		dropped += len(sessions)
	}
	b.subs = make(map[string]map[Conn]struct{})
	b.conns = make(map[Conn]map[string]struct{})
	b.mu.Unlock()

	if b.mets != nil {
		for i := 0; i < dropped; i++ {
			b.mets.SubscriberRemoved()
		}
	}

	for _, conn := range conns {
		if closer, ok := conn.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// SubscriberCount reports the current subscriber count for a session.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// PublishCommand sends the command event to every current subscriber of the
// session. No-op when there are none.
func (b *Bus) PublishCommand(sessionID string, intensity float64) {
	b.publish(sessionID, NewCommandEvent(sessionID, intensity))
}

// PublishEnd sends the termination event to every current subscriber of the
// session.
func (b *Bus) PublishEnd(sessionID string) {
	b.publish(sessionID, NewEndedEvent(sessionID))
}

// publish fans an event out to a consistent snapshot of the session's
// subscribers. Sends are best-effort: a closed connection is skipped and
// reaped, and never surfaces an error to the publisher or other subscribers.
// Publishes for one session are serialized by the session record's mutex,
// which preserves per-subscriber event order.
func (b *Bus) publish(sessionID string, event interface{}) {
	b.mu.RLock()
	set := b.subs[sessionID]
	if len(set) == 0 {
		b.mu.RUnlock()
		return
	}
	targets := make([]Conn, 0, len(set))
	for conn := range set {
		targets = append(targets, conn)
	}
	b.mu.RUnlock()

	var dead []Conn
	for _, conn := range targets {
		if !conn.Send(event) {
			dead = append(dead, conn)
		}
	}

	for _, conn := range dead {
		if b.mets != nil {
			b.mets.RecordFrameDropped()
		}
		b.DropConn(conn)
	}
}
