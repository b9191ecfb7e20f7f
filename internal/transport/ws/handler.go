// Package ws exposes the subscriber side of the control protocol over
// websocket connections. Clients subscribe to sessions with
// subscribeControl/unsubscribeControl frames and receive controlCommand and
// controlEnded events pushed by the bus.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagewire/platform/internal/config"
	"github.com/stagewire/platform/internal/control"
	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
)

// Inbound frame types.
const (
	msgTypeSubscribe   = "subscribeControl"
	msgTypeUnsubscribe = "unsubscribeControl"
)

// Ack frame types.
const (
	ackTypeSubscribed   = "subscribed"
	ackTypeUnsubscribed = "unsubscribed"
)

// clientMessage is an inbound frame. SessionID is decoded loosely so that a
// non-string value counts as malformed rather than failing the whole frame.
type clientMessage struct {
	Type      string      `json:"type"`
	SessionID interface{} `json:"sessionId"`
}

type ackEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Handler upgrades HTTP requests to subscriber websocket connections.
type Handler struct {
	bus *control.Bus
	log *logging.Logger

	upgrader websocket.Upgrader

	sendBuffer   int
	pingInterval time.Duration
	pongTimeout  time.Duration
	readLimit    int64

	mets *metrics.Metrics
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithHandlerMetrics attaches collectors to the handler's connections.
func WithHandlerMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.mets = m }
}

// NewHandler constructs the websocket subscriber handler.
func NewHandler(bus *control.Bus, log *logging.Logger, cfg config.WSConfig, opts ...HandlerOption) *Handler {
	if log == nil {
		log = logging.NewDefault("ws")
	}
	h := &Handler{
		bus: bus,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS layer in front of us.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sendBuffer:   cfg.SendBufferSize,
		pingInterval: time.Duration(cfg.PingIntervalSec) * time.Second,
		pongTimeout:  time.Duration(cfg.PongTimeoutSec) * time.Second,
		readLimit:    int64(cfg.ReadLimitBytes),
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = 64
	}
	if h.pingInterval <= 0 {
		h.pingInterval = 30 * time.Second
	}
	if h.pongTimeout <= h.pingInterval {
		h.pongTimeout = 2 * h.pingInterval
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
		return
	}

	conn := newConn(socket, h.sendBuffer, h.pingInterval, h.pingInterval/2+time.Second, h.log, h.mets)
	go conn.writePump()
	h.readPump(conn)
}

// readPump processes inbound frames until the connection drops, then removes
// it from every session it subscribed to. Malformed frames are ignored
// silently; the connection stays open.
func (h *Handler) readPump(conn *Conn) {
	defer func() {
		h.bus.DropConn(conn)
		conn.close()
	}()

	if h.readLimit > 0 {
		conn.ws.SetReadLimit(h.readLimit)
	}
	_ = conn.ws.SetReadDeadline(time.Now().Add(h.pongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		sessionID, ok := msg.SessionID.(string)
		if !ok || sessionID == "" {
			continue
		}

		switch msg.Type {
		case msgTypeSubscribe:
			h.bus.Subscribe(conn, sessionID)
			conn.Send(ackEvent{Type: ackTypeSubscribed, SessionID: sessionID})
		case msgTypeUnsubscribe:
			h.bus.Unsubscribe(conn, sessionID)
			conn.Send(ackEvent{Type: ackTypeUnsubscribed, SessionID: sessionID})
		default:
			// Unknown frame type: ignore.
		}
	}
}
