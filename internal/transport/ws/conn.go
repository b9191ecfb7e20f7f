package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
)

// Conn wraps one subscriber websocket. All writes funnel through a single
// write pump so event order per connection matches publish order. Send is
// non-blocking: a full buffer drops the frame, a closed connection reports
// false so the bus reaps the subscription.
type Conn struct {
	ws   *websocket.Conn
	send chan interface{}

	done      chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration
	pingInterval time.Duration

	log  *logging.Logger
	mets *metrics.Metrics
}

func newConn(ws *websocket.Conn, sendBuffer int, pingInterval, writeTimeout time.Duration, log *logging.Logger, mets *metrics.Metrics) *Conn {
	return &Conn{
		ws:           ws,
		send:         make(chan interface{}, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		log:          log,
		mets:         mets,
	}
}

// Send queues a message for delivery. It never blocks the caller.
func (c *Conn) Send(v interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- v:
		return true
	case <-c.done:
		return false
	default:
		// Slow consumer: drop the frame but keep the subscription.
		if c.mets != nil {
			c.mets.RecordFrameDropped()
		}
		return true
	}
}

// Close tears the connection down. The read pump then unwinds and removes
// the subscriptions. Used by the bus during shutdown.
func (c *Conn) Close() {
	c.close()
}

// close tears the connection down once; safe to call from both pumps.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. A write failure closes the connection; the read pump
// then unwinds and drops the subscriptions.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(v); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
