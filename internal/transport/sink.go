package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// sendQueueSize bounds per-connection outbound buffering. A slow reader
// loses events rather than stalling the coordinator.
const sendQueueSize = 64

// writeTimeout caps a single websocket write.
const writeTimeout = 10 * time.Second

// envelope is the wire framing for both directions: an event name plus an
// event-specific JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// connSink adapts a websocket connection to the coordinator's EventSink.
// Sends are queued and written by a single goroutine so the coordinator
// never blocks on connection I/O.
type connSink struct {
	conn  *websocket.Conn
	queue chan outbound
	done  chan struct{}
	once  sync.Once
}

func newConnSink(conn *websocket.Conn) *connSink {
	s := &connSink{
		conn:  conn,
		queue: make(chan outbound, sendQueueSize),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Send queues an event for delivery. Events to a full queue are dropped.
func (s *connSink) Send(event string, payload any) {
	select {
	case s.queue <- outbound{Event: event, Data: payload}:
	case <-s.done:
	default:
		slog.Debug("Dropping event for slow connection", "event", event)
	}
}

// Close tears down the connection; the read loop then unwinds and the
// coordinator's disconnect reconciliation runs.
func (s *connSink) Close(reason string) {
	s.once.Do(func() {
		close(s.done)
		if err := s.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
			slog.Debug("Failed to close websocket", "error", err)
		}
	})
}

func (s *connSink) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Error("Failed to encode outbound event", "event", msg.Event, "error", err)
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = s.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("Websocket write failed", "event", msg.Event, "error", err)
				return
			}
		}
	}
}
