package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agilbank/concierge/pkg/orchestrator"
)

// StreamMessage is one frame of the trace event stream.
type StreamMessage struct {
	Type      string             `json:"type"`
	SessionID string             `json:"sessionId"`
	Event     orchestrator.Event `json:"event"`
	Timestamp int64              `json:"timestamp"`
	Seq       int64              `json:"seq"`
}

// Broadcaster fans trace events out to every connected stream client. It
// implements the orchestrator's event sink.
type Broadcaster struct {
	clients map[*websocket.Conn]struct{}
	mu      sync.Mutex
	writeMu sync.Mutex
	seq     uint64
	logger  zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// Attach registers a connection and holds it open until the peer closes.
func (b *Broadcaster) Attach(conn *websocket.Conn) {
	b.mu.Lock()
	b.clients[conn] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug().Int("clients", count).Msg("Stream client attached")

	// Reads are discarded; the read pump only notices disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.detach(conn)
				return
			}
		}
	}()
}

func (b *Broadcaster) detach(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	count := len(b.clients)
	b.mu.Unlock()

	conn.Close()
	b.logger.Debug().Int("clients", count).Msg("Stream client detached")
}

// Publish sends a trace event to all connected clients.
func (b *Broadcaster) Publish(sessionID string, event orchestrator.Event) {
	msg := StreamMessage{
		Type:      "event",
		SessionID: sessionID,
		Event:     event,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&b.seq, 1)),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("kind", event.Kind).Msg("Failed to marshal stream event")
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	// One writer at a time per connection.
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to write to stream client")
			b.detach(conn)
		}
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.clients = make(map[*websocket.Conn]struct{})
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
