// Package socket owns the client side of the stream connection: one
// persistent WebSocket carrying binary H.264 payloads, forwarded unmodified
// to the decode worker.
package socket

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/periscope-kvm/periscope/internal/stats"
)

// State is the connection lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "errored"
	}
}

// Handler receives connection lifecycle and payload events. OnMessage hands
// over ownership of the byte slice; the manager never touches it again.
type Handler interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(err error)
}

// Manager owns exactly one connection to the stream endpoint for its entire
// lifetime. There is no retry and no reconnection: a socket error is terminal
// for the connection and surfaces only through Handler.OnClose.
type Manager struct {
	log     *slog.Logger
	url     string
	handler Handler
	stats   *stats.Pipeline

	state         atomic.Int32
	bytesReceived atomic.Int64
	readCount     atomic.Int64
}

// NewManager creates a Manager for the given ws:// or wss:// endpoint.
// If log is nil, slog.Default() is used.
func NewManager(url string, handler Handler, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "socket"),
		url:     url,
		handler: handler,
	}
}

// SetStats attaches a pipeline stats collector. Must be called before Run.
func (m *Manager) SetStats(s *stats.Pipeline) {
	m.stats = s
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// BytesReceived returns the total payload bytes read from the socket.
func (m *Manager) BytesReceived() int64 {
	return m.bytesReceived.Load()
}

// ReadCount returns the number of messages read from the socket.
func (m *Manager) ReadCount() int64 {
	return m.readCount.Load()
}

// Run dials the endpoint and reads binary messages until the connection
// closes or the context is cancelled. It always returns nil: socket errors
// are logged and reported via the handler, never propagated.
func (m *Manager) Run(ctx context.Context) error {
	m.state.Store(int32(StateConnecting))
	m.log.Info("connecting", "url", m.url)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		m.state.Store(int32(StateErrored))
		m.log.Error("dial failed", "url", m.url, "error", err)
		m.handler.OnClose(err)
		return nil
	}

	m.state.Store(int32(StateOpen))
	if m.stats != nil {
		m.stats.SocketOpen.Set(1)
	}
	m.log.Info("connected", "url", m.url)
	m.handler.OnOpen()

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.state.Store(int32(StateClosed))
				m.log.Info("connection closed", "error", err)
			} else {
				m.state.Store(int32(StateErrored))
				m.log.Error("read failed", "error", err)
			}
			if m.stats != nil {
				m.stats.SocketOpen.Set(0)
			}
			m.handler.OnClose(err)
			conn.Close()
			return nil
		}

		if msgType != websocket.BinaryMessage {
			m.log.Debug("ignoring non-binary message", "type", msgType, "len", len(data))
			continue
		}

		m.bytesReceived.Add(int64(len(data)))
		m.readCount.Add(1)
		m.handler.OnMessage(data)
	}
}
