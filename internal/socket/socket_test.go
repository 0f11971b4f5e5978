package socket

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	closeErr error
	messages [][]byte
}

func (h *recordingHandler) OnOpen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = true
}

func (h *recordingHandler) OnMessage(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, data)
}

func (h *recordingHandler) OnClose(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.closeErr = err
}

func (h *recordingHandler) snapshot() (bool, bool, [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := make([][]byte, len(h.messages))
	copy(msgs, h.messages)
	return h.opened, h.closed, msgs
}

var upgrader = websocket.Upgrader{}

// streamServer upgrades one connection, runs serve against it, then closes.
func streamServer(t *testing.T, serve func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestManagerForwardsBinaryPayloads(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		{0x00, 0x00, 0x00, 0x01, 0x65, 0x88},
		{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A},
	}

	srv := streamServer(t, func(conn *websocket.Conn) {
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	h := &recordingHandler{}
	m := NewManager(wsURL(srv), h, nil)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	opened, closed, msgs := h.snapshot()
	if !opened {
		t.Error("OnOpen not called")
	}
	if !closed {
		t.Error("OnClose not called")
	}
	if len(msgs) != len(payloads) {
		t.Fatalf("messages: got %d, want %d", len(msgs), len(payloads))
	}
	for i, want := range payloads {
		if !bytes.Equal(msgs[i], want) {
			t.Errorf("message %d: got %x, want %x (payload must arrive untouched)", i, msgs[i], want)
		}
	}

	if m.State() != StateClosed {
		t.Errorf("state: got %s, want closed", m.State())
	}
	if m.ReadCount() != int64(len(payloads)) {
		t.Errorf("read count: got %d, want %d", m.ReadCount(), len(payloads))
	}
	if m.BytesReceived() != 12 {
		t.Errorf("bytes received: got %d, want 12", m.BytesReceived())
	}
}

func TestManagerIgnoresTextMessages(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	h := &recordingHandler{}
	m := NewManager(wsURL(srv), h, nil)
	m.Run(context.Background())

	_, _, msgs := h.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("messages: got %d, want 1 (text frames ignored)", len(msgs))
	}
}

func TestManagerDialFailure(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	m := NewManager("ws://127.0.0.1:1/nope", h, nil)

	// No retry: Run returns nil after reporting the failure.
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, closed, _ := h.snapshot()
	if !closed {
		t.Error("OnClose not called on dial failure")
	}
	if m.State() != StateErrored {
		t.Errorf("state: got %s, want errored", m.State())
	}
}

func TestManagerContextCancellation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := streamServer(t, func(conn *websocket.Conn) {
		close(started)
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	h := &recordingHandler{}
	m := NewManager(wsURL(srv), h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	_, closed, _ := h.snapshot()
	if !closed {
		t.Error("OnClose not called after cancellation")
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	want := map[State]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		StateErrored:    "errored",
	}
	for state, name := range want {
		if got := state.String(); got != name {
			t.Errorf("State(%d): got %q, want %q", state, got, name)
		}
	}
}
