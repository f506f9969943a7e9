package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/fieldrec/pkg/recording"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBroadcaster_BroadcastAssignsTypeAndSequence(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{
		ID:            "client-1",
		Conn:          serverConn,
		authenticated: true,
	})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast("server.shutdown", map[string]interface{}{"ok": true})
	broadcaster.Broadcast("server.shutdown", map[string]interface{}{"ok": true})

	var first, second EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&first))
	require.NoError(t, clientConn.ReadJSON(&second))

	assert.Equal(t, "event", first.Type)
	assert.Equal(t, "server.shutdown", first.Event)
	assert.NotZero(t, first.Seq)
	assert.NotZero(t, first.Timestamp)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestEventBroadcaster_NotifyPushesDuration(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Conn: serverConn, authenticated: true})

	var listener recording.Listener = NewEventBroadcaster(registry, zerolog.Nop())
	listener.Notify(recording.EventRecordDuration, recording.DurationEvent{Duration: 1.5})

	var event struct {
		Event string                  `json:"event"`
		Data  recording.DurationEvent `json:"data"`
	}
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&event))

	assert.Equal(t, "recordDuration", event.Event)
	assert.Equal(t, 1.5, event.Data.Duration)
}

func TestEventBroadcaster_SkipsUnauthenticated(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Conn: serverConn})

	NewEventBroadcaster(registry, zerolog.Nop()).Broadcast("recordDuration", recording.DurationEvent{})

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := clientConn.ReadMessage()
	assert.Error(t, err, "unauthenticated clients receive nothing")
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}

func TestClient_WriteTimesOutOnStalledPeer(t *testing.T) {
	serverConn, _, cleanup := websocketConnPair(t)
	defer cleanup()

	client := &Client{ID: "stalled", Conn: serverConn, WriteTimeout: 100 * time.Millisecond}

	// the peer never reads, so a message larger than the socket buffers stalls
	payload := make([]byte, 64<<20)

	done := make(chan error, 1)
	go func() { done <- client.WriteMessage(websocket.BinaryMessage, payload) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("write did not time out")
	}
}
