package connection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-chat/internal/devserver"
	"storefront-chat/internal/models"
	"storefront-chat/internal/wire"
)

const socketPath = "/beauty/"

func startServer(t *testing.T) (*devserver.Server, *httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := devserver.New(socketPath)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, "ws" + strings.TrimPrefix(ts.URL, "http") + socketPath
}

func newTestManager(t *testing.T, url string) *Manager {
	t.Helper()
	m := NewManager(Options{
		URL:                  url,
		ReconnectionDelay:    20 * time.Millisecond,
		ReconnectionDelayMax: 50 * time.Millisecond,
		Timeout:              2 * time.Second,
	})
	t.Cleanup(m.Close)
	return m
}

func waitConnected(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, m.IsConnected, 3*time.Second, 10*time.Millisecond)
}

func TestConnectHandshake(t *testing.T) {
	_, _, url := startServer(t)
	m := newTestManager(t, url)

	connected := make(chan wire.Connect, 1)
	m.On(wire.EventConnect, func(data json.RawMessage) {
		var payload wire.Connect
		if err := json.Unmarshal(data, &payload); err == nil {
			connected <- payload
		}
	})

	require.Equal(t, StatusDisconnected, m.Status())
	m.Connect()
	waitConnected(t, m)

	select {
	case payload := <-connected:
		assert.NotEmpty(t, payload.SID)
		assert.Equal(t, payload.SID, m.ConnectionID())
	case <-time.After(3 * time.Second):
		t.Fatal("connect event never dispatched")
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	_, _, url := startServer(t)
	m := newTestManager(t, url)

	err := m.Emit(wire.EventSendMessage, wire.SendMessage{
		RoomID:     "r1",
		SenderID:   "u1",
		SenderName: "Alice",
		SenderRole: models.RoleCustomer,
		Body:       "hello",
	})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestJoinRoundTrip(t *testing.T) {
	_, _, url := startServer(t)
	m := newTestManager(t, url)

	joined := make(chan wire.RoomJoined, 1)
	m.On(wire.EventRoomJoined, func(data json.RawMessage) {
		var payload wire.RoomJoined
		if err := json.Unmarshal(data, &payload); err == nil {
			joined <- payload
		}
	})

	m.Connect()
	waitConnected(t, m)

	require.NoError(t, m.Emit(wire.EventJoinRoom, wire.JoinRoom{
		UserID:   "u1",
		UserName: "Alice",
		UserRole: models.RoleCustomer,
	}))

	select {
	case payload := <-joined:
		assert.NotEmpty(t, payload.RoomID)
		assert.Empty(t, payload.Messages)
	case <-time.After(3 * time.Second):
		t.Fatal("room_joined never arrived")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	srv, _, url := startServer(t)
	m := newTestManager(t, url)

	m.Connect()
	waitConnected(t, m)
	first := m.ConnectionID()
	require.NotEmpty(t, first)

	srv.DropConnections()

	require.Eventually(t, func() bool {
		return m.IsConnected() && m.ConnectionID() != first
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStaleSessionForcesFreshConnect(t *testing.T) {
	srv, _, url := startServer(t)
	m := newTestManager(t, url)

	m.Connect()
	waitConnected(t, m)
	first := m.ConnectionID()
	require.NotEmpty(t, first)

	// The server forgets every session, then the socket drops. The resumed
	// dial is rejected and the manager starts over with a fresh handshake.
	srv.ExpireSessions()
	srv.DropConnections()

	require.Eventually(t, func() bool {
		return m.IsConnected() && m.ConnectionID() != first
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWakeUpCutsRetryDelay(t *testing.T) {
	srv, _, url := startServer(t)

	// A retry delay far beyond the test's patience: only a wake-up can get
	// the manager dialing again.
	m := NewManager(Options{
		URL:               url,
		ReconnectionDelay: time.Hour,
		Timeout:           2 * time.Second,
	})
	t.Cleanup(m.Close)

	m.Connect()
	waitConnected(t, m)

	srv.DropConnections()
	// Once the socket is gone the status reads reconnecting in the same
	// step; there is no window where a dead connection looks live.
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.conn == nil && m.status == StatusReconnecting
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, m.IsConnected())

	// Repeated nudges mirror the host firing visibility changes.
	require.Eventually(t, func() bool {
		m.WakeUp()
		return m.IsConnected()
	}, 3*time.Second, 20*time.Millisecond)
}

func TestCloseDuringDialDiscardsConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	dialed := make(chan struct{})
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		close(dialed)
		<-release
		frame, _ := wire.Encode(wire.EventConnect, wire.Connect{SID: "late"})
		conn.WriteMessage(websocket.TextMessage, frame)
	}))
	t.Cleanup(ts.Close)

	m := NewManager(Options{
		URL:     "ws" + strings.TrimPrefix(ts.URL, "http"),
		Timeout: 2 * time.Second,
	})
	m.Connect()

	// Shut down while the handshake is still in flight, then let the server
	// answer. The late connection must be discarded, not installed.
	<-dialed
	m.Close()
	close(release)

	require.Never(t, m.IsConnected, 300*time.Millisecond, 20*time.Millisecond)
	assert.Empty(t, m.ConnectionID())
	require.ErrorIs(t, m.Emit(wire.EventMarkAsRead, wire.MarkAsRead{
		RoomID:   "r1",
		UserRole: models.RoleCustomer,
	}), ErrNotConnected)
}

func TestCloseStopsEverything(t *testing.T) {
	_, _, url := startServer(t)
	m := newTestManager(t, url)

	m.Connect()
	waitConnected(t, m)

	m.Close()
	assert.False(t, m.IsConnected())
	assert.Empty(t, m.ConnectionID())
	require.ErrorIs(t, m.Emit(wire.EventMarkAsRead, wire.MarkAsRead{
		RoomID:   "r1",
		UserRole: models.RoleCustomer,
	}), ErrNotConnected)

	// Connect after Close stays a no-op.
	m.Connect()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.IsConnected())
}

func TestIgnoresFallbackTransports(t *testing.T) {
	_, _, url := startServer(t)

	// polling is listed first, the way the web client configures it; the
	// manager still connects over websocket.
	m := NewManager(Options{
		URL:                  url,
		Transports:           []string{"polling", "websocket"},
		ReconnectionDelay:    20 * time.Millisecond,
		ReconnectionDelayMax: 50 * time.Millisecond,
		Timeout:              2 * time.Second,
	})
	t.Cleanup(m.Close)

	m.Connect()
	waitConnected(t, m)
}
