// Package connection owns the single persistent chat connection for the
// lifetime of the application session. All room traffic multiplexes over it;
// no other component may connect or disconnect.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"storefront-chat/internal/observability"
	"storefront-chat/internal/wire"
)

const writeWait = 10 * time.Second

// Status is the connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// Handler consumes a decoded event payload. Handlers run one at a time on
// the dispatch goroutine, in event arrival order.
type Handler func(data json.RawMessage)

// ErrNotConnected is returned by Emit while the connection is down. Send
// surfaces disable themselves on this signal; nothing is queued for retry.
var ErrNotConnected = errors.New("chat connection is not active")

// errStaleSession marks a handshake rejected for a dead session id.
var errStaleSession = errors.New("stale session")

// Options is the connection configuration surface.
type Options struct {
	// URL is the full ws(s) endpoint including the socket path.
	URL                  string
	Transports           []string
	ReconnectionAttempts int
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	Timeout              time.Duration
}

func (o *Options) applyDefaults() {
	if o.ReconnectionAttempts <= 0 {
		o.ReconnectionAttempts = 5
	}
	if o.ReconnectionDelay <= 0 {
		o.ReconnectionDelay = time.Second
	}
	if o.ReconnectionDelayMax <= 0 {
		o.ReconnectionDelayMax = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
}

// Manager maintains exactly one websocket connection and keeps restoring it
// for as long as it is mounted. Connection failures are never fatal; they
// surface only through IsConnected.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer

	mu           sync.RWMutex
	status       Status
	connectionID string
	conn         *websocket.Conn
	handlers     map[string][]Handler
	started      bool
	closed       bool

	writeMu    sync.Mutex
	dispatchCh chan wire.Envelope
	wakeCh     chan struct{}
	done       chan struct{}
}

// NewManager builds a manager from the given options. Only the websocket
// transport is supported; other configured transports are skipped.
func NewManager(opts Options) *Manager {
	opts.applyDefaults()
	for _, transport := range opts.Transports {
		if transport != "websocket" {
			log.Printf("connection: transport %q not supported, skipping", transport)
		}
	}
	return &Manager{
		opts:       opts,
		dialer:     &websocket.Dialer{HandshakeTimeout: opts.Timeout},
		status:     StatusDisconnected,
		handlers:   make(map[string][]Handler),
		dispatchCh: make(chan wire.Envelope, 64),
		wakeCh:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// On registers a handler for a server event. Registration is expected to
// happen before Connect.
func (m *Manager) On(event string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Connect starts the connection loop. Idempotent: a no-op when already
// started or closed. It returns immediately; completion is observed through
// the "connect" event and IsConnected.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.status = StatusConnecting
	m.mu.Unlock()

	go m.dispatchLoop()
	go m.run()
}

// WakeUp nudges the manager when the host returns to the foreground: a
// pending retry delay is cut short so suspended sockets recover promptly.
// A no-op while connected.
func (m *Manager) WakeUp() {
	if m.IsConnected() {
		return
	}
	m.Connect()
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

// Close tears the connection down for good. Called when the owning provider
// unmounts, effectively at application shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.connectionID = ""
	m.status = StatusDisconnected
	m.mu.Unlock()

	close(m.done)
	if conn != nil {
		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		conn.Close()
	}
	observability.SetConnected(false)
}

// Emit sends one event over the wire. It fails fast with ErrNotConnected
// while the connection is down.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.RLock()
	conn, status := m.conn, m.status
	m.mu.RUnlock()
	if status != StatusConnected || conn == nil {
		return ErrNotConnected
	}

	frame, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("connection: write error: %v", err)
		return fmt.Errorf("emit %s: %w", event, err)
	}
	observability.IncEvent("out", event)
	return nil
}

// IsConnected reports whether the connection is currently established.
func (m *Manager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ConnectionID returns the server-assigned session id, empty while
// disconnected.
func (m *Manager) ConnectionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusConnected {
		return ""
	}
	return m.connectionID
}

// resumeSID returns the last session id for dial resumption, even when the
// connection is down.
func (m *Manager) resumeSID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectionID
}

// run is the connection loop: dial, pump, reconnect. It only exits when the
// manager is closed.
func (m *Manager) run() {
	attempts := 0
	for {
		if m.isDone() {
			return
		}

		conn, sid, err := m.dial()
		if err != nil {
			m.setStatus(StatusReconnecting)
			if errors.Is(err, errStaleSession) {
				// Resuming a dead session is pointless; start over with a
				// fresh handshake after a fixed delay.
				log.Printf("connection: %v, forcing fresh connection", err)
				observability.IncConnectError("stale_session")
				attempts = 0
				m.sleep(m.opts.ReconnectionDelay)
				continue
			}

			attempts++
			observability.IncConnectError("dial")
			log.Printf("connection: attempt %d/%d failed: %v", attempts, m.opts.ReconnectionAttempts, err)
			if attempts >= m.opts.ReconnectionAttempts {
				// The counter is informational only; the manager never
				// gives up, it just backs off longer before a new cycle.
				log.Printf("connection: reconnection failed, retrying after backoff")
				attempts = 0
				m.sleep(m.opts.ReconnectionDelayMax)
				continue
			}
			m.sleep(m.opts.ReconnectionDelay)
			continue
		}

		attempts = 0
		if !m.setConnected(conn, sid) {
			return
		}
		m.enqueueConnect(sid)
		m.readLoop(conn)
		m.clearConnection()
		if m.isDone() {
			return
		}
		log.Printf("connection: disconnected, reconnecting")
		observability.IncReconnect()
		m.sleep(m.opts.ReconnectionDelay)
	}
}

// dial opens the websocket and performs the handshake: the server's first
// frame must be "connect" carrying the session id, or "connect_error".
func (m *Manager) dial() (*websocket.Conn, string, error) {
	endpoint := m.opts.URL
	if sid := m.resumeSID(); sid != "" {
		if u, err := url.Parse(endpoint); err == nil {
			q := u.Query()
			q.Set("sid", sid)
			u.RawQuery = q.Encode()
			endpoint = u.String()
		}
	}

	_, span := otel.Tracer("storefront-chat/connection").Start(context.Background(), "socket.handshake")
	defer span.End()

	conn, _, err := m.dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", m.opts.URL, err)
	}

	conn.SetReadDeadline(time.Now().Add(m.opts.Timeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("handshake read: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	env, err := wire.Decode(frame)
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("handshake: %w", err)
	}

	switch env.Event {
	case wire.EventConnect:
		var payload wire.Connect
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("handshake: %w", err)
		}
		return conn, payload.SID, nil
	case wire.EventConnectError:
		var payload wire.ConnectError
		_ = json.Unmarshal(env.Data, &payload)
		conn.Close()
		if isStaleSession(payload.Message) {
			m.dropConnectionID()
			return nil, "", fmt.Errorf("connect error %q: %w", payload.Message, errStaleSession)
		}
		return nil, "", fmt.Errorf("connect error: %s", payload.Message)
	default:
		conn.Close()
		return nil, "", fmt.Errorf("handshake: unexpected event %q", env.Event)
	}
}

// readLoop pumps inbound frames into the dispatch channel until the
// connection drops.
func (m *Manager) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("connection: read error: %v", err)
			}
			return
		}

		env, err := wire.Decode(frame)
		if err != nil {
			log.Printf("connection: dropping frame: %v", err)
			continue
		}
		observability.IncEvent("in", env.Event)
		select {
		case m.dispatchCh <- env:
		case <-m.done:
			return
		}
	}
}

// dispatchLoop is the only goroutine that invokes handlers, so inbound
// events are applied strictly in arrival order.
func (m *Manager) dispatchLoop() {
	for {
		select {
		case env := <-m.dispatchCh:
			m.mu.RLock()
			handlers := append([]Handler(nil), m.handlers[env.Event]...)
			m.mu.RUnlock()
			for _, handler := range handlers {
				handler(env.Data)
			}
		case <-m.done:
			return
		}
	}
}

// enqueueConnect replays the handshake result as a regular event so
// adapters can join their rooms on every (re)connect.
func (m *Manager) enqueueConnect(sid string) {
	data, err := json.Marshal(wire.Connect{SID: sid})
	if err != nil {
		return
	}
	select {
	case m.dispatchCh <- wire.Envelope{Event: wire.EventConnect, Data: data}:
	case <-m.done:
	}
}

// setConnected installs the fresh connection. It reports false when Close
// won the race against an in-flight dial; the connection is discarded and
// the manager stays shut down.
func (m *Manager) setConnected(conn *websocket.Conn, sid string) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return false
	}
	m.conn = conn
	m.connectionID = sid
	m.status = StatusConnected
	m.mu.Unlock()
	observability.SetConnected(true)
	log.Printf("connection: connected sid=%s", sid)
	return true
}

// clearConnection drops the connection and, in one step, leaves the status
// in reconnecting so IsConnected never reports a dead socket as live. The
// sid is kept for resume; it is discarded only on a stale-session rejection.
func (m *Manager) clearConnection() {
	m.mu.Lock()
	m.conn = nil
	if !m.closed {
		m.status = StatusReconnecting
	}
	m.mu.Unlock()
	observability.SetConnected(false)
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Manager) dropConnectionID() {
	m.mu.Lock()
	m.connectionID = ""
	m.mu.Unlock()
}

func (m *Manager) isDone() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// sleep waits for the given delay, a foreground wake-up, or shutdown,
// whichever comes first.
func (m *Manager) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.wakeCh:
	case <-m.done:
	}
}

// isStaleSession matches the server's dead-session handshake rejections.
func isStaleSession(message string) bool {
	return strings.Contains(message, "Session ID unknown") || strings.Contains(message, "400")
}
