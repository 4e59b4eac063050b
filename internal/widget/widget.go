// Package widget is the customer-facing chat adapter: at most one room,
// a message composer, and the floating-button unread counter.
package widget

import (
	"encoding/json"
	"log"
	"sync"

	"storefront-chat/internal/connection"
	"storefront-chat/internal/models"
	"storefront-chat/internal/session"
	"storefront-chat/internal/wire"
)

// Conn is the slice of the connection manager the widget uses.
type Conn interface {
	Emit(event string, payload any) error
	IsConnected() bool
	On(event string, handler connection.Handler)
}

// Widget owns the customer's single room session and view state.
type Widget struct {
	userID   string
	userName string
	session  *session.Session

	mu     sync.Mutex
	open   bool
	unread int
	draft  string
}

// New builds the widget and subscribes it to the connection's room events.
func New(conn Conn, userID, userName string) *Widget {
	w := &Widget{
		userID:   userID,
		userName: userName,
		session:  session.New(conn),
	}

	conn.On(wire.EventConnect, func(json.RawMessage) {
		// Join on every (re)connect; the previous room id, if any, rides
		// along so history is restored.
		if err := w.Join(); err != nil {
			log.Printf("widget: join failed: %v", err)
		}
	})

	conn.On(wire.EventRoomJoined, func(data json.RawMessage) {
		var payload wire.RoomJoined
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("widget: bad room_joined payload: %v", err)
			return
		}
		w.session.ApplySnapshot(payload.RoomID, payload.Messages)
	})

	conn.On(wire.EventReceiveMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("widget: bad receive_message payload: %v", err)
			return
		}
		w.session.Append(msg)
		w.mu.Lock()
		if !w.open && msg.SenderRole == models.RoleAdmin {
			w.unread++
		}
		w.mu.Unlock()
	})

	conn.On(wire.EventMessageDeleted, func(data json.RawMessage) {
		var payload wire.MessageDeleted
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("widget: bad message_deleted payload: %v", err)
			return
		}
		w.session.Tombstone(payload.MessageID)
	})

	return w
}

// Join requests the customer's room. On first contact the room id is empty
// and the server resolves it; on rejoin the previous id is reused.
func (w *Widget) Join() error {
	return w.session.Join(w.userID, w.session.RoomID(), w.userName, models.RoleCustomer)
}

// Open shows the chat window and clears the floating-button counter.
func (w *Widget) Open() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = true
	w.unread = 0
}

// Close hides the chat window; inbound admin messages start counting again.
func (w *Widget) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = false
}

// Compose replaces the composer draft.
func (w *Widget) Compose(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = text
}

// Send emits the current draft and clears the composer on success. While
// disconnected nothing reaches the wire and the draft is kept.
func (w *Widget) Send() error {
	w.mu.Lock()
	draft := w.draft
	w.mu.Unlock()

	if err := w.session.Send(w.userID, w.userName, models.RoleCustomer, draft); err != nil {
		return err
	}

	w.mu.Lock()
	w.draft = ""
	w.mu.Unlock()
	return nil
}

// Draft returns the composer's current text.
func (w *Widget) Draft() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// IsOpen reports whether the chat window is shown.
func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Unread returns the floating-button counter.
func (w *Widget) Unread() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unread
}

// Room returns a copy of the widget's room.
func (w *Widget) Room() models.Room {
	return w.session.Room()
}

// Messages returns a copy of the room's log.
func (w *Widget) Messages() []models.Message {
	return w.session.Messages()
}

// State returns the underlying session state.
func (w *Widget) State() session.State {
	return w.session.State()
}
