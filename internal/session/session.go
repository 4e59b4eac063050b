// Package session implements the per-room conversation state machine: join,
// snapshot ingestion, the append-only message log, unread accounting and
// soft deletes. A session is one client's projection of a server-held room;
// it is never shared between adapters.
package session

import (
	"errors"
	"strings"
	"sync"

	"storefront-chat/internal/models"
	"storefront-chat/internal/wire"
)

// State is the room session lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateJoining State = "joining"
	StateActive  State = "active"
)

var (
	// ErrNotConnected is returned when an operation needs the connection
	// and it is down. Nothing is queued; the caller retries after reconnect.
	ErrNotConnected = errors.New("chat connection is not active")
	// ErrEmptyMessage rejects blank message bodies before they reach the wire.
	ErrEmptyMessage = errors.New("message body is empty")
	// ErrNoRoom is returned when sending before a room has been joined.
	ErrNoRoom = errors.New("no room joined")
)

// Emitter is the outbound half of the chat connection a session needs.
// *connection.Manager satisfies it.
type Emitter interface {
	Emit(event string, payload any) error
	IsConnected() bool
}

// Session tracks one room. Inbound mutations arrive via the connection's
// serialized dispatch; outbound operations may come from any goroutine, so
// state is guarded by a mutex.
type Session struct {
	emitter Emitter

	mu    sync.RWMutex
	state State
	room  models.Room
}

// New returns an idle session with no room yet.
func New(emitter Emitter) *Session {
	return &Session{emitter: emitter, state: StateIdle}
}

// NewFromRoom seeds a session from a server room summary, as delivered by
// the admin room-list snapshot.
func NewFromRoom(emitter Emitter, room models.Room) *Session {
	return &Session{emitter: emitter, state: StateIdle, room: room}
}

// Join sends a join request for the session's room. An empty roomID asks
// the server to resolve or create the room; its id arrives with the
// snapshot. Completion is observed via ApplySnapshot.
func (s *Session) Join(userID, roomID, userName string, role models.Role) error {
	if !s.emitter.IsConnected() {
		return ErrNotConnected
	}

	s.mu.Lock()
	s.state = StateJoining
	if roomID != "" {
		s.room.RoomID = roomID
	}
	s.mu.Unlock()

	return s.emitter.Emit(wire.EventJoinRoom, wire.JoinRoom{
		UserID:   userID,
		RoomID:   roomID,
		UserName: userName,
		UserRole: role,
	})
}

// Send posts a message to the room. The local log is not touched here: the
// entry is appended when the server's broadcast echo arrives, so every
// participant sees the same authoritative ordering and timestamps.
func (s *Session) Send(senderID, senderName string, role models.Role, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}
	if !s.emitter.IsConnected() {
		return ErrNotConnected
	}

	s.mu.RLock()
	roomID := s.room.RoomID
	s.mu.RUnlock()
	if roomID == "" {
		return ErrNoRoom
	}

	return s.emitter.Emit(wire.EventSendMessage, wire.SendMessage{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		SenderRole: role,
		Body:       body,
	})
}

// MarkRead acknowledges the room as read for the given role. The local
// counter is not zeroed here; it resets when the next snapshot arrives.
func (s *Session) MarkRead(role models.Role) error {
	if !s.emitter.IsConnected() {
		return ErrNotConnected
	}

	s.mu.RLock()
	roomID := s.room.RoomID
	s.mu.RUnlock()
	if roomID == "" {
		return ErrNoRoom
	}

	return s.emitter.Emit(wire.EventMarkAsRead, wire.MarkAsRead{
		RoomID:   roomID,
		UserRole: role,
	})
}

// Leave returns the session to idle, e.g. when its adapter unmounts. The
// room data is kept; the server owns the room's lifetime.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
}

// ApplySnapshot ingests the room_joined snapshot: the local log is replaced
// wholesale, so a repeated join never duplicates history.
func (s *Session) ApplySnapshot(roomID string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateActive
	s.room.RoomID = roomID
	s.room.Messages = append([]models.Message(nil), messages...)
	if n := len(s.room.Messages); n > 0 {
		last := s.room.Messages[n-1]
		s.room.LastMessage = last.Body
		s.room.LastMessageTime = last.Timestamp
	}
}

// Append adds an inbound message at the end of the log. Messages are
// ordered strictly by arrival; no reordering or insertion happens here.
func (s *Session) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room.Messages = append(s.room.Messages, msg)
	s.room.LastMessage = msg.Body
	s.room.LastMessageTime = msg.Timestamp
}

// Tombstone soft-deletes the message with the given id. The entry keeps its
// position; only its rendered body changes. Reports whether a message was
// found.
func (s *Session) Tombstone(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.room.Messages {
		if s.room.Messages[i].ID == messageID {
			s.room.Messages[i].IsDeleted = true
			return true
		}
	}
	return false
}

// IncrementUnread bumps the unread counter for a role by one.
func (s *Session) IncrementUnread(role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == models.RoleAdmin {
		s.room.Unread.Admin++
		return
	}
	s.room.Unread.Customer++
}

// ResetUnread zeroes the unread counter for a role.
func (s *Session) ResetUnread(role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == models.RoleAdmin {
		s.room.Unread.Admin = 0
		return
	}
	s.room.Unread.Customer = 0
}

// State returns the session lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RoomID returns the room id, empty until the first snapshot (or seed).
func (s *Session) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room.RoomID
}

// Room returns a copy of the room, message log included.
func (s *Session) Room() models.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room := s.room
	room.Messages = append([]models.Message(nil), s.room.Messages...)
	return room
}

// Messages returns a copy of the message log.
func (s *Session) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.room.Messages...)
}

// Unread returns the unread counter for a role.
func (s *Session) Unread(role models.Role) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room.Unread.For(role)
}
