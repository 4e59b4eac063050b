// Package admin is the back-office chat adapter: the full room list, one
// focused room receiving live history, and unread badges for the rest.
package admin

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"storefront-chat/internal/connection"
	"storefront-chat/internal/models"
	"storefront-chat/internal/session"
	"storefront-chat/internal/wire"
)

// Conn is the slice of the connection manager the console uses.
type Conn interface {
	Emit(event string, payload any) error
	IsConnected() bool
	On(event string, handler connection.Handler)
}

// Console maintains every room session on the admin side. Only the focused
// room's inbound messages land in visible history; activity elsewhere bumps
// that room's unread badge.
type Console struct {
	conn      Conn
	fetcher   RoomsFetcher
	adminID   string
	adminName string

	mu      sync.RWMutex
	rooms   map[string]*session.Session
	order   []string
	focused string
}

// New builds the console and subscribes it to the connection's room events.
func New(conn Conn, fetcher RoomsFetcher, adminID, adminName string) *Console {
	c := &Console{
		conn:      conn,
		fetcher:   fetcher,
		adminID:   adminID,
		adminName: adminName,
		rooms:     make(map[string]*session.Session),
	}

	conn.On(wire.EventConnect, func(json.RawMessage) {
		if err := c.Announce(); err != nil {
			log.Printf("admin: announce failed: %v", err)
		}
		// Re-join the focused room after a reconnect so live history
		// resumes without user action.
		if focused := c.Focused(); focused != "" {
			if err := c.Focus(focused); err != nil {
				log.Printf("admin: refocus failed: %v", err)
			}
		}
	})

	conn.On(wire.EventNewCustomerMessage, func(data json.RawMessage) {
		var payload wire.NewCustomerMessage
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("admin: bad new_customer_message payload: %v", err)
			return
		}
		c.applyCustomerMessage(payload.RoomID, payload.Message)
	})

	conn.On(wire.EventReceiveMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("admin: bad receive_message payload: %v", err)
			return
		}
		if sess := c.focusedSession(); sess != nil {
			sess.Append(msg)
		}
	})

	conn.On(wire.EventRoomJoined, func(data json.RawMessage) {
		var payload wire.RoomJoined
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("admin: bad room_joined payload: %v", err)
			return
		}
		sess := c.ensureSession(payload.RoomID)
		sess.ApplySnapshot(payload.RoomID, payload.Messages)
		// The snapshot is the server-side read acknowledgement taking
		// effect; the badge resets here, not when mark_as_read is sent.
		sess.ResetUnread(models.RoleAdmin)
	})

	conn.On(wire.EventMessageDeleted, func(data json.RawMessage) {
		var payload wire.MessageDeleted
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("admin: bad message_deleted payload: %v", err)
			return
		}
		if sess := c.focusedSession(); sess != nil {
			sess.Tombstone(payload.MessageID)
		}
	})

	return c
}

// Announce identifies this connection as an admin console so the server
// routes new_customer_message notifications here. No room is joined.
func (c *Console) Announce() error {
	return c.conn.Emit(wire.EventJoinRoom, wire.JoinRoom{
		UserID:   c.adminID,
		UserName: c.adminName,
		UserRole: models.RoleAdmin,
	})
}

// Seed loads the room list from the REST collaborator. On failure the
// console degrades to an empty list and lets live events fill it in.
func (c *Console) Seed(ctx context.Context) {
	rooms, err := c.fetcher.FetchAll(ctx)
	if err != nil {
		log.Printf("admin: failed to fetch chat rooms: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, room := range rooms {
		if room.RoomID == "" {
			continue
		}
		if _, ok := c.rooms[room.RoomID]; ok {
			continue
		}
		c.rooms[room.RoomID] = session.NewFromRoom(c.conn, room)
		c.order = append(c.order, room.RoomID)
	}
}

// Focus selects a room: the console joins it for live history and
// acknowledges it as read. The previous focus, if any, goes back to idle.
func (c *Console) Focus(roomID string) error {
	c.mu.Lock()
	if c.focused != "" && c.focused != roomID {
		if prev, ok := c.rooms[c.focused]; ok {
			prev.Leave()
		}
	}
	c.focused = roomID
	c.mu.Unlock()

	sess := c.ensureSession(roomID)
	if err := sess.Join(c.adminID, roomID, c.adminName, models.RoleAdmin); err != nil {
		return err
	}
	return sess.MarkRead(models.RoleAdmin)
}

// Send posts a reply to the focused room.
func (c *Console) Send(body string) error {
	sess := c.focusedSession()
	if sess == nil {
		return session.ErrNoRoom
	}
	return sess.Send(c.adminID, c.adminName, models.RoleAdmin, body)
}

// Focused returns the focused room id, empty when none.
func (c *Console) Focused() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focused
}

// Rooms returns copies of every room in stable listing order.
func (c *Console) Rooms() []models.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]models.Room, 0, len(c.order))
	for _, id := range c.order {
		if sess, ok := c.rooms[id]; ok {
			rooms = append(rooms, sess.Room())
		}
	}
	return rooms
}

// Room returns a copy of one room and whether it is known.
func (c *Console) Room(roomID string) (models.Room, bool) {
	c.mu.RLock()
	sess, ok := c.rooms[roomID]
	c.mu.RUnlock()
	if !ok {
		return models.Room{}, false
	}
	return sess.Room(), true
}

// Unread returns the admin unread counter for a room.
func (c *Console) Unread(roomID string) int {
	c.mu.RLock()
	sess, ok := c.rooms[roomID]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return sess.Unread(models.RoleAdmin)
}

// applyCustomerMessage records activity in a room the console is not
// focused on: the log still grows (list views show the latest message) but
// only the unread badge signals it. The focused room is left to the
// receive_message path so nothing is appended twice.
func (c *Console) applyCustomerMessage(roomID string, msg models.Message) {
	c.mu.RLock()
	focused := c.focused
	c.mu.RUnlock()
	if roomID == focused {
		return
	}

	sess := c.ensureSession(roomID)
	sess.Append(msg)
	sess.IncrementUnread(models.RoleAdmin)
}

func (c *Console) focusedSession() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.focused == "" {
		return nil
	}
	return c.rooms[c.focused]
}

func (c *Console) ensureSession(roomID string) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.rooms[roomID]; ok {
		return sess
	}
	sess := session.NewFromRoom(c.conn, models.Room{RoomID: roomID, Status: models.RoomOpen})
	c.rooms[roomID] = sess
	c.order = append(c.order, roomID)
	return sess
}
