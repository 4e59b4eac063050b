package devserver

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"storefront-chat/internal/models"
	"storefront-chat/internal/observability"
	"storefront-chat/internal/wire"
)

const socketWriteWait = 10 * time.Second

// client is one websocket connection. Identity and room membership are set
// by join_room and mutated only under the server lock.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	sid         string
	ip          string
	connectedAt time.Time

	userID string
	role   models.Role
	roomID string
}

// handleSocket upgrades the connection and performs the handshake. A resumed
// session id the server no longer knows is rejected the way socket.io does,
// with a connect_error the client answers by dialing fresh.
func (s *Server) handleSocket(c *gin.Context) {
	sid := c.Query("sid")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	if sid != "" && !s.knownSID(sid) {
		s.writeFrame(conn, wire.EventConnectError, wire.ConnectError{Message: "Session ID unknown"})
		conn.Close()
		return
	}

	cl := &client{
		conn:        conn,
		sid:         uuid.NewString(),
		ip:          observability.IPFromRequest(c.Request),
		connectedAt: time.Now(),
	}
	s.register(cl)
	s.send(cl, wire.EventConnect, wire.Connect{SID: cl.sid})
	log.Printf("devserver: connection sid=%s ip=%s request_id=%s",
		cl.sid, cl.ip, c.GetString("request_id"))

	go s.readLoop(cl)
}

func (s *Server) readLoop(cl *client) {
	defer func() {
		s.unregister(cl)
		cl.conn.Close()
	}()

	for {
		_, frame, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("devserver: read error sid=%s: %v", cl.sid, err)
			}
			return
		}

		env, err := wire.Decode(frame)
		if err != nil {
			log.Printf("devserver: dropping frame sid=%s: %v", cl.sid, err)
			continue
		}

		switch env.Event {
		case wire.EventJoinRoom:
			s.handleJoin(cl, env.Data)
		case wire.EventSendMessage:
			s.handleSend(cl, env.Data)
		case wire.EventMarkAsRead:
			s.handleMarkRead(cl, env.Data)
		default:
			log.Printf("devserver: unknown event %q sid=%s", env.Event, cl.sid)
		}
	}
}

// handleJoin resolves or lazily creates the room and answers with the
// snapshot, to this connection only.
func (s *Server) handleJoin(cl *client, data json.RawMessage) {
	var payload wire.JoinRoom
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("devserver: bad join_room payload: %v", err)
		return
	}
	if err := wire.Validate(payload); err != nil {
		log.Printf("devserver: %v", err)
		return
	}

	if payload.RoomID == "" && payload.UserRole == models.RoleAdmin {
		// A console announcing itself: remember the identity so activity
		// notifications reach it, but there is no room to snapshot.
		s.mu.Lock()
		if cl.role == "" {
			observability.IncWSActive(string(models.RoleAdmin))
		}
		cl.userID = payload.UserID
		cl.role = models.RoleAdmin
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	var room *models.Room
	if payload.RoomID != "" {
		room = s.rooms[payload.RoomID]
		if room == nil {
			s.mu.Unlock()
			log.Printf("devserver: join for unknown room %s", payload.RoomID)
			return
		}
	} else {
		if id, ok := s.roomsByUser[payload.UserID]; ok {
			room = s.rooms[id]
		}
		if room == nil {
			room = &models.Room{
				RoomID:   uuid.NewString(),
				UserID:   payload.UserID,
				UserName: payload.UserName,
				UserRole: payload.UserRole,
				Messages: []models.Message{},
				Status:   models.RoomOpen,
			}
			s.rooms[room.RoomID] = room
			s.roomOrder = append(s.roomOrder, room.RoomID)
			s.roomsByUser[payload.UserID] = room.RoomID
		}
	}

	if cl.role == "" {
		observability.IncWSActive(string(payload.UserRole))
	}
	cl.userID = payload.UserID
	cl.role = payload.UserRole
	cl.roomID = room.RoomID
	if payload.UserRole == models.RoleAdmin {
		room.AdminID = payload.UserID
		room.AdminName = payload.UserName
	}
	snapshot := append([]models.Message(nil), room.Messages...)
	roomID := room.RoomID
	s.mu.Unlock()

	s.send(cl, wire.EventRoomJoined, wire.RoomJoined{RoomID: roomID, Messages: snapshot})
}

// handleSend stamps the message with a server id and UTC timestamp, appends
// it, and fans it out: receive_message to room members, new_customer_message
// to admin connections elsewhere.
func (s *Server) handleSend(cl *client, data json.RawMessage) {
	var payload wire.SendMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("devserver: bad send_message payload: %v", err)
		return
	}
	if err := wire.Validate(payload); err != nil {
		log.Printf("devserver: %v", err)
		return
	}
	body := strings.TrimSpace(payload.Body)
	if body == "" {
		return
	}

	s.mu.Lock()
	room, ok := s.rooms[payload.RoomID]
	if !ok {
		s.mu.Unlock()
		log.Printf("devserver: send to unknown room %s", payload.RoomID)
		return
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   payload.SenderID,
		SenderName: payload.SenderName,
		SenderRole: payload.SenderRole,
		Body:       body,
		Timestamp:  time.Now().UTC(),
	}
	room.Messages = append(room.Messages, msg)
	room.LastMessage = body
	room.LastMessageTime = msg.Timestamp
	if payload.SenderRole == models.RoleCustomer {
		room.Unread.Admin++
	} else {
		room.Unread.Customer++
	}

	members := s.roomMembersLocked(payload.RoomID)
	var outsideAdmins []*client
	if payload.SenderRole == models.RoleCustomer {
		for other := range s.conns {
			if other.role == models.RoleAdmin && other.roomID != payload.RoomID {
				outsideAdmins = append(outsideAdmins, other)
			}
		}
	}
	s.mu.Unlock()

	for _, member := range members {
		s.send(member, wire.EventReceiveMessage, msg)
	}
	for _, admin := range outsideAdmins {
		s.send(admin, wire.EventNewCustomerMessage, wire.NewCustomerMessage{
			RoomID:  payload.RoomID,
			Message: msg,
		})
	}
}

// handleMarkRead resets the unread counter for a role and marks the other
// side's messages read.
func (s *Server) handleMarkRead(cl *client, data json.RawMessage) {
	var payload wire.MarkAsRead
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("devserver: bad mark_as_read payload: %v", err)
		return
	}
	if err := wire.Validate(payload); err != nil {
		log.Printf("devserver: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[payload.RoomID]
	if !ok {
		return
	}
	if payload.UserRole == models.RoleAdmin {
		room.Unread.Admin = 0
	} else {
		room.Unread.Customer = 0
	}
	for i := range room.Messages {
		if room.Messages[i].SenderRole != payload.UserRole {
			room.Messages[i].IsRead = true
		}
	}
}

func (s *Server) register(cl *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[cl] = true
	s.sids[cl.sid] = true
}

func (s *Server) unregister(cl *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.conns[cl] {
		return
	}
	delete(s.conns, cl)
	// The session id outlives the transport; only ExpireSessions
	// invalidates it.
	if cl.role != "" {
		observability.DecWSActive(string(cl.role))
	}
}

func (s *Server) knownSID(sid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sids[sid]
}

// roomMembersLocked collects the connections joined to a room. Callers must
// hold the server lock.
func (s *Server) roomMembersLocked(roomID string) []*client {
	var members []*client
	for cl := range s.conns {
		if cl.roomID == roomID {
			members = append(members, cl)
		}
	}
	return members
}

// send writes one event to a client. A failed write closes and drops the
// connection, mirroring the broadcast cleanup in the hub this grew out of.
func (s *Server) send(cl *client, event string, payload any) {
	frame, err := wire.Encode(event, payload)
	if err != nil {
		log.Printf("devserver: encode %s: %v", event, err)
		return
	}

	cl.writeMu.Lock()
	cl.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	err = cl.conn.WriteMessage(websocket.TextMessage, frame)
	cl.writeMu.Unlock()
	if err != nil {
		log.Printf("devserver: write error sid=%s: %v", cl.sid, err)
		cl.conn.Close()
		s.unregister(cl)
	}
}

// writeFrame writes directly to a bare connection, used before a client is
// registered (handshake rejections).
func (s *Server) writeFrame(conn *websocket.Conn, event string, payload any) {
	frame, err := wire.Encode(event, payload)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
}
