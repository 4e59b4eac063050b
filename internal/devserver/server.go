// Package devserver is an in-memory stand-in for the storefront chat
// backend. It speaks the full wire contract plus the admin REST listing, so
// the client packages can be exercised locally and in tests without the
// real service.
package devserver

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"storefront-chat/internal/models"
	"storefront-chat/internal/observability"
	"storefront-chat/internal/wire"
)

// Server holds all chat state in memory. Rooms are created lazily on first
// customer contact and never deleted.
type Server struct {
	path     string
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	rooms       map[string]*models.Room
	roomOrder   []string
	roomsByUser map[string]string
	conns       map[*client]bool
	sids        map[string]bool
}

// New builds a server that accepts websocket connections on the given path.
func New(path string) *Server {
	s := &Server{
		path:        path,
		rooms:       make(map[string]*models.Room),
		roomsByUser: make(map[string]string),
		conns:       make(map[*client]bool),
		sids:        make(map[string]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("storefront-chat-devserver"))
	engine.Use(requestIDMiddleware())

	engine.GET(path, s.handleSocket)
	engine.GET("/chats/admin/all", s.listRooms)
	engine.DELETE("/chats/:room_id/messages/:message_id", s.deleteMessage)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	return s
}

// Handler exposes the router, for httptest in package tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the given address until the process exits.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// ExpireSessions invalidates every issued session id. Resumed connections
// are then rejected with a stale-session handshake error.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sids = make(map[string]bool)
}

// DropConnections closes every live websocket. Session ids stay valid, so a
// client resuming with its sid is accepted; combine with ExpireSessions to
// force the stale-session rejection instead.
func (s *Server) DropConnections() {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.conns))
	for cl := range s.conns {
		clients = append(clients, cl)
	}
	s.mu.RUnlock()

	for _, cl := range clients {
		cl.conn.Close()
	}
}

// listRooms returns every room with embedded history, the admin console's
// seed snapshot.
func (s *Server) listRooms(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]models.Room, 0, len(s.roomOrder))
	for _, id := range s.roomOrder {
		if room, ok := s.rooms[id]; ok {
			copied := *room
			copied.Messages = append([]models.Message(nil), room.Messages...)
			rooms = append(rooms, copied)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": rooms})
}

// deleteMessage soft-deletes a message and notifies the room. The entry is
// kept so ordering and indices stay intact.
func (s *Server) deleteMessage(c *gin.Context) {
	roomID := c.Param("room_id")
	messageID := c.Param("message_id")

	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	found := false
	for i := range room.Messages {
		if room.Messages[i].ID == messageID {
			room.Messages[i].IsDeleted = true
			found = true
			break
		}
	}
	members := s.roomMembersLocked(roomID)
	s.mu.Unlock()

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	for _, cl := range members {
		s.send(cl, wire.EventMessageDeleted, wire.MessageDeleted{MessageID: messageID})
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.RequestIDFromRequest(c.Request)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-Id", requestID)
		c.Next()
	}
}
