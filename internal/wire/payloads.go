package wire

import (
	"storefront-chat/internal/models"
)

// Connect is pushed by the server once the handshake succeeds. The sid is
// the connection id for this session; it becomes invalid on disconnect.
type Connect struct {
	SID string `json:"sid"`
}

// ConnectError reports a failed handshake, e.g. an unknown session id.
type ConnectError struct {
	Message string `json:"message"`
}

// JoinRoom asks the server to join, or lazily create, a room. RoomID is
// empty on a customer's first contact; the server resolves it and returns
// the id in the RoomJoined snapshot.
type JoinRoom struct {
	UserID   string      `json:"userId" validate:"required"`
	RoomID   string      `json:"roomId,omitempty"`
	UserName string      `json:"userName" validate:"required"`
	UserRole models.Role `json:"userRole" validate:"required,oneof=customer admin"`
}

// SendMessage posts a message to a room. The server assigns the id and
// timestamp and re-broadcasts the message to every participant, including
// the sender.
type SendMessage struct {
	RoomID     string      `json:"roomId" validate:"required"`
	SenderID   string      `json:"senderId" validate:"required"`
	SenderName string      `json:"senderName" validate:"required"`
	SenderRole models.Role `json:"senderRole" validate:"required,oneof=customer admin"`
	Body       string      `json:"message" validate:"required"`
}

// MarkAsRead acknowledges that the given role has read the room.
type MarkAsRead struct {
	RoomID   string      `json:"roomId" validate:"required"`
	UserRole models.Role `json:"userRole" validate:"required,oneof=customer admin"`
}

// RoomJoined is the snapshot delivered once per join. The message list
// replaces any local log wholesale.
type RoomJoined struct {
	RoomID   string           `json:"roomId"`
	Messages []models.Message `json:"messages"`
}

// NewCustomerMessage notifies the admin side of activity in a room its
// console is not currently joined to.
type NewCustomerMessage struct {
	RoomID  string         `json:"roomId"`
	Message models.Message `json:"message"`
}

// MessageDeleted announces a soft delete. The entry stays in the log.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}
