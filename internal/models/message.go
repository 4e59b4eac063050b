package models

import "time"

// Role identifies which side of a conversation a participant is on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether the role is one the chat server understands.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Tombstone is the text rendered in place of a deleted message.
const Tombstone = "Tin nhắn đã bị xóa"

// Message is one ordered entry in a room's log. JSON field names follow the
// chat server's wire format.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	SenderRole Role      `json:"senderRole"`
	Body       string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
	IsDeleted  bool      `json:"isDeleted"`
}

// DisplayBody returns the text a view should render for this message.
// Deleted messages keep their position in the log but render as a tombstone.
func (m Message) DisplayBody() string {
	if m.IsDeleted {
		return Tombstone
	}
	return m.Body
}
