package models

import "time"

// RoomStatus marks whether a conversation is still running. Closed rooms are
// kept by the server; the client never deletes a room.
type RoomStatus string

const (
	RoomOpen   RoomStatus = "open"
	RoomClosed RoomStatus = "closed"
)

// UnreadCount tracks per-role unread messages for a room.
type UnreadCount struct {
	Customer int `json:"customer"`
	Admin    int `json:"admin"`
}

// For returns the counter for the given role.
func (u UnreadCount) For(role Role) int {
	if role == RoleAdmin {
		return u.Admin
	}
	return u.Customer
}

// Room represents one customer-admin conversation. The customer side owns at
// most one room; the admin side keeps a list of all of them.
type Room struct {
	ID              string      `json:"_id,omitempty"`
	RoomID          string      `json:"roomId"`
	UserID          string      `json:"userId"`
	UserName        string      `json:"userName"`
	UserRole        Role        `json:"userRole"`
	AdminID         string      `json:"adminId,omitempty"`
	AdminName       string      `json:"adminName,omitempty"`
	Messages        []Message   `json:"messages"`
	LastMessage     string      `json:"lastMessage"`
	LastMessageTime time.Time   `json:"lastMessageTime"`
	Unread          UnreadCount `json:"unreadCount"`
	Status          RoomStatus  `json:"status"`
}
