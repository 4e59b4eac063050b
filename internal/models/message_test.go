package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayBodyTombstonesDeletedMessages(t *testing.T) {
	msg := Message{ID: "m1", Body: "hello"}
	assert.Equal(t, "hello", msg.DisplayBody())

	msg.IsDeleted = true
	assert.Equal(t, Tombstone, msg.DisplayBody())
	assert.Equal(t, "hello", msg.Body, "raw body stays untouched")
}

func TestUnreadCountFor(t *testing.T) {
	unread := UnreadCount{Customer: 2, Admin: 5}
	assert.Equal(t, 2, unread.For(RoleCustomer))
	assert.Equal(t, 5, unread.For(RoleAdmin))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleCustomer.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("bot").Valid())
}
