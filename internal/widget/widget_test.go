package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront-chat/internal/mocks"
	"storefront-chat/internal/models"
	"storefront-chat/internal/session"
	"storefront-chat/internal/wire"
)

func TestFirstJoinCreatesRoom(t *testing.T) {
	conn := mocks.NewConnMock()
	conn.Mock.On("IsConnected").Return(true)
	conn.Mock.On("Emit", wire.EventJoinRoom, wire.JoinRoom{
		UserID:   "u1",
		UserName: "Alice",
		UserRole: models.RoleCustomer,
	}).Return(nil).Once()

	w := New(conn, "u1", "Alice")

	// The connect handler fires the join; the room id is empty on first
	// contact and the server resolves it.
	require.NoError(t, conn.Dispatch(wire.EventConnect, wire.Connect{SID: "s1"}))
	assert.Equal(t, session.StateJoining, w.State())

	require.NoError(t, conn.Dispatch(wire.EventRoomJoined, wire.RoomJoined{
		RoomID: "r1",
		Messages: []models.Message{
			{ID: "m1", Body: "hello", SenderRole: models.RoleCustomer},
		},
	}))
	assert.Equal(t, session.StateActive, w.State())
	assert.Equal(t, "r1", w.Room().RoomID)
	require.Len(t, w.Messages(), 1)
	conn.AssertExpectations(t)
}

func TestRejoinReusesRoomID(t *testing.T) {
	conn := mocks.NewConnMock()
	conn.Mock.On("IsConnected").Return(true)
	conn.Mock.On("Emit", wire.EventJoinRoom, wire.JoinRoom{
		UserID:   "u1",
		UserName: "Alice",
		UserRole: models.RoleCustomer,
	}).Return(nil).Once()
	conn.Mock.On("Emit", wire.EventJoinRoom, wire.JoinRoom{
		RoomID:   "r1",
		UserID:   "u1",
		UserName: "Alice",
		UserRole: models.RoleCustomer,
	}).Return(nil).Once()

	New(conn, "u1", "Alice")

	require.NoError(t, conn.Dispatch(wire.EventConnect, wire.Connect{SID: "s1"}))
	require.NoError(t, conn.Dispatch(wire.EventRoomJoined, wire.RoomJoined{RoomID: "r1"}))

	// After a reconnect the known room id rides along so history comes back.
	require.NoError(t, conn.Dispatch(wire.EventConnect, wire.Connect{SID: "s2"}))
	conn.AssertExpectations(t)
}

func TestUnreadCountsWhileClosed(t *testing.T) {
	conn := mocks.NewConnMock()
	w := New(conn, "u1", "Alice")

	require.NoError(t, conn.Dispatch(wire.EventRoomJoined, wire.RoomJoined{RoomID: "r1"}))

	admin := models.Message{ID: "m1", Body: "hi", SenderRole: models.RoleAdmin}
	require.NoError(t, conn.Dispatch(wire.EventReceiveMessage, admin))
	require.NoError(t, conn.Dispatch(wire.EventReceiveMessage, models.Message{
		ID: "m2", Body: "again", SenderRole: models.RoleAdmin,
	}))
	assert.Equal(t, 2, w.Unread())

	// The customer's own echo never counts.
	require.NoError(t, conn.Dispatch(wire.EventReceiveMessage, models.Message{
		ID: "m3", Body: "mine", SenderRole: models.RoleCustomer,
	}))
	assert.Equal(t, 2, w.Unread())
	assert.Len(t, w.Messages(), 3)

	w.Open()
	assert.Equal(t, 0, w.Unread())

	// While the window is open nothing accrues.
	require.NoError(t, conn.Dispatch(wire.EventReceiveMessage, models.Message{
		ID: "m4", Body: "more", SenderRole: models.RoleAdmin,
	}))
	assert.Equal(t, 0, w.Unread())

	w.Close()
	require.NoError(t, conn.Dispatch(wire.EventReceiveMessage, models.Message{
		ID: "m5", Body: "later", SenderRole: models.RoleAdmin,
	}))
	assert.Equal(t, 1, w.Unread())
}

func TestSendClearsComposer(t *testing.T) {
	conn := mocks.NewConnMock()
	conn.Mock.On("IsConnected").Return(true)
	conn.Mock.On("Emit", wire.EventSendMessage, wire.SendMessage{
		RoomID:     "r1",
		SenderID:   "u1",
		SenderName: "Alice",
		SenderRole: models.RoleCustomer,
		Body:       "need help with my order",
	}).Return(nil).Once()

	w := New(conn, "u1", "Alice")
	require.NoError(t, conn.Dispatch(wire.EventRoomJoined, wire.RoomJoined{RoomID: "r1"}))

	w.Compose("need help with my order")
	require.NoError(t, w.Send())
	assert.Empty(t, w.Draft())

	// The log stays untouched until the server echo arrives.
	assert.Empty(t, w.Messages())
	conn.AssertExpectations(t)
}

func TestSendWhileDisconnectedKeepsDraft(t *testing.T) {
	conn := mocks.NewConnMock()
	conn.Mock.On("IsConnected").Return(false)

	w := New(conn, "u1", "Alice")
	require.NoError(t, conn.Dispatch(wire.EventRoomJoined, wire.RoomJoined{RoomID: "r1"}))

	w.Compose("still here?")
	require.ErrorIs(t, w.Send(), session.ErrNotConnected)
	assert.Equal(t, "still here?", w.Draft())
	conn.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestSendRejectsEmptyDraft(t *testing.T) {
	conn := mocks.NewConnMock()
	conn.Mock.On("IsConnected").Return(true)

	w := New(conn, "u1", "Alice")
	require.NoError(t, conn.Dispatch(wire.EventRoomJoined, wire.RoomJoined{RoomID: "r1"}))

	w.Compose("   ")
	require.ErrorIs(t, w.Send(), session.ErrEmptyMessage)
	conn.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestMessageDeletedTombstones(t *testing.T) {
	conn := mocks.NewConnMock()
	w := New(conn, "u1", "Alice")

	require.NoError(t, conn.Dispatch(wire.EventRoomJoined, wire.RoomJoined{
		RoomID: "r1",
		Messages: []models.Message{
			{ID: "m1", Body: "first"},
			{ID: "m2", Body: "second"},
		},
	}))

	require.NoError(t, conn.Dispatch(wire.EventMessageDeleted, wire.MessageDeleted{MessageID: "m1"}))

	msgs := w.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsDeleted)
	assert.Equal(t, models.Tombstone, msgs[0].DisplayBody())
	assert.Equal(t, "second", msgs[1].DisplayBody())
}

func TestOpenStateToggles(t *testing.T) {
	w := New(mocks.NewConnMock(), "u1", "Alice")
	assert.False(t, w.IsOpen())
	w.Open()
	assert.True(t, w.IsOpen())
	w.Close()
	assert.False(t, w.IsOpen())
}
