package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-chat/internal/models"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := Encode(EventJoinRoom, JoinRoom{
		UserID:   "u1",
		UserName: "Alice",
		UserRole: models.RoleCustomer,
	})
	require.NoError(t, err)

	env, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, EventJoinRoom, env.Event)

	var payload JoinRoom
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "Alice", payload.UserName)
	assert.Equal(t, models.RoleCustomer, payload.UserRole)
	assert.Empty(t, payload.RoomID)
}

func TestEncodeRejectsEmptyBody(t *testing.T) {
	_, err := Encode(EventSendMessage, SendMessage{
		RoomID:     "r1",
		SenderID:   "u1",
		SenderName: "Alice",
		SenderRole: models.RoleCustomer,
	})
	require.Error(t, err)
}

func TestEncodeRejectsUnknownRole(t *testing.T) {
	_, err := Encode(EventMarkAsRead, MarkAsRead{
		RoomID:   "r1",
		UserRole: models.Role("bot"),
	})
	require.Error(t, err)
}

func TestEncodeWithoutPayload(t *testing.T) {
	frame, err := Encode(EventConnect, nil)
	require.NoError(t, err)

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, EventConnect, env.Event)
	assert.Nil(t, env.Data)
}

func TestDecodeRejectsMissingEvent(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	require.Error(t, err)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}
