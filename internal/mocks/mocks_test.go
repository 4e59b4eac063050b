package mocks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Expectations must go through the embedded Mock: On is the handler
// registration seam of the connection interface.
func TestConnMockExpectationsAndDispatch(t *testing.T) {
	conn := NewConnMock()
	conn.Mock.On("IsConnected").Return(true)
	conn.Mock.On("Emit", "ping", "payload").Return(nil).Once()

	assert.True(t, conn.IsConnected())
	require.NoError(t, conn.Emit("ping", "payload"))

	var got []string
	conn.On("greeting", func(data json.RawMessage) {
		var s string
		require.NoError(t, json.Unmarshal(data, &s))
		got = append(got, s)
	})
	conn.On("greeting", func(json.RawMessage) {
		got = append(got, "second")
	})

	require.NoError(t, conn.Dispatch("greeting", "hello"))
	assert.Equal(t, []string{"hello", "second"}, got)

	conn.AssertExpectations(t)
}
