package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
	Role     string `json:"role"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode("join_room", joinRoomPayload{RoomID: "r1", Username: "alice", UserID: "u1", Role: "band_member"})
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "join_room", msg.Event)

	var p joinRoomPayload
	require.NoError(t, msg.DecodePayload(&p))
	assert.Equal(t, "r1", p.RoomID)
	assert.Equal(t, "band_member", p.Role)
}

func TestDecodePayloadEmptyIsNoOp(t *testing.T) {
	msg := Message{Event: "leave_room"}
	var p joinRoomPayload
	assert.NoError(t, msg.DecodePayload(&p))
}

func TestDecodeUnknownFieldsIgnored(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"create_room","payload":{"name":"Jam","extra":"ignored"}}`))
	require.NoError(t, err)
	assert.Equal(t, "create_room", msg.Event)
}
