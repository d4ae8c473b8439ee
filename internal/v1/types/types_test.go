package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleConstants(t *testing.T) {
	assert.Equal(t, Role("owner"), RoleOwner)
	assert.Equal(t, Role("band_member"), RoleBandMember)
	assert.Equal(t, Role("audience"), RoleAudience)
}

func TestUserIDType(t *testing.T) {
	id := UserID("user-123")
	assert.Equal(t, "user-123", string(id))
}

func TestRoomIDType(t *testing.T) {
	id := RoomID("room-456")
	assert.Equal(t, "room-456", string(id))
}

func TestConnIDType(t *testing.T) {
	id := ConnID("conn-789")
	assert.Equal(t, "conn-789", string(id))
}

func TestDisplayNameType(t *testing.T) {
	name := DisplayName("Jamie")
	assert.Equal(t, "Jamie", string(name))
}

func TestMemberFields(t *testing.T) {
	m := Member{
		UserID:      "u1",
		DisplayName: "Jamie",
		Role:        RoleBandMember,
		IsReady:     true,
	}
	assert.Equal(t, UserID("u1"), m.UserID)
	assert.Equal(t, DisplayName("Jamie"), m.DisplayName)
	assert.Equal(t, RoleBandMember, m.Role)
	assert.True(t, m.IsReady)
	assert.Empty(t, m.CurrentInstrument)
	assert.Empty(t, m.CurrentCategory)
}

func TestRoomFields(t *testing.T) {
	now := time.Unix(0, 0)
	room := Room{
		ID:             "room-1",
		Name:           "Jam Room",
		Owner:          "u1",
		Users:          map[UserID]Member{"u1": {UserID: "u1", Role: RoleOwner}},
		PendingMembers: map[UserID]Member{},
		IsPrivate:      true,
		IsHidden:       false,
		CreatedAt:      now,
		Metronome:      MetronomeState{BPM: 90},
	}
	assert.Equal(t, RoomID("room-1"), room.ID)
	assert.True(t, room.IsPrivate)
	assert.False(t, room.IsHidden)
	assert.Len(t, room.Users, 1)
	assert.Empty(t, room.PendingMembers)
	assert.Equal(t, 90, room.Metronome.BPM)
}

func TestSessionFields(t *testing.T) {
	now := time.Unix(0, 0)
	s := Session{
		ConnID:    "conn-1",
		UserID:    "u1",
		RoomID:    "room-1",
		CreatedAt: now,
	}
	assert.Equal(t, ConnID("conn-1"), s.ConnID)
	assert.Equal(t, UserID("u1"), s.UserID)
	assert.Equal(t, RoomID("room-1"), s.RoomID)
	assert.True(t, s.CreatedAt.Equal(now))
}

func TestDriftStatsFields(t *testing.T) {
	d := DriftStats{MaxDriftMs: 12.5, AvgDriftMs: 3.1, TickCount: 42}
	assert.Equal(t, 12.5, d.MaxDriftMs)
	assert.Equal(t, 3.1, d.AvgDriftMs)
	assert.Equal(t, int64(42), d.TickCount)
}

func TestMetronomeStateFields(t *testing.T) {
	state := MetronomeState{BPM: 120, LastTickTimestamp: 1000}
	assert.Equal(t, 120, state.BPM)
	assert.Equal(t, int64(1000), state.LastTickTimestamp)
}
