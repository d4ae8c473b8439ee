package sessionregistry

import (
	"testing"
	"time"

	"github.com/stagebeat/musicroom/internal/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSessionEvictsStaleSibling(t *testing.T) {
	reg := New()

	_, hadStale := reg.SetSession("room1", "conn-a", "u1")
	assert.False(t, hadStale)

	stale, hadStale := reg.SetSession("room1", "conn-b", "u1")
	assert.True(t, hadStale)
	assert.Equal(t, types.ConnID("conn-a"), stale)

	_, ok := reg.GetSession("conn-a")
	assert.False(t, ok)

	s, ok := reg.GetSession("conn-b")
	require.True(t, ok)
	assert.Equal(t, types.UserID("u1"), s.UserID)
}

func TestRemoveSession(t *testing.T) {
	reg := New()
	reg.SetSession("room1", "conn-a", "u1")
	reg.RemoveSession("conn-a")

	_, ok := reg.GetSession("conn-a")
	assert.False(t, ok)
}

func TestGraceRoundTrip(t *testing.T) {
	reg := New()
	snap := types.Member{UserID: "u1", Role: types.RoleOwner}

	reg.PutGrace("room1", "u1", snap, time.Minute, func() { t.Fatal("onExpire should not fire before pop") })
	assert.True(t, reg.IsInGrace("u1", "room1"))

	got, ok := reg.PopGrace("u1", "room1")
	require.True(t, ok)
	assert.Equal(t, snap, got)
	assert.False(t, reg.IsInGrace("u1", "room1"))

	_, ok = reg.PopGrace("u1", "room1")
	assert.False(t, ok)
}

func TestGraceExpiryFiresOnExpire(t *testing.T) {
	reg := New()
	fired := make(chan struct{})

	reg.PutGrace("room1", "u1", types.Member{UserID: "u1"}, 20*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected onExpire to fire")
	}
	assert.False(t, reg.IsInGrace("u1", "room1"))
}

func TestIntentionallyLeftRoundTrip(t *testing.T) {
	reg := New()
	reg.MarkIntentionallyLeft("u1", "room1", time.Minute)
	assert.True(t, reg.HasIntentionallyLeft("u1", "room1"))

	reg.ClearIntentionallyLeft("u1", "room1")
	assert.False(t, reg.HasIntentionallyLeft("u1", "room1"))
}

func TestIntentionallyLeftExpires(t *testing.T) {
	reg := New()
	reg.MarkIntentionallyLeft("u1", "room1", 20*time.Millisecond)
	assert.True(t, reg.HasIntentionallyLeft("u1", "room1"))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, reg.HasIntentionallyLeft("u1", "room1"))
}
