// Package coordinator is the lifecycle coordinator: the public surface the
// transport layer calls into. It translates external events into ordered
// mutations across the room store, session registry, channel registry, and
// metronome engine, and emits the user-visible events those mutations
// produce. It depends only on the types package's interfaces, never a
// concrete struct from any of those packages, so each collaborator can be
// faked independently in tests.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/stagebeat/musicroom/internal/v1/types"
)

// ReplyFunc sends a single event directly to the connection that triggered
// the operation, independent of whether that connection is subscribed to
// any broadcast channel yet.
type ReplyFunc func(event string, payload any)

// Config carries the process-wide tunables the coordinator needs. These
// mirror internal/v1/config.Config's domain knobs; the coordinator takes
// them as plain values so it never imports the config package directly.
type Config struct {
	GracePeriod            time.Duration
	IntentionallyLeftTTL    time.Duration
	BPMMin, BPMMax, BPMDefault int
	MaxParticipants         int
}

// Coordinator wires the room store, session registry, channel registry,
// metronome engine, and optional cross-process broadcaster together.
type Coordinator struct {
	store     types.RoomStore
	sessions  types.SessionRegistry
	channels  types.ChannelRegistry
	metronome types.MetronomeEngine
	global    types.Broadcaster

	cfg Config

	// approvalMu guards approvalConns, the pending-applicant connection
	// lookup. A pending applicant has no room session (they were never
	// admitted to membership), so approve_member/reject_member cannot
	// find their connection through the session registry; this small
	// side table is the coordinator's own bookkeeping for that one gap.
	approvalMu    sync.Mutex
	approvalConns map[string]types.ConnID
}

// New creates a Coordinator. global may be nil, meaning single-instance
// mode: the global lobby-monitor broadcast becomes a no-op.
func New(store types.RoomStore, sessions types.SessionRegistry, channels types.ChannelRegistry, metronomeEngine types.MetronomeEngine, global types.Broadcaster, cfg Config) *Coordinator {
	return &Coordinator{
		store:         store,
		sessions:      sessions,
		channels:      channels,
		metronome:     metronomeEngine,
		global:        global,
		cfg:           cfg,
		approvalConns: make(map[string]types.ConnID),
	}
}

func approvalKey(roomID types.RoomID, userID types.UserID) string {
	return string(roomID) + "|" + string(userID)
}

func (c *Coordinator) setApprovalConn(roomID types.RoomID, userID types.UserID, connID types.ConnID) {
	c.approvalMu.Lock()
	defer c.approvalMu.Unlock()
	c.approvalConns[approvalKey(roomID, userID)] = connID
}

func (c *Coordinator) popApprovalConn(roomID types.RoomID, userID types.UserID) (types.ConnID, bool) {
	c.approvalMu.Lock()
	defer c.approvalMu.Unlock()
	key := approvalKey(roomID, userID)
	connID, ok := c.approvalConns[key]
	if ok {
		delete(c.approvalConns, key)
	}
	return connID, ok
}

// roomSnapshotPayload is the shape nested under "room" in room_created,
// room_joined, and room_state_updated payloads.
type roomSnapshotPayload struct {
	ID             types.RoomID              `json:"id"`
	Name           string                    `json:"name"`
	Owner          types.UserID              `json:"owner"`
	IsPrivate      bool                      `json:"isPrivate"`
	IsHidden       bool                      `json:"isHidden"`
	Users          map[types.UserID]types.Member `json:"users"`
	PendingMembers map[types.UserID]types.Member `json:"pendingMembers"`
}

func toRoomSnapshotPayload(room types.Room) roomSnapshotPayload {
	return roomSnapshotPayload{
		ID:             room.ID,
		Name:           room.Name,
		Owner:          room.Owner,
		IsPrivate:      room.IsPrivate,
		IsHidden:       room.IsHidden,
		Users:          room.Users,
		PendingMembers: room.PendingMembers,
	}
}

// broadcastRoomStateUpdated re-fetches the room snapshot and fans it out to
// the whole room channel. Called after any mutation that changes membership
// or pending membership.
func (c *Coordinator) broadcastRoomStateUpdated(ctx context.Context, roomID types.RoomID, channel types.Channel) {
	room, ok := c.store.GetRoom(ctx, roomID)
	if !ok {
		return
	}
	c.channels.Broadcast(channel, "room_state_updated", map[string]any{
		"room": toRoomSnapshotPayload(room),
	})
}

func (c *Coordinator) globalBroadcast(ctx context.Context, event string, payload any) {
	if c.global == nil {
		return
	}
	_ = c.global.PublishGlobal(ctx, event, payload)
}
