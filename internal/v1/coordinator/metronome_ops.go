package coordinator

import (
	"context"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// UpdateMetronomeRequest is the inbound update_metronome payload.
type UpdateMetronomeRequest struct {
	BPM int
}

// UpdateMetronome applies a tempo change requested by an owner or
// band_member; audience callers are a silent no-op.
func (c *Coordinator) UpdateMetronome(ctx context.Context, connID types.ConnID, req UpdateMetronomeRequest) {
	session, ok := c.sessions.GetSession(connID)
	if !ok {
		return
	}
	room, ok := c.store.GetRoom(ctx, session.RoomID)
	if !ok {
		return
	}
	caller, isMember := room.Users[session.UserID]
	if !isMember || caller.Role == types.RoleAudience {
		return
	}

	channel, err := c.channels.GetOrCreateRoomChannel(session.RoomID)
	if err != nil {
		logging.Error(ctx, "update_metronome: failed to get room channel", zap.Error(err), zap.String("room_id", string(session.RoomID)))
	}
	c.updateMetronomeOn(ctx, session.RoomID, channel, req.BPM)
}

// UpdateMetronomeOnChannel is the namespace-scoped variant: callers that
// already hold a channel reference (e.g. a transport handler dispatching
// within a room's own event loop) can skip the registry lookup.
func (c *Coordinator) UpdateMetronomeOnChannel(ctx context.Context, roomID types.RoomID, channel types.Channel, req UpdateMetronomeRequest) {
	c.updateMetronomeOn(ctx, roomID, channel, req.BPM)
}

func (c *Coordinator) updateMetronomeOn(ctx context.Context, roomID types.RoomID, channel types.Channel, bpm int) {
	room, err := c.store.UpdateMetronomeBPM(ctx, roomID, bpm)
	if err != nil {
		logging.Warn(ctx, "update_metronome: rejected", zap.Error(err), zap.Int("bpm", bpm))
		return
	}

	c.metronome.UpdateTempo(roomID, bpm)

	if channel == nil {
		return
	}
	c.channels.Broadcast(channel, "metronome_updated", map[string]any{
		"bpm":               room.Metronome.BPM,
		"lastTickTimestamp": room.Metronome.LastTickTimestamp,
	})
}

// RequestMetronomeState replies with the room's current tempo and last tick
// timestamp, addressed only to the caller.
func (c *Coordinator) RequestMetronomeState(ctx context.Context, connID types.ConnID, reply ReplyFunc) {
	session, ok := c.sessions.GetSession(connID)
	if !ok {
		return
	}
	c.requestMetronomeStateFor(ctx, session.RoomID, reply)
}

// RequestMetronomeStateOnChannel is the namespace-scoped variant of
// RequestMetronomeState: the caller already knows which room it means and
// supplies the room id directly instead of resolving it via the session
// registry.
func (c *Coordinator) RequestMetronomeStateOnChannel(ctx context.Context, roomID types.RoomID, reply ReplyFunc) {
	c.requestMetronomeStateFor(ctx, roomID, reply)
}

func (c *Coordinator) requestMetronomeStateFor(ctx context.Context, roomID types.RoomID, reply ReplyFunc) {
	state, ok := c.store.GetMetronomeState(ctx, roomID)
	if !ok {
		return
	}
	reply("metronome_state", map[string]any{
		"bpm":               state.BPM,
		"lastTickTimestamp": state.LastTickTimestamp,
	})
}
