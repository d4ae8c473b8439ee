package coordinator

import (
	"context"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// CreateRoomRequest is the inbound create_room payload.
type CreateRoomRequest struct {
	Name        string
	Username    string
	UserID      types.UserID
	IsPrivate   bool
	IsHidden    bool
}

// CreateRoom allocates a new room, installs the caller as owner, and starts
// its metronome. A connection that already has a live session is a silent
// no-op: duplicate session creation never surfaces an error event.
func (c *Coordinator) CreateRoom(ctx context.Context, connID types.ConnID, req CreateRoomRequest, reply ReplyFunc) {
	if _, ok := c.sessions.GetSession(connID); ok {
		logging.Warn(ctx, "create_room: duplicate session, ignoring", zap.String("conn_id", string(connID)))
		return
	}

	room, owner, err := c.store.CreateRoom(ctx, req.Name, req.Username, req.UserID, req.IsPrivate, req.IsHidden)
	if err != nil {
		logging.Error(ctx, "create_room: room store failed", zap.Error(err))
		reply("error", map[string]any{"message": "failed to create room"})
		return
	}

	c.sessions.SetSession(room.ID, connID, req.UserID)

	channel, err := c.channels.GetOrCreateRoomChannel(room.ID)
	if err != nil {
		logging.Error(ctx, "create_room: failed to create room channel", zap.Error(err), zap.String("room_id", string(room.ID)))
	}
	if channel != nil {
		channel.Subscribe(connID, func(event string, payload any) { reply(event, payload) })
	}

	if req.IsPrivate {
		c.channels.GetOrCreateApprovalChannel(room.ID)
	}

	c.metronome.Initialize(room.ID, channel, room.Metronome.BPM)

	metrics.RoomsActive.Inc()
	metrics.SetRoomMembers(string(room.ID), len(room.Users))

	reply("room_created", map[string]any{
		"room": toRoomSnapshotPayload(room),
		"user": owner,
	})

	c.globalBroadcast(ctx, "room_created_broadcast", map[string]any{
		"id":        room.ID,
		"name":      room.Name,
		"userCount": len(room.Users),
		"owner":     room.Owner,
		"isPrivate": room.IsPrivate,
		"isHidden":  room.IsHidden,
		"createdAt": room.CreatedAt,
	})

	logging.Info(ctx, "room created", zap.String("room_id", string(room.ID)), zap.String("owner", string(req.UserID)))
}
