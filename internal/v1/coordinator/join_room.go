package coordinator

import (
	"context"
	"fmt"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// JoinRoomRequest is the inbound join_room payload.
type JoinRoomRequest struct {
	RoomID   types.RoomID
	Username string
	UserID   types.UserID
	Role     types.Role
}

// JoinRoom classifies the caller into exactly one of five cases (already a
// member, in grace period, intentionally-left + private + band_member,
// private + band_member with no prior membership, or a plain new join) and
// applies the corresponding branch.
func (c *Coordinator) JoinRoom(ctx context.Context, connID types.ConnID, req JoinRoomRequest, reply ReplyFunc) {
	room, ok := c.store.GetRoom(ctx, req.RoomID)
	if !ok {
		reply("error", map[string]any{"message": "Room not found"})
		return
	}

	if existing, isMember := room.Users[req.UserID]; isMember {
		// Case 1: already a member (page refresh).
		c.sessions.ClearIntentionallyLeft(req.UserID, req.RoomID)
		if _, popped := c.sessions.PopGrace(req.UserID, req.RoomID); popped {
			metrics.GracePeriodsActive.Dec()
		}
		c.admitMember(ctx, connID, req.RoomID, existing, reply)
		return
	}

	if c.sessions.IsInGrace(req.UserID, req.RoomID) {
		// Case 2: in grace period — restore, overwriting only the display name.
		snapshot, popped := c.sessions.PopGrace(req.UserID, req.RoomID)
		if popped {
			metrics.GracePeriodsActive.Dec()
		}
		snapshot.DisplayName = types.DisplayName(req.Username)
		if err := c.store.AddMember(ctx, req.RoomID, snapshot); err != nil {
			logging.Error(ctx, "join_room: failed to restore grace member", zap.Error(err))
			reply("error", map[string]any{"message": "failed to join room"})
			return
		}
		c.admitMember(ctx, connID, req.RoomID, snapshot, reply)
		return
	}

	if room.IsPrivate && req.Role == types.RoleBandMember {
		// Cases 3 & 4: private room, band_member role, not a current member.
		// Clearing any intentionally-left entry models the user trying again.
		c.sessions.ClearIntentionallyLeft(req.UserID, req.RoomID)

		pending := types.Member{
			UserID:      req.UserID,
			DisplayName: types.DisplayName(req.Username),
			Role:        types.RoleBandMember,
			IsReady:     false,
		}
		if err := c.store.AddPending(ctx, req.RoomID, pending); err != nil {
			logging.Error(ctx, "join_room: failed to register pending member", zap.Error(err))
			reply("error", map[string]any{"message": "failed to join room"})
			return
		}

		approvalChannel := c.channels.GetOrCreateApprovalChannel(req.RoomID)
		approvalChannel.Subscribe(connID, func(event string, payload any) { reply(event, payload) })
		c.setApprovalConn(req.RoomID, req.UserID, connID)

		reply("redirect_to_approval", map[string]any{
			"roomId":            req.RoomID,
			"message":           "awaiting owner approval",
			"approvalNamespace": fmt.Sprintf("/approval/%s", req.RoomID),
		})
		return
	}

	// Case 5: otherwise, a plain new membership, subject to the room's
	// participant cap. Cases 1/2/3/4 never reach here: they restore an
	// existing member or queue a pending applicant, neither of which grows
	// the room past a count it wasn't already at.
	if c.cfg.MaxParticipants > 0 && len(room.Users) >= c.cfg.MaxParticipants {
		reply("error", map[string]any{"message": "room is full"})
		return
	}

	member := types.Member{
		UserID:      req.UserID,
		DisplayName: types.DisplayName(req.Username),
		Role:        req.Role,
		IsReady:     true,
	}
	if err := c.store.AddMember(ctx, req.RoomID, member); err != nil {
		logging.Error(ctx, "join_room: failed to add member", zap.Error(err))
		reply("error", map[string]any{"message": "failed to join room"})
		return
	}
	c.admitMember(ctx, connID, req.RoomID, member, reply)
}

// admitMember runs the shared tail of the three accepted join cases: session
// registration (evicting a stale sibling session), subscribing the
// connection, and the room_joined / user_joined / room_state_updated /
// request_synth_params fan-out, in the order required by the ordering
// guarantee: room_joined to caller, then user_joined to others, then
// room_state_updated to everyone.
func (c *Coordinator) admitMember(ctx context.Context, connID types.ConnID, roomID types.RoomID, member types.Member, reply ReplyFunc) {
	if staleConnID, hadStale := c.sessions.SetSession(roomID, connID, member.UserID); hadStale {
		logging.Info(ctx, "join_room: evicting stale sibling session", zap.String("stale_conn_id", string(staleConnID)))
	}

	channel, err := c.channels.GetOrCreateRoomChannel(roomID)
	if err != nil {
		logging.Error(ctx, "join_room: failed to create room channel", zap.Error(err), zap.String("room_id", string(roomID)))
	}

	room, ok := c.store.GetRoom(ctx, roomID)
	if !ok {
		return
	}
	metrics.SetRoomMembers(string(roomID), len(room.Users))

	reply("room_joined", map[string]any{
		"room":           toRoomSnapshotPayload(room),
		"users":          room.Users,
		"pendingMembers": room.PendingMembers,
	})

	if channel != nil {
		c.channels.Broadcast(channel, "user_joined", map[string]any{"user": member})
		channel.Subscribe(connID, func(event string, payload any) { reply(event, payload) })
		c.broadcastRoomStateUpdated(ctx, roomID, channel)

		for otherID, other := range room.Users {
			if otherID == member.UserID || other.CurrentCategory != "synth" {
				continue
			}
			c.channels.Broadcast(channel, "request_synth_params", map[string]any{
				"requesterId": member.UserID,
				"targetUserId": otherID,
			})
		}
	}
}
