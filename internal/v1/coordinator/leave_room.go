package coordinator

import (
	"context"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// LeaveRoom handles both explicit leave_room events (intentional=true) and
// the coordinator's own disconnect handling (intentional=false).
func (c *Coordinator) LeaveRoom(ctx context.Context, connID types.ConnID, intentional bool, reply ReplyFunc) {
	session, ok := c.sessions.GetSession(connID)
	if !ok {
		return
	}

	room, ok := c.store.GetRoom(ctx, session.RoomID)
	if !ok {
		c.sessions.RemoveSession(connID)
		return
	}

	if _, isPending := room.PendingMembers[session.UserID]; isPending {
		if _, err := c.store.RejectPending(ctx, session.RoomID, session.UserID); err == nil {
			if channel, cerr := c.channels.GetOrCreateRoomChannel(session.RoomID); cerr == nil {
				c.broadcastRoomStateUpdated(ctx, session.RoomID, channel)
			}
		}
		c.sessions.RemoveSession(connID)
		return
	}

	member, isMember := room.Users[session.UserID]
	if !isMember {
		c.sessions.RemoveSession(connID)
		return
	}

	if reply != nil {
		reply("leave_confirmed", map[string]any{"message": "you have left the room"})
	}

	if member.Role == types.RoleOwner {
		c.handleOwnerDeparture(ctx, session.RoomID, member, intentional)
	} else {
		c.handleMemberDeparture(ctx, session.RoomID, member, intentional)
	}

	if channel, err := c.channels.GetOrCreateRoomChannel(session.RoomID); err == nil {
		channel.Unsubscribe(connID)
	}
	c.sessions.RemoveSession(connID)
}

// handleMemberDeparture removes a non-owner member and either closes the
// room (if it is now empty) or announces the departure.
func (c *Coordinator) handleMemberDeparture(ctx context.Context, roomID types.RoomID, member types.Member, intentional bool) {
	if intentional {
		c.sessions.MarkIntentionallyLeft(member.UserID, roomID, c.cfg.IntentionallyLeftTTL)
	}

	if _, err := c.store.RemoveMember(ctx, roomID, member.UserID, intentional); err != nil {
		logging.Warn(ctx, "leave_room: failed to remove member", zap.Error(err))
		return
	}

	if c.store.ShouldClose(ctx, roomID) {
		c.closeRoom(ctx, roomID, "Room is empty and has been closed")
		return
	}

	if room, ok := c.store.GetRoom(ctx, roomID); ok {
		metrics.SetRoomMembers(string(roomID), len(room.Users))
	}

	channel, err := c.channels.GetOrCreateRoomChannel(roomID)
	if err != nil {
		logging.Error(ctx, "leave_room: failed to get room channel", zap.Error(err))
		return
	}
	c.channels.Broadcast(channel, "user_left", map[string]any{"user": member})
	c.broadcastRoomStateUpdated(ctx, roomID, channel)
}

// handleOwnerDeparture implements the intentional/unintentional owner
// departure split: intentional departures transfer ownership (or close the
// room) immediately, unintentional ones give the owner a grace window
// first.
func (c *Coordinator) handleOwnerDeparture(ctx context.Context, roomID types.RoomID, owner types.Member, intentional bool) {
	if intentional {
		c.sessions.MarkIntentionallyLeft(owner.UserID, roomID, c.cfg.IntentionallyLeftTTL)
		c.removeOwnerAndTransfer(ctx, roomID, owner)
		return
	}

	// onExpire only fires if the grace window elapsed without a PopGrace
	// (i.e. the owner never rejoined), so no extra IsInGrace guard is
	// needed here: the registry already filters that for us.
	metrics.GracePeriodsActive.Inc()
	c.sessions.PutGrace(roomID, owner.UserID, owner, c.cfg.GracePeriod, func() {
		metrics.GracePeriodsActive.Dec()
		c.transferOrCloseAfterOwnerRemoval(ctx, roomID, owner)
	})

	if _, err := c.store.RemoveMember(ctx, roomID, owner.UserID, false); err != nil {
		logging.Warn(ctx, "leave_room: failed to remove departing owner", zap.Error(err))
		return
	}

	if c.store.ShouldClose(ctx, roomID) {
		// Room survives empty until the grace window resolves; see TP-7.
		return
	}
	// Non-empty but owner gone: the grace timer above will run the
	// transfer when it fires, unless the owner reconnects first.
}

// removeOwnerAndTransfer is the intentional-leave tail: remove the owner,
// then either close the now-empty room or transfer ownership to the next
// eligible member.
func (c *Coordinator) removeOwnerAndTransfer(ctx context.Context, roomID types.RoomID, owner types.Member) {
	if _, err := c.store.RemoveMember(ctx, roomID, owner.UserID, true); err != nil {
		logging.Warn(ctx, "leave_room: failed to remove departing owner", zap.Error(err))
		return
	}
	if !c.store.ShouldClose(ctx, roomID) {
		if channel, err := c.channels.GetOrCreateRoomChannel(roomID); err == nil {
			c.channels.Broadcast(channel, "user_left", map[string]any{"user": owner})
		}
	}
	c.transferOrCloseAfterOwnerRemoval(ctx, roomID, owner)
}

// transferOrCloseAfterOwnerRemoval runs once the owner has already been
// removed from membership: close the room if it's now empty, otherwise pick
// and install a new owner.
func (c *Coordinator) transferOrCloseAfterOwnerRemoval(ctx context.Context, roomID types.RoomID, oldOwner types.Member) {
	if c.store.ShouldClose(ctx, roomID) {
		c.closeRoom(ctx, roomID, "Room is empty and has been closed")
		return
	}

	newOwner, ok := c.store.AnyMember(ctx, roomID)
	if !ok {
		return
	}

	newOwnerMember, oldOwnerMember, err := c.store.TransferOwnership(ctx, roomID, newOwner.UserID)
	if err != nil {
		logging.Error(ctx, "leave_room: ownership transfer failed", zap.Error(err))
		return
	}
	metrics.OwnershipTransfersTotal.Inc()
	if oldOwnerMember.UserID == "" {
		// The old owner was already removed from membership, so the store
		// had no member to demote; report the departed owner as band_member.
		oldOwnerMember = oldOwner
		oldOwnerMember.Role = types.RoleBandMember
	}

	channel, err := c.channels.GetOrCreateRoomChannel(roomID)
	if err != nil {
		logging.Error(ctx, "leave_room: failed to get room channel for transfer broadcast", zap.Error(err))
		return
	}
	c.channels.Broadcast(channel, "ownership_transferred", map[string]any{
		"newOwner": newOwnerMember,
		"oldOwner": oldOwnerMember,
	})
	c.broadcastRoomStateUpdated(ctx, roomID, channel)
}

// closeRoom tears down every resource belonging to an emptied room.
func (c *Coordinator) closeRoom(ctx context.Context, roomID types.RoomID, message string) {
	if channel, err := c.channels.GetOrCreateRoomChannel(roomID); err == nil {
		c.channels.Broadcast(channel, "room_closed", map[string]any{"message": message})
	}
	c.metronome.Cleanup(roomID)
	c.channels.DestroyRoomChannel(roomID)
	c.channels.DestroyApprovalChannel(roomID)
	c.store.DeleteRoom(ctx, roomID)
	metrics.RoomsActive.Dec()
	metrics.SetRoomMembers(string(roomID), 0)
	c.globalBroadcast(ctx, "room_closed_broadcast", map[string]any{"roomId": roomID})
}

// ConnectionLost is the transport layer's disconnect hook. It records a
// grace entry for the departing member before removing them, so a racing
// reconnect's JoinRoom can observe it, then delegates to LeaveRoom with
// intentional=false.
func (c *Coordinator) ConnectionLost(ctx context.Context, connID types.ConnID) {
	session, ok := c.sessions.GetSession(connID)
	if !ok {
		return
	}

	room, ok := c.store.GetRoom(ctx, session.RoomID)
	if !ok {
		c.sessions.RemoveSession(connID)
		return
	}

	member, isMember := room.Users[session.UserID]
	if isMember && member.Role != types.RoleOwner {
		// Regular members get the same reconnect grace window as owners,
		// but there is no transfer to run when it lapses: the member was
		// already removed from the room, so expiry needs no follow-up.
		metrics.GracePeriodsActive.Inc()
		c.sessions.PutGrace(session.RoomID, session.UserID, member, c.cfg.GracePeriod, func() {
			metrics.GracePeriodsActive.Dec()
		})
	}

	c.LeaveRoom(ctx, connID, false, nil)
}
