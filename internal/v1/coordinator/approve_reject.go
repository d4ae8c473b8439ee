package coordinator

import (
	"context"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// ApproveMemberRequest is the inbound approve_member payload.
type ApproveMemberRequest struct {
	TargetUserID types.UserID
}

// RejectMemberRequest is the inbound reject_member payload.
type RejectMemberRequest struct {
	TargetUserID types.UserID
}

// callerOwnsRoom looks up the caller's session and room, and verifies the
// caller currently holds the owner role. Returns (room, ok): ok is false for
// every failure mode (missing session, missing room, not owner), and every
// failure mode is a silent no-op per the same unauthorized-action policy
// UpdateMetronome uses.
func (c *Coordinator) callerOwnsRoom(ctx context.Context, connID types.ConnID) (types.Session, types.Room, bool) {
	session, ok := c.sessions.GetSession(connID)
	if !ok {
		return types.Session{}, types.Room{}, false
	}

	room, ok := c.store.GetRoom(ctx, session.RoomID)
	if !ok {
		return types.Session{}, types.Room{}, false
	}

	caller, isMember := room.Users[session.UserID]
	if !isMember || caller.Role != types.RoleOwner {
		return types.Session{}, types.Room{}, false
	}

	return session, room, true
}

// ApproveMember moves a pending applicant into membership. Only the room
// owner may call this; any other caller is a silent no-op.
func (c *Coordinator) ApproveMember(ctx context.Context, connID types.ConnID, req ApproveMemberRequest) {
	session, _, ok := c.callerOwnsRoom(ctx, connID)
	if !ok {
		return
	}

	if _, err := c.store.ApprovePending(ctx, session.RoomID, req.TargetUserID); err != nil {
		logging.Warn(ctx, "approve_member: no such pending member", zap.Error(err))
		return
	}

	if room, ok := c.store.GetRoom(ctx, session.RoomID); ok {
		metrics.SetRoomMembers(string(session.RoomID), len(room.Users))
	}

	if channel, err := c.channels.GetOrCreateRoomChannel(session.RoomID); err == nil {
		c.broadcastRoomStateUpdated(ctx, session.RoomID, channel)
	}

	approvalChannel := c.channels.GetOrCreateApprovalChannel(session.RoomID)
	if applicantConn, ok := c.popApprovalConn(session.RoomID, req.TargetUserID); ok {
		c.channels.SendTo(approvalChannel, applicantConn, "approval_granted", map[string]any{
			"roomId":      session.RoomID,
			"roomChannel": "/room/" + string(session.RoomID),
		})
		approvalChannel.Unsubscribe(applicantConn)
	}
}

// RejectMember drops a pending applicant without ever admitting it to
// membership. Only the room owner may call this.
func (c *Coordinator) RejectMember(ctx context.Context, connID types.ConnID, req RejectMemberRequest) {
	session, _, ok := c.callerOwnsRoom(ctx, connID)
	if !ok {
		return
	}

	if _, err := c.store.RejectPending(ctx, session.RoomID, req.TargetUserID); err != nil {
		logging.Warn(ctx, "reject_member: no such pending member", zap.Error(err))
		return
	}

	if channel, err := c.channels.GetOrCreateRoomChannel(session.RoomID); err == nil {
		c.broadcastRoomStateUpdated(ctx, session.RoomID, channel)
	}

	approvalChannel := c.channels.GetOrCreateApprovalChannel(session.RoomID)
	if applicantConn, ok := c.popApprovalConn(session.RoomID, req.TargetUserID); ok {
		c.channels.SendTo(approvalChannel, applicantConn, "approval_denied", map[string]any{
			"roomId": session.RoomID,
		})
		approvalChannel.Unsubscribe(applicantConn)
	}
}
