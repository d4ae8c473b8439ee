package roomstore

import (
	"context"
	"fmt"

	"github.com/stagebeat/musicroom/internal/v1/types"
)

// AddPending registers member as awaiting owner approval in a private room.
// It does not touch membership or join order.
func (s *Store) AddPending(ctx context.Context, roomID types.RoomID, member types.Member) error {
	r, ok := s.getRoom(roomID)
	if !ok {
		return fmt.Errorf("add pending %s in room %s: %w", member.UserID, roomID, ErrRoomNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingMembers[member.UserID] = member
	return nil
}

// ApprovePending moves a pending member into full membership, marking them
// ready, and joins them at the back of the join-order list.
func (s *Store) ApprovePending(ctx context.Context, roomID types.RoomID, userID types.UserID) (types.Member, error) {
	r, ok := s.getRoom(roomID)
	if !ok {
		return types.Member{}, fmt.Errorf("approve pending %s in room %s: %w", userID, roomID, ErrRoomNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending, exists := r.pendingMembers[userID]
	if !exists {
		return types.Member{}, fmt.Errorf("approve pending %s in room %s: %w", userID, roomID, ErrPendingNotFound)
	}

	delete(r.pendingMembers, userID)
	pending.IsReady = true
	r.users[userID] = pending
	r.joinElems[userID] = r.joinOrder.PushBack(userID)

	return pending, nil
}

// RejectPending drops a pending entry without ever admitting it to
// membership.
func (s *Store) RejectPending(ctx context.Context, roomID types.RoomID, userID types.UserID) (types.Member, error) {
	r, ok := s.getRoom(roomID)
	if !ok {
		return types.Member{}, fmt.Errorf("reject pending %s in room %s: %w", userID, roomID, ErrRoomNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending, exists := r.pendingMembers[userID]
	if !exists {
		return types.Member{}, fmt.Errorf("reject pending %s in room %s: %w", userID, roomID, ErrPendingNotFound)
	}

	delete(r.pendingMembers, userID)
	return pending, nil
}
