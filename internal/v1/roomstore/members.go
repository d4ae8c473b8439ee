package roomstore

import (
	"context"
	"fmt"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// AddMember inserts member unless a member with that id already exists, in
// which case it is a no-op success (idempotent join).
func (s *Store) AddMember(ctx context.Context, roomID types.RoomID, member types.Member) error {
	r, ok := s.getRoom(roomID)
	if !ok {
		return fmt.Errorf("add member %s in room %s: %w", member.UserID, roomID, ErrRoomNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[member.UserID]; exists {
		return nil
	}

	r.users[member.UserID] = member
	r.joinElems[member.UserID] = r.joinOrder.PushBack(member.UserID)
	return nil
}

// RemoveMember deletes userID from membership. If intentional, the caller
// is expected to separately record an IntentionallyLeft entry in the
// session registry; this store only tracks membership, not leave-intent.
func (s *Store) RemoveMember(ctx context.Context, roomID types.RoomID, userID types.UserID, intentional bool) (types.Member, error) {
	r, ok := s.getRoom(roomID)
	if !ok {
		return types.Member{}, fmt.Errorf("remove member %s from room %s: %w", userID, roomID, ErrRoomNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	member, exists := r.users[userID]
	if !exists {
		return types.Member{}, fmt.Errorf("remove member %s from room %s: %w", userID, roomID, ErrMemberNotFound)
	}

	delete(r.users, userID)
	if elem, ok := r.joinElems[userID]; ok {
		r.joinOrder.Remove(elem)
		delete(r.joinElems, userID)
	}

	return member, nil
}

// TransferOwnership promotes newOwnerID to owner and demotes the current
// owner to band_member. newOwnerID must already be a non-owner member.
func (s *Store) TransferOwnership(ctx context.Context, roomID types.RoomID, newOwnerID types.UserID) (types.Member, types.Member, error) {
	r, ok := s.getRoom(roomID)
	if !ok {
		return types.Member{}, types.Member{}, fmt.Errorf("transfer ownership in room %s: %w", roomID, ErrRoomNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newOwner, exists := r.users[newOwnerID]
	if !exists || newOwner.Role == types.RoleOwner {
		return types.Member{}, types.Member{}, fmt.Errorf("transfer ownership to %s in room %s: %w", newOwnerID, roomID, ErrNotEligibleOwner)
	}

	oldOwnerID := r.owner
	oldOwner, hadOldOwner := r.users[oldOwnerID]

	newOwner.Role = types.RoleOwner
	r.users[newOwnerID] = newOwner
	r.owner = newOwnerID

	if hadOldOwner {
		oldOwner.Role = types.RoleBandMember
		r.users[oldOwnerID] = oldOwner
	}

	logging.Info(ctx, "ownership transferred",
		zap.String("room_id", string(roomID)),
		zap.String("new_owner", string(newOwnerID)),
		zap.String("old_owner", string(oldOwnerID)),
	)

	return newOwner, oldOwner, nil
}

// ShouldClose reports whether membership (excluding pending members) is
// empty.
func (s *Store) ShouldClose(ctx context.Context, roomID types.RoomID) bool {
	r, ok := s.getRoom(roomID)
	if !ok {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users) == 0
}

// AnyMember selects a deterministic remaining member: lowest join-order
// among current members. This rule is what makes ownership transfer
// reproducible in tests; callers must not rely on any other property of
// the selection (e.g. it is not "most senior" in any domain sense).
func (s *Store) AnyMember(ctx context.Context, roomID types.RoomID) (types.Member, bool) {
	r, ok := s.getRoom(roomID)
	if !ok {
		return types.Member{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for elem := r.joinOrder.Front(); elem != nil; elem = elem.Next() {
		userID := elem.Value.(types.UserID)
		if member, exists := r.users[userID]; exists {
			return member, true
		}
	}
	return types.Member{}, false
}
