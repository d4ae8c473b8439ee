package roomstore

import "errors"

var (
	// ErrRoomNotFound is returned when an operation targets a room id that
	// does not exist in the store.
	ErrRoomNotFound = errors.New("roomstore: room not found")

	// ErrMemberNotFound is returned when an operation targets a user id
	// that is not currently a member of the room.
	ErrMemberNotFound = errors.New("roomstore: member not found")

	// ErrPendingNotFound is returned when a pending-member operation
	// targets a user id that has no pending entry.
	ErrPendingNotFound = errors.New("roomstore: pending member not found")

	// ErrNotEligibleOwner is returned by TransferOwnership when the
	// proposed new owner is not an existing non-owner member.
	ErrNotEligibleOwner = errors.New("roomstore: target is not an eligible new owner")

	// ErrInvalidBPM is returned by UpdateMetronomeBPM when the value
	// cannot be clamped into a valid tempo.
	ErrInvalidBPM = errors.New("roomstore: invalid bpm value")
)
