package coordinator

import "errors"

var (
	// The sentinels below name coordinator failure conditions. No
	// coordinator operation returns them: operations report through their
	// ReplyFunc (JoinRoom replies with an "error" event when the room id
	// does not exist) or end as a silent no-op.

	// ErrRoomNotFound names a room id that does not exist.
	ErrRoomNotFound = errors.New("coordinator: room not found")

	// ErrSessionNotFound names a connection id with no live session.
	ErrSessionNotFound = errors.New("coordinator: session not found")

	// ErrNotOwner names a non-owner attempting an owner-only operation.
	ErrNotOwner = errors.New("coordinator: caller is not the room owner")

	// ErrInvalidBPM names a tempo update that fails validation.
	ErrInvalidBPM = errors.New("coordinator: invalid bpm")

	// ErrDuplicateSession names a CreateRoom call on a connection that
	// already has a live session.
	ErrDuplicateSession = errors.New("coordinator: duplicate session")
)
