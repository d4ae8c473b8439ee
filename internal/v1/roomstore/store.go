// Package roomstore holds the in-memory mapping of room identifiers to room
// state: membership, pending members, metronome configuration, owner, and
// flags. It provides every mutation primitive the coordinator composes into
// higher-level operations; it has no knowledge of sessions, transport, or
// broadcast.
package roomstore

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// room is the internal representation of a single room. joinOrder tracks
// member-id join order so AnyMember has a documented, deterministic
// selection rule; joinElems lets RemoveMember unlink the matching list
// element in O(1) instead of scanning.
type room struct {
	mu sync.Mutex

	id             types.RoomID
	name           string
	owner          types.UserID
	users          map[types.UserID]types.Member
	pendingMembers map[types.UserID]types.Member
	isPrivate      bool
	isHidden       bool
	createdAt      time.Time
	metronome      types.MetronomeState

	joinOrder *list.List
	joinElems map[types.UserID]*list.Element
}

func (r *room) snapshot() types.Room {
	users := make(map[types.UserID]types.Member, len(r.users))
	for k, v := range r.users {
		users[k] = v
	}
	pending := make(map[types.UserID]types.Member, len(r.pendingMembers))
	for k, v := range r.pendingMembers {
		pending[k] = v
	}
	return types.Room{
		ID:             r.id,
		Name:           r.name,
		Owner:          r.owner,
		Users:          users,
		PendingMembers: pending,
		IsPrivate:      r.isPrivate,
		IsHidden:       r.isHidden,
		CreatedAt:      r.createdAt,
		Metronome:      r.metronome,
	}
}

// Store is the registry-level map of all open rooms. Room-local mutations
// are serialized per room (via room.mu); a coarse RWMutex only ever guards
// the top-level map, and is never held while a room-local lock is acquired,
// to avoid lock inversion between registry-wide and per-room operations.
type Store struct {
	mu    sync.RWMutex
	rooms map[types.RoomID]*room

	bpmMin, bpmMax, bpmDefault int
}

// NewStore creates an empty room store. bpmMin/bpmMax bound UpdateMetronomeBPM;
// bpmDefault seeds every newly created room's tempo.
func NewStore(bpmMin, bpmMax, bpmDefault int) *Store {
	return &Store{
		rooms:      make(map[types.RoomID]*room),
		bpmMin:     bpmMin,
		bpmMax:     bpmMax,
		bpmDefault: bpmDefault,
	}
}

func (s *Store) getRoom(roomID types.RoomID) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// CreateRoom allocates a new room id and installs the creator as owner.
func (s *Store) CreateRoom(ctx context.Context, name, username string, userID types.UserID, isPrivate, isHidden bool) (types.Room, types.Member, error) {
	roomID := types.RoomID(uuid.NewString())

	owner := types.Member{
		UserID:      userID,
		DisplayName: types.DisplayName(username),
		Role:        types.RoleOwner,
		IsReady:     true,
	}

	r := &room{
		id:             roomID,
		name:           name,
		owner:          userID,
		users:          map[types.UserID]types.Member{userID: owner},
		pendingMembers: map[types.UserID]types.Member{},
		isPrivate:      isPrivate,
		isHidden:       isHidden,
		createdAt:      time.Now(),
		metronome:      types.MetronomeState{BPM: s.bpmDefault, LastTickTimestamp: time.Now().UnixMilli()},
		joinOrder:      list.New(),
		joinElems:      make(map[types.UserID]*list.Element),
	}
	r.joinElems[userID] = r.joinOrder.PushBack(userID)

	s.mu.Lock()
	s.rooms[roomID] = r
	s.mu.Unlock()

	logging.Info(ctx, "room created", zap.String("room_id", string(roomID)), zap.String("owner", string(userID)))
	return r.snapshot(), owner, nil
}

// GetRoom returns a snapshot of the room, or false if it does not exist.
func (s *Store) GetRoom(ctx context.Context, roomID types.RoomID) (types.Room, bool) {
	r, ok := s.getRoom(roomID)
	if !ok {
		return types.Room{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(), true
}

// DeleteRoom removes the room entirely. Callers are responsible for having
// already torn down channels and the metronome for this room.
func (s *Store) DeleteRoom(ctx context.Context, roomID types.RoomID) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}
