// Package sessionregistry tracks the mapping from transport connection to
// (roomId, userId), plus the reconnection grace-period table and the
// intentionally-left table that gate private-room rejoin behavior.
package sessionregistry

import (
	"sync"
	"time"

	"github.com/stagebeat/musicroom/internal/v1/types"
)

func compositeKey(roomID types.RoomID, userID types.UserID) string {
	return string(roomID) + "|" + string(userID)
}

// Registry is the concrete, in-process implementation of types.SessionRegistry.
type Registry struct {
	mu sync.Mutex

	sessions map[types.ConnID]types.Session
	byUser   map[string]types.ConnID // roomId|userId -> connId

	grace       map[string]*graceEntry
	intentional map[string]*time.Timer
}

type graceEntry struct {
	snapshot types.Member
	timer    *time.Timer
}

// New creates an empty session registry.
func New() *Registry {
	return &Registry{
		sessions:    make(map[types.ConnID]types.Session),
		byUser:      make(map[string]types.ConnID),
		grace:       make(map[string]*graceEntry),
		intentional: make(map[string]*time.Timer),
	}
}

// SetSession installs a session for (roomId, userId, connId). If a different
// connId was already registered for the same user in the same room, it is
// evicted and returned so the coordinator can forcefully disconnect it.
func (reg *Registry) SetSession(roomID types.RoomID, connID types.ConnID, userID types.UserID) (types.ConnID, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := compositeKey(roomID, userID)
	var stale types.ConnID
	var hadStale bool

	if existing, ok := reg.byUser[key]; ok && existing != connID {
		stale = existing
		hadStale = true
		delete(reg.sessions, existing)
	}

	reg.sessions[connID] = types.Session{
		ConnID:    connID,
		UserID:    userID,
		RoomID:    roomID,
		CreatedAt: time.Now(),
	}
	reg.byUser[key] = connID

	return stale, hadStale
}

// GetSession returns the session registered for connID, if any.
func (reg *Registry) GetSession(connID types.ConnID) (types.Session, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	s, ok := reg.sessions[connID]
	return s, ok
}

// RemoveSession deletes the session for connID.
func (reg *Registry) RemoveSession(connID types.ConnID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	session, ok := reg.sessions[connID]
	if !ok {
		return
	}
	delete(reg.sessions, connID)

	key := compositeKey(session.RoomID, session.UserID)
	if reg.byUser[key] == connID {
		delete(reg.byUser, key)
	}
}
