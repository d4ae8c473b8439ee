package sessionregistry

import (
	"time"

	"github.com/stagebeat/musicroom/internal/v1/types"
)

// PutGrace records a reconnection window for (userId, roomId), carrying a
// snapshot of the member at disconnect time. If the window elapses without
// a PopGrace, onExpire fires exactly once; this is the hook the coordinator
// uses to run the delayed ownership-transfer path. A fresh PutGrace for the
// same key cancels any timer already running for it.
func (reg *Registry) PutGrace(roomID types.RoomID, userID types.UserID, snapshot types.Member, ttl time.Duration, onExpire func()) {
	key := compositeKey(roomID, userID)

	reg.mu.Lock()
	if existing, ok := reg.grace[key]; ok {
		existing.timer.Stop()
	}

	entry := &graceEntry{snapshot: snapshot}
	entry.timer = time.AfterFunc(ttl, func() {
		reg.mu.Lock()
		current, stillPresent := reg.grace[key]
		fire := stillPresent && current == entry
		if fire {
			delete(reg.grace, key)
		}
		reg.mu.Unlock()

		if fire && onExpire != nil {
			onExpire()
		}
	})
	reg.grace[key] = entry
	reg.mu.Unlock()
}

// IsInGrace reports whether (userId, roomId) currently has a live grace window.
func (reg *Registry) IsInGrace(userID types.UserID, roomID types.RoomID) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.grace[compositeKey(roomID, userID)]
	return ok
}

// PopGrace removes and returns the grace snapshot for (userId, roomId), if
// present, cancelling its expiry timer.
func (reg *Registry) PopGrace(userID types.UserID, roomID types.RoomID) (types.Member, bool) {
	key := compositeKey(roomID, userID)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	entry, ok := reg.grace[key]
	if !ok {
		return types.Member{}, false
	}
	entry.timer.Stop()
	delete(reg.grace, key)
	return entry.snapshot, true
}
