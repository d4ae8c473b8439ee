package sessionregistry

import (
	"time"

	"github.com/stagebeat/musicroom/internal/v1/types"
)

// MarkIntentionallyLeft records that (userId, roomId) left on purpose; for
// the ttl window, a rejoin to a private room is treated as a fresh join
// requiring approval again rather than a reconnect.
func (reg *Registry) MarkIntentionallyLeft(userID types.UserID, roomID types.RoomID, ttl time.Duration) {
	key := compositeKey(roomID, userID)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.intentional[key]; ok {
		existing.Stop()
	}
	reg.intentional[key] = time.AfterFunc(ttl, func() {
		reg.mu.Lock()
		delete(reg.intentional, key)
		reg.mu.Unlock()
	})
}

// HasIntentionallyLeft reports whether the ttl window from a prior
// MarkIntentionallyLeft is still active.
func (reg *Registry) HasIntentionallyLeft(userID types.UserID, roomID types.RoomID) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.intentional[compositeKey(roomID, userID)]
	return ok
}

// ClearIntentionallyLeft cancels the window early, used when the same user
// retries the join and the entry should be consumed rather than outlive
// the retry.
func (reg *Registry) ClearIntentionallyLeft(userID types.UserID, roomID types.RoomID) {
	key := compositeKey(roomID, userID)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.intentional[key]; ok {
		existing.Stop()
		delete(reg.intentional, key)
	}
}
