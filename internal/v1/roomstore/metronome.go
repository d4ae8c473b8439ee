package roomstore

import (
	"context"
	"fmt"
	"time"

	"github.com/stagebeat/musicroom/internal/v1/types"
)

// UpdateMetronomeBPM clamps bpm into [bpmMin, bpmMax] and stamps
// lastTickTimestamp to now. A bpm of 0 (the zero value for an unparsed/
// missing field) is rejected outright rather than silently clamped, so a
// malformed payload never accidentally sets a room to its floor tempo.
func (s *Store) UpdateMetronomeBPM(ctx context.Context, roomID types.RoomID, bpm int) (types.Room, error) {
	if bpm <= 0 {
		return types.Room{}, fmt.Errorf("update metronome bpm in room %s: %w", roomID, ErrInvalidBPM)
	}

	r, ok := s.getRoom(roomID)
	if !ok {
		return types.Room{}, fmt.Errorf("update metronome bpm in room %s: %w", roomID, ErrRoomNotFound)
	}

	clamped := bpm
	if clamped < s.bpmMin {
		clamped = s.bpmMin
	}
	if clamped > s.bpmMax {
		clamped = s.bpmMax
	}

	r.mu.Lock()
	r.metronome.BPM = clamped
	r.metronome.LastTickTimestamp = time.Now().UnixMilli()
	snap := r.snapshot()
	r.mu.Unlock()

	return snap, nil
}

// GetMetronomeState returns the room's persisted tempo configuration.
func (s *Store) GetMetronomeState(ctx context.Context, roomID types.RoomID) (types.MetronomeState, bool) {
	r, ok := s.getRoom(roomID)
	if !ok {
		return types.MetronomeState{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metronome, true
}
