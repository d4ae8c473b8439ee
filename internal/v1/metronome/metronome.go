// Package metronome runs one drift-corrected tick scheduler per active
// room. Each scheduler emits tick events onto the room's broadcast channel
// at the room's configured tempo, correcting for its own jitter by always
// scheduling the next tick from the expected time rather than the actual
// fire time.
package metronome

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// scheduler is the per-room runtime state. bpm is read/written under mu so
// UpdateTempo can stage a new tempo without truncating the currently
// in-flight tick interval; the run loop picks it up at the top of its next
// iteration.
type scheduler struct {
	mu  sync.Mutex
	bpm int

	cancel context.CancelFunc
	done   chan struct{}

	maxDriftMs float64
	sumDriftMs float64
	tickCount  int64
}

func (s *scheduler) currentBPM() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

func (s *scheduler) setBPM(bpm int) {
	s.mu.Lock()
	s.bpm = bpm
	s.mu.Unlock()
}

func (s *scheduler) recordDrift(driftMs float64) {
	s.mu.Lock()
	s.tickCount++
	s.sumDriftMs += driftMs
	if driftMs > s.maxDriftMs {
		s.maxDriftMs = driftMs
	}
	s.mu.Unlock()
}

func (s *scheduler) stats() types.DriftStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := 0.0
	if s.tickCount > 0 {
		avg = s.sumDriftMs / float64(s.tickCount)
	}
	return types.DriftStats{MaxDriftMs: s.maxDriftMs, AvgDriftMs: avg, TickCount: s.tickCount}
}

// Engine is the concrete implementation of types.MetronomeEngine.
type Engine struct {
	mu        sync.Mutex
	schedulers map[types.RoomID]*scheduler

	store types.RoomStore
	bus   types.ChannelRegistry
}

// New creates an empty metronome engine. store is used to stamp
// lastTickTimestamp on each tick; channels is used to broadcast ticks.
func New(store types.RoomStore, channels types.ChannelRegistry) *Engine {
	return &Engine{
		schedulers: make(map[types.RoomID]*scheduler),
		store:      store,
		bus:        channels,
	}
}

// Initialize stops any existing scheduler for roomId, then starts a fresh
// one bound to channel at the given starting bpm.
func (e *Engine) Initialize(roomID types.RoomID, channel types.Channel, bpm int) {
	e.Cleanup(roomID)

	ctx, cancel := context.WithCancel(context.Background())
	sched := &scheduler{bpm: bpm, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.schedulers[roomID] = sched
	e.mu.Unlock()

	go e.run(ctx, roomID, channel, sched)
}

// UpdateTempo stages a new bpm for roomId's scheduler. It takes effect at
// the next tick boundary.
func (e *Engine) UpdateTempo(roomID types.RoomID, newBPM int) {
	e.mu.Lock()
	sched, ok := e.schedulers[roomID]
	e.mu.Unlock()
	if !ok {
		return
	}
	sched.setBPM(newBPM)
}

// Cleanup stops roomId's scheduler, if any, and drops it.
func (e *Engine) Cleanup(roomID types.RoomID) {
	e.mu.Lock()
	sched, ok := e.schedulers[roomID]
	if ok {
		delete(e.schedulers, roomID)
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	sched.cancel()
	<-sched.done
}

// DriftStats returns roomId's accumulated jitter statistics.
func (e *Engine) DriftStats(roomID types.RoomID) (types.DriftStats, bool) {
	e.mu.Lock()
	sched, ok := e.schedulers[roomID]
	e.mu.Unlock()
	if !ok {
		return types.DriftStats{}, false
	}
	return sched.stats(), true
}

// run is the self-correcting tick loop. The next tick is always scheduled
// from expectedNext, not from the time the previous tick actually fired, so
// transient scheduling jitter never accumulates into unbounded drift.
func (e *Engine) run(ctx context.Context, roomID types.RoomID, channel types.Channel, sched *scheduler) {
	defer close(sched.done)

	expectedNext := time.Now().UnixNano()
	e.emitTick(ctx, roomID, channel, sched, expectedNext)

	for {
		bpm := sched.currentBPM()
		if bpm <= 0 {
			bpm = 1
		}
		intervalNs := int64(math.Round((60.0 / float64(bpm)) * 1_000_000_000))
		expectedNext += intervalNs

		sleepFor := time.Duration(expectedNext - time.Now().UnixNano())
		if sleepFor < 0 {
			sleepFor = 0
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !e.emitTick(ctx, roomID, channel, sched, expectedNext) {
			return
		}
	}
}

// emitTick records drift, broadcasts the tick, and stamps lastTickTimestamp.
// Returns false if the room no longer exists, which is fatal to the
// scheduler: it stops itself rather than ticking a room that is gone.
func (e *Engine) emitTick(ctx context.Context, roomID types.RoomID, channel types.Channel, sched *scheduler, expectedNext int64) bool {
	nowNs := time.Now().UnixNano()
	driftMs := math.Abs(float64(nowNs-expectedNext) / 1e6)
	sched.recordDrift(driftMs)
	metrics.MetronomeDriftMs.WithLabelValues(string(roomID)).Observe(driftMs)

	nowMs := time.Now().UnixMilli()
	bpm := sched.currentBPM()

	if e.store != nil {
		if _, err := e.store.UpdateMetronomeBPM(ctx, roomID, bpm); err != nil {
			logging.Warn(ctx, "metronome tick: room no longer exists, stopping scheduler", zap.String("room_id", string(roomID)))
			return false
		}
	}

	if e.bus != nil && channel != nil {
		e.bus.Broadcast(channel, "metronome_tick", map[string]any{
			"timestamp": nowMs,
			"bpm":       bpm,
		})
	}

	metrics.MetronomeTicksTotal.WithLabelValues(string(roomID)).Inc()
	return true
}
