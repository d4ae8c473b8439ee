package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the music-room service.
//
// Naming convention: namespace_subsystem_name
//   - namespace: musicroom (application-level grouping)
//   - subsystem: room, session, metronome, circuit_breaker, rate_limit
//   - name: specific metric (active, ticks_total, drift_ms, etc.)
//
// Metric Types:
//   - Gauge: current state (active rooms, members per room, sessions)
//   - Counter: cumulative events (ticks, ownership transfers, rate-limit hits)
//   - Histogram: distributions (metronome drift)

var (
	// RoomsActive tracks the current number of open rooms.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "musicroom",
		Name:      "rooms_active",
		Help:      "Current number of open rooms",
	})

	// RoomMembers tracks the number of members in each room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "musicroom",
		Subsystem: "room",
		Name:      "members",
		Help:      "Number of members currently in each room",
	}, []string{"room_id"})

	// SessionsActive tracks the current number of live websocket sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "musicroom",
		Name:      "sessions_active",
		Help:      "Current number of active websocket sessions",
	})

	// MetronomeTicksTotal tracks the total number of metronome ticks emitted per room.
	MetronomeTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "musicroom",
		Subsystem: "metronome",
		Name:      "ticks_total",
		Help:      "Total metronome ticks emitted",
	}, []string{"room_id"})

	// MetronomeDriftMs tracks the observed drift between scheduled and actual tick time.
	MetronomeDriftMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "musicroom",
		Subsystem: "metronome",
		Name:      "drift_ms",
		Help:      "Drift between scheduled and actual metronome tick time, in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"room_id"})

	// GracePeriodsActive tracks the number of reconnect grace periods (owner and member) currently pending.
	GracePeriodsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "musicroom",
		Name:      "grace_periods_active",
		Help:      "Current number of reconnect grace periods pending",
	})

	// OwnershipTransfersTotal tracks the total number of completed ownership transfers.
	OwnershipTransfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "musicroom",
		Name:      "ownership_transfers_total",
		Help:      "Total number of completed room ownership transfers",
	})

	// CircuitBreakerState tracks the current state of a circuit breaker.
	// 0: Closed (healthy), 1: Open (failing), 2: Half-Open (recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "musicroom",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by a circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "musicroom",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "musicroom",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "musicroom",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})
)

// SetRoomMembers updates the per-room member gauge, removing the series
// entirely once a room empties out so closed rooms don't linger in
// /metrics output.
func SetRoomMembers(roomID string, count int) {
	if count <= 0 {
		RoomMembers.DeleteLabelValues(roomID)
		return
	}
	RoomMembers.WithLabelValues(roomID).Set(float64(count))
}

func IncSession() {
	SessionsActive.Inc()
}

func DecSession() {
	SessionsActive.Dec()
}
