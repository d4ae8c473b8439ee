package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetRoomMembers(t *testing.T) {
	SetRoomMembers("room-1", 3)
	if got := testutil.ToFloat64(RoomMembers.WithLabelValues("room-1")); got != 3 {
		t.Errorf("expected 3 members, got %v", got)
	}

	SetRoomMembers("room-1", 0)
	if got := testutil.CollectAndCount(RoomMembers); got != 0 {
		t.Errorf("expected room-1 series to be removed once empty, count=%d", got)
	}
}

func TestMetronomeTicksTotal(t *testing.T) {
	MetronomeTicksTotal.WithLabelValues("room-2").Inc()
	MetronomeTicksTotal.WithLabelValues("room-2").Inc()
	if got := testutil.ToFloat64(MetronomeTicksTotal.WithLabelValues("room-2")); got != 2 {
		t.Errorf("expected 2 ticks, got %v", got)
	}
}

func TestMetronomeDriftMsObserve(t *testing.T) {
	MetronomeDriftMs.WithLabelValues("room-3").Observe(4.2)
	if got := testutil.CollectAndCount(MetronomeDriftMs); got == 0 {
		t.Errorf("expected drift histogram to register an observation")
	}
}

func TestOwnershipTransfersTotal(t *testing.T) {
	before := testutil.ToFloat64(OwnershipTransfersTotal)
	OwnershipTransfersTotal.Inc()
	if got := testutil.ToFloat64(OwnershipTransfersTotal); got != before+1 {
		t.Errorf("expected %v transfers, got %v", before+1, got)
	}
}

func TestSessionGaugeHelpers(t *testing.T) {
	IncSession()
	IncSession()
	DecSession()
	if got := testutil.ToFloat64(SessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
}

func TestCircuitBreakerStateGauge(t *testing.T) {
	CircuitBreakerState.WithLabelValues("redis").Set(1)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("redis")); got != 1 {
		t.Errorf("expected circuit breaker state 1, got %v", got)
	}
}
