package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stagebeat/musicroom/internal/v1/bus"
	"github.com/stagebeat/musicroom/internal/v1/logging"
	"go.uber.org/zap"
)

// Handler manages health check endpoints.
type Handler struct {
	busService *bus.Service
}

// NewHandler creates a new health check handler. busService may be nil when
// running in single-instance mode, in which case readiness never depends on it.
func NewHandler(busService *bus.Service) *Handler {
	return &Handler{busService: busService}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive, with no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy, 503 otherwise.
// Room, session, and metronome state all live in-process, so the only
// external dependency to check is the optional cross-process broadcaster.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	redisStatus := h.checkBus(ctx)
	checks["redis"] = redisStatus

	status := "ready"
	statusCode := http.StatusOK
	if redisStatus != "healthy" {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkBus verifies connectivity to the optional cross-process broadcaster.
// A nil/disabled service is considered healthy, since the service is fully
// functional in single-instance mode without it.
func (h *Handler) checkBus(ctx context.Context) string {
	if h.busService == nil {
		return "healthy"
	}

	if err := h.busService.Ping(ctx); err != nil {
		logging.Error(ctx, "broadcaster health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}
