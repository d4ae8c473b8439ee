package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stagebeat/musicroom/internal/v1/auth"
	"github.com/stagebeat/musicroom/internal/v1/coordinator"
	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
	"github.com/stagebeat/musicroom/internal/v1/ratelimit"
	"github.com/stagebeat/musicroom/internal/v1/types"
)

// tokenValidator authenticates a bearer token into JWT claims. Implemented
// by internal/v1/auth.Validator; kept as an interface here so the hub can be
// tested against auth.MockValidator without a real token service.
type tokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// Hub is the WebSocket entry point for the event-stream transport: it
// authenticates a connection, upgrades it, and hands it off to the
// coordinator as a fresh connection id. Room and membership lifecycle live
// entirely in the coordinator from that point on; the hub holds no room
// state of its own.
type Hub struct {
	coord          *coordinator.Coordinator
	validator      tokenValidator
	limiter        *ratelimit.RateLimiter
	allowedOrigins []string
	devMode        bool

	mu      sync.Mutex
	clients map[types.ConnID]*Client
}

// NewHub creates a Hub bound to the given coordinator.
func NewHub(coord *coordinator.Coordinator, validator tokenValidator, limiter *ratelimit.RateLimiter, allowedOrigins []string, devMode bool) *Hub {
	return &Hub{
		coord:          coord,
		validator:      validator,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
		devMode:        devMode,
		clients:        make(map[types.ConnID]*Client),
	}
}

// ServeWs authenticates the caller and upgrades the HTTP request to a
// WebSocket connection bound to the coordinator.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.limiter != nil && !h.limiter.CheckWebSocket(c) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	tokenResult, err := h.extractToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}

	claims, err := h.authenticateUser(tokenResult.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if h.limiter != nil {
		if err := h.limiter.CheckWebSocketUser(c.Request.Context(), claims.Subject); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := h.upgradeWebSocket(c, h.allowedOrigins, tokenResult)
	if err != nil {
		return
	}

	h.handleConnection(conn, claims)
}

// AuthMiddleware validates the Authorization header's bearer token and
// attaches the resulting claims to the Gin context under "claims", for the
// HTTP room-mutation endpoints that sit alongside the websocket transport.
func (h *Hub) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := h.authenticateUser(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

func (h *Hub) handleConnection(conn wsConnection, claims *auth.CustomClaims) {
	connID := types.ConnID(uuid.NewString())
	client := newClient(conn, h.coord, connID, types.UserID(claims.Subject), !h.devMode)

	h.mu.Lock()
	h.clients[connID] = client
	h.mu.Unlock()

	metrics.IncSession()
	logging.Info(context.Background(), "client connected", zap.String("conn_id", string(connID)), zap.String("user_id", claims.Subject))

	go client.writePump()
	go h.drivePump(client)
}

// drivePump runs the client's readPump and removes it from the hub's
// registry once the connection ends.
func (h *Hub) drivePump(client *Client) {
	client.readPump()
	h.mu.Lock()
	delete(h.clients, client.connID)
	h.mu.Unlock()
}

// Shutdown disconnects every live client so their read pumps exit and the
// coordinator records a clean connection loss for each.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	logging.Info(ctx, "shutting down hub, disconnecting clients", zap.Int("count", len(clients)))
	for _, client := range clients {
		client.Disconnect()
	}
	return nil
}
