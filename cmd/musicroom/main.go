// Command musicroom runs the room-lifecycle coordinator service: the
// websocket event-stream transport, its thin HTTP wrappers, health checks,
// and metrics, all wired to a single in-process coordinator.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stagebeat/musicroom/internal/v1/auth"
	"github.com/stagebeat/musicroom/internal/v1/bus"
	"github.com/stagebeat/musicroom/internal/v1/channelregistry"
	"github.com/stagebeat/musicroom/internal/v1/config"
	"github.com/stagebeat/musicroom/internal/v1/coordinator"
	"github.com/stagebeat/musicroom/internal/v1/health"
	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metronome"
	"github.com/stagebeat/musicroom/internal/v1/middleware"
	"github.com/stagebeat/musicroom/internal/v1/ratelimit"
	"github.com/stagebeat/musicroom/internal/v1/roomstore"
	"github.com/stagebeat/musicroom/internal/v1/sessionregistry"
	"github.com/stagebeat/musicroom/internal/v1/transport"
	"github.com/stagebeat/musicroom/internal/v1/types"
)

func main() {
	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	logger := logging.GetLogger()
	defer logger.Sync()

	ctx := context.Background()

	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
		}
		defer busService.Close()
	}

	validator, err := newValidator(ctx, cfg)
	if err != nil {
		logging.Fatal(ctx, "failed to initialize token validator", zap.Error(err))
	}

	store := roomstore.NewStore(cfg.BPMMin, cfg.BPMMax, cfg.BPMDefault)
	sessions := sessionregistry.New()
	channels := channelregistry.New()
	metronomeEngine := metronome.New(store, channels)

	var broadcaster types.Broadcaster
	if busService != nil {
		broadcaster = busService
	}

	coord := coordinator.New(store, sessions, channels, metronomeEngine, broadcaster, coordinator.Config{
		GracePeriod:          time.Duration(cfg.GracePeriodMs) * time.Millisecond,
		IntentionallyLeftTTL: time.Duration(cfg.IntentionallyLeftTTLMs) * time.Millisecond,
		BPMMin:               cfg.BPMMin,
		BPMMax:               cfg.BPMMax,
		BPMDefault:           cfg.BPMDefault,
		MaxParticipants:      cfg.MaxParticipants,
	})

	var redisClient *redis.Client
	if busService != nil {
		redisClient = busService.Client()
	}
	limiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to initialize rate limiter", zap.Error(err))
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	hub := transport.NewHub(coord, validator, limiter, allowedOrigins, cfg.DevelopmentMode)
	healthHandler := health.NewHandler(busService)

	if cfg.GoEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.CorrelationID())
	engine.Use(limiter.GlobalMiddleware())

	engine.GET("/ws", hub.ServeWs)
	engine.POST("/rooms", hub.AuthMiddleware(), limiter.RoomsMiddleware(), hub.CreateRoomHTTP)
	engine.POST("/rooms/:roomId/leave", hub.AuthMiddleware(), limiter.RoomsMiddleware(), hub.LeaveRoomHTTP)
	engine.GET("/health/live", healthHandler.Liveness)
	engine.GET("/health/ready", healthHandler.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logging.Info(ctx, "starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Info(ctx, "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "hub shutdown error", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "server shutdown error", zap.Error(err))
	}
	logging.Info(ctx, "shutdown complete")
}

func newValidator(ctx context.Context, cfg *config.Config) (interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}, error) {
	if cfg.SkipAuth || cfg.DevelopmentMode {
		logging.Info(ctx, "using mock token validator (development mode)")
		return &auth.MockValidator{}, nil
	}
	return auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
}
