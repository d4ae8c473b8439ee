// Package bus implements the optional cross-process global broadcaster.
//
// It is deliberately narrow: it carries only the best-effort "a room was
// created" / "a room was closed" summary fan-out described for the global
// lobby monitor. Authoritative room, membership, and metronome state never
// goes through Redis -- that state lives in-process only.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
)

// globalChannel is the single Redis pub/sub channel carrying best-effort
// global events (room_created_broadcast, room_closed_broadcast) across
// process instances.
const globalChannel = "musicroom:lobby-monitor"

// Envelope is the standardized container for moving global events between
// instances.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Service wraps a Redis client with a circuit breaker so a degraded Redis
// never blocks the in-process room-local broadcast path.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client, primarily for diagnostics.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService connects to Redis and wraps the connection in a circuit
// breaker. Returns an error if the initial ping fails.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("connected to redis for global broadcast", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// PublishGlobal publishes a best-effort global event. A nil/disabled
// Service, or a tripped circuit breaker, is not an error: the caller's
// room-local broadcast must still proceed.
func (s *Service) PublishGlobal(ctx context.Context, event string, payload any) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal global payload: %w", err)
		}
		env := Envelope{Event: event, Payload: innerBytes}
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal global envelope: %w", err)
		}
		return nil, s.client.Publish(ctx, globalChannel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: dropping global broadcast", "event", event)
			return nil
		}
		slog.Error("redis publish failed", "event", event, "error", err)
		return err
	}
	return nil
}

// SubscribeGlobal starts a background goroutine delivering global events
// from other instances to handler until ctx is cancelled.
func (s *Service) SubscribeGlobal(ctx context.Context, handler func(Envelope)) {
	if s == nil || s.client == nil {
		return
	}

	pubsub := s.client.Subscribe(ctx, globalChannel)

	go func() {
		defer pubsub.Close()
		slog.Info("subscribed to global broadcast channel", "channel", globalChannel)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("global broadcast channel closed")
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Error("failed to unmarshal global broadcast message", "error", err)
					continue
				}
				handler(env)
			}
		}
	}()
}

// Ping checks Redis connectivity. Used by the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
