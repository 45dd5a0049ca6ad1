// Package events provides Redis pub/sub notification of invocation
// lifecycle transitions.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BV-BRC/tool-runner/internal/config"
)

// InvocationChannel is the Redis channel invocation events are published
// on.
const InvocationChannel = "invocation_events"

// Event types.
const (
	TypeStarted   = "invocation_started"
	TypeCompleted = "invocation_completed"
	TypeFailed    = "invocation_failed"
)

// Event is one invocation lifecycle notification.
type Event struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocation_id"`
	Tool         string `json:"tool,omitempty"`
	Image        string `json:"image,omitempty"`
	ExitCode     int    `json:"exit_code,omitempty"`
	Error        string `json:"error,omitempty"`
	Timestamp    int64  `json:"time"`
}

// Publisher publishes invocation events to Redis. A nil Publisher is a
// no-op, so callers need not branch on whether events are configured.
type Publisher struct {
	redis *redis.Client
}

// NewPublisher creates a publisher from the events configuration. Returns
// nil when events are disabled.
func NewPublisher(cfg config.EventsConfig) *Publisher {
	if !cfg.Enabled {
		return nil
	}
	return &Publisher{
		redis: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Publish sends one event on the invocation channel.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, InvocationChannel, string(payload)).Err()
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.redis.Close()
}
