// Package journal persists invocation records for audit and status
// queries. The journal is an observer: the core runner never reads it.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BV-BRC/tool-runner/internal/config"
)

// Record statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when no record exists for an invocation ID.
var ErrNotFound = errors.New("journal: invocation not found")

// Record is one finished invocation.
type Record struct {
	InvocationID string            `bson:"invocation_id" json:"invocation_id"`
	Tool         string            `bson:"tool" json:"tool"`
	Image        string            `bson:"image" json:"image"`
	Argv         []string          `bson:"argv" json:"argv"`
	Status       string            `bson:"status" json:"status"`
	ExitCode     int               `bson:"exit_code" json:"exit_code"`
	Error        string            `bson:"error,omitempty" json:"error,omitempty"`
	Outputs      map[string]string `bson:"outputs,omitempty" json:"outputs,omitempty"`
	StartedAt    time.Time         `bson:"started_at" json:"started_at"`
	FinishedAt   time.Time         `bson:"finished_at" json:"finished_at"`
}

// Store persists invocation records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, invocationID string) (*Record, error)
	Close(ctx context.Context) error
}

// Open creates a store for the configured backend. An empty backend
// returns (nil, nil): journaling disabled.
func Open(cfg config.JournalConfig) (Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "mongo":
		return NewMongoStore(cfg.MongoURI, cfg.MongoDatabase)
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("journal: unknown backend %q", cfg.Backend)
	}
}
