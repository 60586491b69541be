// Package history stores a record of every finished repair session that
// produced at least one step.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vango-go/midas/pkg/repair/checklist"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// ErrInvalidRecord is returned by Save for records missing required fields.
var ErrInvalidRecord = errors.New("history: invalid record")

// Record is one finished repair.
type Record struct {
	ID             string           `json:"id"`
	SessionID      string           `json:"session_id"`
	DeviceID       string           `json:"device_id,omitempty"`
	DeviceModel    string           `json:"device_model,omitempty"`
	Fault          string           `json:"fault,omitempty"`
	Confidence     int              `json:"confidence"` // milli-units, 0..1000
	Steps          []checklist.Step `json:"steps"`
	CompletedSteps int              `json:"completed_steps"`
	Success        bool             `json:"success"`
	UserID         string           `json:"user_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (r Record) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidRecord)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrInvalidRecord)
	}
	return nil
}

// ListOptions filters List. Empty filters match every record.
type ListOptions struct {
	Limit       int
	DeviceID    string
	DeviceModel string
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Store persists records.
type Store interface {
	Save(ctx context.Context, r Record) error
	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	Close() error
}

// Open picks a backend from dsn. postgres:// and postgresql:// URLs use
// Postgres; anything else is treated as a SQLite path, with an optional
// sqlite:// prefix.
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, errors.New("history: dsn is required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	fsys, err := fs.Sub(migrationsFS, "migrations/"+dir)
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
