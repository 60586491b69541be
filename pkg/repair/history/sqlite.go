package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/vango-go/midas/pkg/repair/checklist"
)

// SQLite stores records in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens path and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Save(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	steps, err := json.Marshal(stepsOrEmpty(r.Steps))
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO repairs (id, session_id, device_id, device_model, fault, confidence, steps, completed_steps, success, user_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.DeviceID, r.DeviceModel, r.Fault, r.Confidence,
		string(steps), r.CompletedSteps, r.Success, r.UserID, r.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert repair: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	query := `SELECT id, session_id, device_id, device_model, fault, confidence, steps, completed_steps, success, user_id, created_at FROM repairs`
	var (
		where []string
		args  []any
	)
	if id := strings.TrimSpace(opts.DeviceID); id != "" {
		where = append(where, `device_id = ?`)
		args = append(args, id)
	}
	if model := strings.TrimSpace(opts.DeviceModel); model != "" {
		where = append(where, `device_model = ?`)
		args = append(args, model)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, opts.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list repairs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			steps   string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.DeviceID, &r.DeviceModel, &r.Fault, &r.Confidence,
			&steps, &r.CompletedSteps, &r.Success, &r.UserID, &created); err != nil {
			return nil, fmt.Errorf("scan repair: %w", err)
		}
		if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func stepsOrEmpty(steps []checklist.Step) []checklist.Step {
	if steps == nil {
		return []checklist.Step{}
	}
	return steps
}
