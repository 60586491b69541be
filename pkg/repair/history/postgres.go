package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Postgres stores records in a Postgres database.
type Postgres struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// OpenPostgres connects to dsn and applies embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	if err := migrate(ctx, sqlDB, goose.DialectPostgres, "postgres"); err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool, sqlDB: sqlDB}, nil
}

func (p *Postgres) Save(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	steps, err := json.Marshal(stepsOrEmpty(r.Steps))
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO repairs (id, session_id, device_id, device_model, fault, confidence, steps, completed_steps, success, user_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.SessionID, r.DeviceID, r.DeviceModel, r.Fault, r.Confidence,
		steps, r.CompletedSteps, r.Success, r.UserID, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert repair: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	query := `SELECT id::text, session_id, device_id, device_model, fault, confidence, steps, completed_steps, success, user_id, created_at FROM repairs`
	args := pgx.NamedArgs{"limit": opts.limit()}
	var where []string
	if id := strings.TrimSpace(opts.DeviceID); id != "" {
		where = append(where, `device_id = @device_id`)
		args["device_id"] = id
	}
	if model := strings.TrimSpace(opts.DeviceModel); model != "" {
		where = append(where, `device_model = @model`)
		args["model"] = model
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id LIMIT @limit`

	rows, err := p.pool.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("list repairs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			r     Record
			steps []byte
		)
		if err := row.Scan(&r.ID, &r.SessionID, &r.DeviceID, &r.DeviceModel, &r.Fault, &r.Confidence,
			&steps, &r.CompletedSteps, &r.Success, &r.UserID, &r.CreatedAt); err != nil {
			return Record{}, err
		}
		if err := json.Unmarshal(steps, &r.Steps); err != nil {
			return Record{}, fmt.Errorf("decode steps: %w", err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan repairs: %w", err)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	err := p.sqlDB.Close()
	p.pool.Close()
	return err
}
