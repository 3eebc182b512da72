package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ethereumSource/internal/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS chain_events (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL,
		filter TEXT NOT NULL,
		record JSONB NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS chain_events_run_id_idx ON chain_events (run_id);
`

// Store appends forwarded records to the chain_events table.
type Store struct {
	pool   *pgxpool.Pool
	runID  string
	filter string
}

// NewStore connects to dsn. Rows are stamped with runID and filter.
func NewStore(ctx context.Context, dsn, runID, filter string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, runID: runID, filter: filter}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the chain_events table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// OnEvent inserts one row per record.
func (s *Store) OnEvent(ctx context.Context, record model.Record, _ []string) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chain_events (run_id, filter, record, received_at)
		VALUES ($1, $2, $3::jsonb, now())
	`, s.runID, s.filter, string(data))
	if err != nil {
		return fmt.Errorf("insert chain event: %w", err)
	}
	return nil
}
