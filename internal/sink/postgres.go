package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edupulse/lsexport/internal/record"
)

const conversationsSchema = `
	CREATE TABLE IF NOT EXISTS conversations (
		thread_id  TEXT PRIMARY KEY,
		doc        JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

const conversationsUpsert = `
	INSERT INTO conversations (thread_id, doc, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (thread_id)
	DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`

// PostgresStore upserts conversations as JSONB documents keyed by thread_id.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects, pings, and ensures the conversations table.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, conversationsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure conversations table: %w", err)
	}

	logger.Info("connected to Postgres")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Upsert writes each run, replacing any previously stored document with the
// same thread_id. Runs without a thread_id are counted as errors; individual
// failures never abort the batch.
func (s *PostgresStore) Upsert(ctx context.Context, runs []record.Run) (upserted, errors int) {
	for _, run := range runs {
		threadID := run.ThreadID()
		if threadID == "" {
			s.logger.Warn("skipping run without thread_id")
			errors++
			continue
		}

		doc, err := json.Marshal(run)
		if err != nil {
			s.logger.Error("failed to marshal conversation", "thread_id", threadID, "error", err)
			errors++
			continue
		}

		if _, err := s.pool.Exec(ctx, conversationsUpsert, threadID, doc); err != nil {
			s.logger.Error("failed to upsert conversation", "thread_id", threadID, "error", err)
			errors++
			continue
		}
		upserted++
	}

	s.logger.Info("postgres upsert finished", "upserted", upserted, "errors", errors)
	return upserted, errors
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
