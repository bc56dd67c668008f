package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionIndex is the connection-pool-backed session/summary index. Obtain
// one via NewSessionIndex; Close releases the pool when the process shuts
// down (not per-session — the pool outlives any single live session).
type SessionIndex struct {
	pool *pgxpool.Pool
}

// NewSessionIndex connects to dsn and ensures its schema exists.
func NewSessionIndex(ctx context.Context, dsn string) (*SessionIndex, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persist/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist/postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &SessionIndex{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *SessionIndex) Close() {
	s.pool.Close()
}

// RecordSessionStart inserts a row for a newly started session.
func (s *SessionIndex) RecordSessionStart(ctx context.Context, sessionID, roomID, artifactDir string, startedAt time.Time) error {
	const q = `
		INSERT INTO sessions (session_id, room_id, started_at, artifact_dir)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, sessionID, roomID, startedAt, artifactDir); err != nil {
		return fmt.Errorf("persist/postgres: record session start: %w", err)
	}
	return nil
}

// RecordSessionEnd stamps a session's ended_at timestamp.
func (s *SessionIndex) RecordSessionEnd(ctx context.Context, sessionID string, endedAt time.Time) error {
	const q = `UPDATE sessions SET ended_at = $2 WHERE session_id = $1`
	if _, err := s.pool.Exec(ctx, q, sessionID, endedAt); err != nil {
		return fmt.Errorf("persist/postgres: record session end: %w", err)
	}
	return nil
}

// RecordSummary appends one analysis tick's headline fields for fast
// "latest card for room X" queries, without needing to scan JSONL.
func (s *SessionIndex) RecordSummary(ctx context.Context, sessionID, overview, vibeLevel string, confidence float64) error {
	const q = `
		INSERT INTO analysis_summaries (session_id, analysis_overview, vibe_level, confidence)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, q, sessionID, overview, vibeLevel, confidence); err != nil {
		return fmt.Errorf("persist/postgres: record summary: %w", err)
	}
	return nil
}
