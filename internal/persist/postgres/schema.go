// Package postgres is an optional secondary sink for ArtifactPersister
// (C11): a session index and per-tick summary roll-up table, so a
// deployment can query "all sessions for a room" or "the latest
// analysis_overview" without scanning JSONL files. The JSONL files written
// by internal/persist remain the source of truth; this table is a query
// convenience, adapted from the teacher's pkg/memory/postgres session log.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id   TEXT         PRIMARY KEY,
    room_id      TEXT         NOT NULL,
    started_at   TIMESTAMPTZ  NOT NULL,
    ended_at     TIMESTAMPTZ,
    artifact_dir TEXT         NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_room_id ON sessions (room_id);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at);
`

const ddlSummaries = `
CREATE TABLE IF NOT EXISTS analysis_summaries (
    id                BIGSERIAL    PRIMARY KEY,
    session_id        TEXT         NOT NULL REFERENCES sessions (session_id) ON DELETE CASCADE,
    tick_ts           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    analysis_overview TEXT         NOT NULL DEFAULT '',
    vibe_level        TEXT         NOT NULL DEFAULT '',
    confidence        DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_summaries_session_id ON analysis_summaries (session_id);
CREATE INDEX IF NOT EXISTS idx_summaries_tick_ts ON analysis_summaries (tick_ts);
`

// Migrate creates the sessions and analysis_summaries tables if they don't
// already exist. Idempotent, safe to call on every deployment start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlSessions, ddlSummaries} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("persist/postgres: migrate: %w", err)
		}
	}
	return nil
}
