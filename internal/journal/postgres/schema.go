// Package postgres provides a PostgreSQL-backed transcript journal.
//
// Entries live in a single session_entries table with a GIN full-text index
// over the original text. The pool is shared by every session; [Migrate] runs
// on construction.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, sessionID, entry)
//	_ = store.SetTranslation(ctx, sessionID, entry.ID, "Good afternoon")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessionEntries = `
CREATE TABLE IF NOT EXISTS session_entries (
    seq          BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    entry_id     TEXT         NOT NULL,
    turn_id      TEXT         NOT NULL,
    role         TEXT         NOT NULL,
    text         TEXT         NOT NULL,
    translation  TEXT,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (session_id, entry_id)
);

CREATE INDEX IF NOT EXISTS idx_session_entries_session_seq
    ON session_entries (session_id, seq);

CREATE INDEX IF NOT EXISTS idx_session_entries_fts
    ON session_entries USING GIN (to_tsvector('simple', text));
`

// Migrate creates the journal table and indexes. It is idempotent and safe to
// call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSessionEntries); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
