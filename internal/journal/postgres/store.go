package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/livetutor/internal/journal"
	"github.com/MrWong99/livetutor/internal/transcript"
)

var _ journal.Store = (*Store)(nil)

// Store is a [journal.Store] backed by PostgreSQL. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements [journal.Store].
func (s *Store) Append(ctx context.Context, sessionID string, e transcript.Entry) error {
	const q = `
		INSERT INTO session_entries
		    (session_id, entry_id, turn_id, role, text, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, entry_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, q,
		sessionID,
		e.ID,
		e.TurnID,
		string(e.Role),
		e.Text,
		e.At,
	)
	if err != nil {
		return fmt.Errorf("journal store: append: %w", err)
	}
	return nil
}

// SetTranslation implements [journal.Store]. Only untranslated entries are
// updated; anything else reports [journal.ErrNotFound].
func (s *Store) SetTranslation(ctx context.Context, sessionID, entryID, translation string) error {
	const q = `
		UPDATE session_entries
		SET    translation = $3
		WHERE  session_id = $1
		  AND  entry_id   = $2
		  AND  translation IS NULL`

	tag, err := s.pool.Exec(ctx, q, sessionID, entryID, translation)
	if err != nil {
		return fmt.Errorf("journal store: set translation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("journal store: set translation %q: %w", entryID, journal.ErrNotFound)
	}
	return nil
}

// Entries implements [journal.Store].
func (s *Store) Entries(ctx context.Context, sessionID string) ([]transcript.Entry, error) {
	const q = `
		SELECT entry_id, turn_id, role, text, translation, timestamp
		FROM   session_entries
		WHERE  session_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("journal store: entries: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [journal.Store] with PostgreSQL full-text search. The
// query goes through plainto_tsquery so no operator syntax is needed.
func (s *Store) Search(ctx context.Context, query string, opts journal.SearchOpts) ([]transcript.Entry, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('simple', text) @@ plainto_tsquery('simple', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Role != "" {
		conditions = append(conditions, "role = "+next(string(opts.Role)))
	}

	q := "SELECT entry_id, turn_id, role, text, translation, timestamp\n" +
		"FROM   session_entries\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY seq"

	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal store: search: %w", err)
	}
	return collectEntries(rows)
}

// collectEntries scans pgx rows into transcript entries.
func collectEntries(rows pgx.Rows) ([]transcript.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Entry, error) {
		var (
			e           transcript.Entry
			role        string
			translation *string
		)
		if err := row.Scan(&e.ID, &e.TurnID, &role, &e.Text, &translation, &e.At); err != nil {
			return transcript.Entry{}, err
		}
		e.Role = transcript.Role(role)
		if translation != nil {
			e.Translation = *translation
			e.Translated = true
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	return entries, nil
}
