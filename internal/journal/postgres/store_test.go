package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/livetutor/internal/journal"
	"github.com/MrWong99/livetutor/internal/journal/postgres"
	"github.com/MrWong99/livetutor/internal/transcript"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if LIVETUTOR_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LIVETUTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIVETUTOR_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a Store on a freshly dropped schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS session_entries CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func sampleTurn(turnID string, at time.Time) (user, model transcript.Entry) {
	user = transcript.Entry{ID: turnID + "-user", TurnID: turnID, Role: transcript.RoleUser, Text: "Quiero un café", At: at}
	model = transcript.Entry{ID: turnID + "-model", TurnID: turnID, Role: transcript.RoleModel, Text: "Claro, ¿con leche?", At: at}
	return user, model
}

func TestStore_AppendAndEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Microsecond)
	user, model := sampleTurn("t1", at)

	for _, e := range []transcript.Entry{user, model, user} {
		if err := store.Append(ctx, "s1", e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].ID != user.ID || got[1].ID != model.ID {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if !got[0].At.Equal(at) || got[0].Translated {
		t.Errorf("first entry = %+v", got[0])
	}

	empty, err := store.Entries(ctx, "nobody")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Entries(unknown) = %v, want empty non-nil slice", empty)
	}
}

func TestStore_SetTranslation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user, _ := sampleTurn("t1", time.Now())
	if err := store.Append(ctx, "s1", user); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := store.SetTranslation(ctx, "s1", user.ID, "I want a coffee"); err != nil {
		t.Fatalf("SetTranslation: %v", err)
	}
	if err := store.SetTranslation(ctx, "s1", user.ID, "again"); !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("second SetTranslation err = %v, want ErrNotFound", err)
	}

	got, err := store.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if !got[0].Translated || got[0].Translation != "I want a coffee" {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestStore_Search(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user, model := sampleTurn("t1", time.Now())
	_ = store.Append(ctx, "s1", user)
	_ = store.Append(ctx, "s1", model)

	got, err := store.Search(ctx, "café", journal.SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != user.ID {
		t.Errorf("Search = %+v", got)
	}

	got, err = store.Search(ctx, "leche", journal.SearchOpts{Role: transcript.RoleUser})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("role filter returned %+v", got)
	}
}

func TestStore_Ping(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
