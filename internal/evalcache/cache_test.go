package evalcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func TestSkipDecision(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	cases := []struct {
		name          string
		lastEvaluated time.Time
		stored        string
		current       string
		want          bool
	}{
		{
			name:          "recent evaluation with matching upstream skips",
			lastEvaluated: now.Add(-2 * time.Hour),
			stored:        "2026-08-27T10:00:00Z",
			current:       "2026-08-27T10:00:00Z",
			want:          true,
		},
		{
			name:          "upstream change forces re-evaluation even when recent",
			lastEvaluated: now.Add(-2 * time.Hour),
			stored:        "2026-08-27T10:00:00Z",
			current:       "2026-08-28T09:00:00Z",
			want:          false,
		},
		{
			name:          "evaluation older than the window expires",
			lastEvaluated: now.Add(-25 * time.Hour),
			stored:        "2026-08-27T10:00:00Z",
			current:       "2026-08-27T10:00:00Z",
			want:          false,
		},
		{
			name:          "evaluation exactly at the window boundary expires",
			lastEvaluated: now.Add(-window),
			stored:        "",
			current:       "",
			want:          false,
		},
		{
			name:          "missing upstream values fall back to recency",
			lastEvaluated: now.Add(-time.Hour),
			stored:        "",
			current:       "2026-08-27T10:00:00Z",
			want:          true,
		},
		{
			name:          "equivalent instants in different zones compare equal",
			lastEvaluated: now.Add(-time.Hour),
			stored:        "2026-08-27T10:00:00Z",
			current:       "2026-08-27T12:00:00+02:00",
			want:          true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := skipDecision(tc.lastEvaluated, tc.stored, tc.current, now, window)
			if got != tc.want {
				t.Fatalf("skipDecision = %v, want %v", got, tc.want)
			}
		})
	}
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TENDERSCOUT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TENDERSCOUT_TEST_DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestCacheRoundtrip(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)

	cache := New(pool, 24*time.Hour, zap.NewNop())
	if err := cache.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	id := "itest-" + time.Now().Format("20060102150405.000000000")
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM evaluations WHERE notice_id = $1`, id)
	})

	updated := "2026-08-27T10:00:00Z"

	// Never seen: must evaluate.
	skip, err := cache.ShouldSkip(ctx, id, updated)
	if err != nil {
		t.Fatalf("should skip: %v", err)
	}
	if skip {
		t.Fatalf("never-seen notice must not be skipped")
	}

	sim := 0.8
	if err := cache.Record(ctx, id, StatusStored, 72, &sim, updated); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Within the window with matching upstream: skip.
	skip, err = cache.ShouldSkip(ctx, id, updated)
	if err != nil {
		t.Fatalf("should skip: %v", err)
	}
	if !skip {
		t.Fatalf("recent matching evaluation must be skipped")
	}

	// Upstream changed: the cache invalidates itself.
	skip, err = cache.ShouldSkip(ctx, id, "2026-08-28T11:00:00Z")
	if err != nil {
		t.Fatalf("should skip: %v", err)
	}
	if skip {
		t.Fatalf("changed upstream value must force re-evaluation")
	}

	// Repeated records update the single row, never duplicate it.
	if err := cache.Record(ctx, id, StatusFilteredTotal, 60, nil, updated); err != nil {
		t.Fatalf("record again: %v", err)
	}

	var count int
	var status string
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM evaluations WHERE notice_id = $1`, id,
	).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 evaluation row, got %d", count)
	}
	if err := pool.QueryRow(ctx,
		`SELECT status FROM evaluations WHERE notice_id = $1`, id,
	).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != string(StatusFilteredTotal) {
		t.Fatalf("expected updated status, got %q", status)
	}
}

func TestCacheDisabledWindow(t *testing.T) {
	// With a zero window ShouldSkip never consults the store, so a nil
	// pool is safe.
	cache := New(nil, 0, zap.NewNop())

	skip, err := cache.ShouldSkip(context.Background(), "anything", "2026-08-27T10:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skip {
		t.Fatalf("disabled cache must never skip")
	}
}
