// Package evalcache keeps a durable record of when each notice was last
// evaluated and with what outcome, so unchanged notices are not re-fetched,
// re-embedded and re-scored within the configured window.
package evalcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Status is the closed set of evaluation outcomes.
type Status string

const (
	// StatusFilteredRule marks a notice excluded by the pre-filter before
	// the detail fetch.
	StatusFilteredRule Status = "filtered_rule"
	// StatusFilteredStructured marks a notice below the structured floor.
	StatusFilteredStructured Status = "filtered_structured"
	// StatusFilteredSemantic marks a notice below the semantic floor.
	StatusFilteredSemantic Status = "filtered_semantic"
	// StatusFilteredTotal marks a notice below the total floor.
	StatusFilteredTotal Status = "filtered_total"
	// StatusStored marks a notice that was persisted.
	StatusStored Status = "stored"
)

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	notice_id      TEXT PRIMARY KEY,
	last_evaluated TIMESTAMPTZ NOT NULL,
	last_updated   TEXT,
	status         TEXT NOT NULL,
	score          DOUBLE PRECISION,
	semantic_score DOUBLE PRECISION
)`

// Cache is the pgx-backed evaluation log. A zero window disables skipping
// entirely; records are still written so a later run with a window benefits.
type Cache struct {
	pool   *pgxpool.Pool
	window time.Duration
	logger *zap.Logger

	now func() time.Time
}

func New(pool *pgxpool.Pool, window time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		pool:   pool,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureSchema creates the evaluations table if needed.
func (c *Cache) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create evaluations table: %w", err)
	}
	return nil
}

// ShouldSkip reports whether the notice was evaluated recently enough, and
// against the same upstream version, to skip re-evaluation. Unknown notices
// and notices whose upstream last-updated value changed are always
// re-evaluated, regardless of how recent the previous evaluation was.
func (c *Cache) ShouldSkip(ctx context.Context, noticeID, upstreamUpdated string) (bool, error) {
	if c.window <= 0 {
		return false, nil
	}

	var lastEvaluated time.Time
	var storedUpdated *string
	err := c.pool.QueryRow(ctx,
		`SELECT last_evaluated, last_updated FROM evaluations WHERE notice_id = $1`,
		noticeID,
	).Scan(&lastEvaluated, &storedUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup evaluation for %s: %w", noticeID, err)
	}

	stored := ""
	if storedUpdated != nil {
		stored = *storedUpdated
	}

	return skipDecision(lastEvaluated, stored, upstreamUpdated, c.now(), c.window), nil
}

// Record upserts the evaluation outcome for the notice. Keyed by notice id:
// repeated evaluations update the single row, never duplicate it.
func (c *Cache) Record(ctx context.Context, noticeID string, status Status, score float64, semanticScore *float64, upstreamUpdated string) error {
	normalized := normalizeUpstream(upstreamUpdated)

	var updated *string
	if normalized != "" {
		updated = &normalized
	}

	_, err := c.pool.Exec(ctx,
		`INSERT INTO evaluations (notice_id, last_evaluated, last_updated, status, score, semantic_score)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (notice_id) DO UPDATE SET
			last_evaluated = EXCLUDED.last_evaluated,
			last_updated   = EXCLUDED.last_updated,
			status         = EXCLUDED.status,
			score          = EXCLUDED.score,
			semantic_score = EXCLUDED.semantic_score`,
		noticeID, c.now().UTC(), updated, string(status), score, semanticScore,
	)
	if err != nil {
		return fmt.Errorf("record evaluation for %s: %w", noticeID, err)
	}

	c.logger.Debug("evaluation recorded",
		zap.String("notice_id", noticeID),
		zap.String("status", string(status)),
		zap.Float64("score", score),
	)

	return nil
}
