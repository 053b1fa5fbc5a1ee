// Package semantic retrieves snippets of prior relevant work for a notice
// by embedding its text and querying a vector index. Failures here are
// never fatal for a pipeline run: callers degrade to structured-only
// scoring when a match attempt errors out.
package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tenderscout/tenderscout/internal/logger"
	"go.uber.org/zap"
)

const defaultTopK = 5

// Match is one ranked snippet with its similarity score in [0, 1] and
// provenance taken from the index metadata.
type Match struct {
	Score       float64
	SourceTitle string
	SourceURL   string
	SourceType  string
	DocID       string
	ChunkIndex  string
	ChunkText   string
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index returns the nearest neighbours of a vector, most similar first.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

type Matcher struct {
	embedder Embedder
	index    Index
	topK     int
	logger   *zap.Logger
}

func NewMatcher(embedder Embedder, index Index, topK int, log *zap.Logger) *Matcher {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Matcher{
		embedder: embedder,
		index:    index,
		topK:     topK,
		logger:   log,
	}
}

// Match builds the query text from the notice's title, summary and
// description (in that order, non-empty parts joined by a single space) and
// returns the top-K matches. An empty or all-whitespace query yields no
// matches and no remote calls.
func (m *Matcher) Match(ctx context.Context, title, summary, description string) ([]Match, error) {
	query := buildQueryText(title, summary, description)
	if query == "" {
		return nil, nil
	}

	m.logger.Debug("semantic query",
		zap.Int("top_k", m.topK),
		zap.String("query_preview", logger.Truncate(query, 120)),
	)

	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := m.index.Query(ctx, vector, m.topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	return matches, nil
}

func buildQueryText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		kept = append(kept, part)
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}
