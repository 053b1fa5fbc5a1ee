package evalcache

import (
	"strings"
	"time"
)

// skipDecision is the pure core of ShouldSkip. The stored and current
// upstream values are compared after normalization; a difference means the
// upstream record changed and the cache entry is stale. When either side is
// unknown the comparison is inconclusive and only recency decides.
func skipDecision(lastEvaluated time.Time, storedUpdated, currentUpdated string, now time.Time, window time.Duration) bool {
	stored := normalizeUpstream(storedUpdated)
	current := normalizeUpstream(currentUpdated)

	if stored != "" && current != "" && stored != current {
		return false
	}

	return now.Sub(lastEvaluated) < window
}

// normalizeUpstream canonicalizes an upstream last-updated value so that
// the same instant written as "2026-08-27T10:00:00Z" and
// "2026-08-27T12:00:00+02:00" compares equal. Unparseable values are
// compared as trimmed strings.
func normalizeUpstream(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return value
}
