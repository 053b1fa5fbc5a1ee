package ungm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type staticTokens struct{ token string }

func (s *staticTokens) Token(context.Context) (string, error) { return s.token, nil }

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(server.URL, &staticTokens{token: "test-token"}, zap.NewNop())
	client.retryBase = time.Millisecond
	client.retryCap = 4 * time.Millisecond

	return client
}

func searchHandler(t *testing.T, total, pageSize int, requests *int32) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)

		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header: %q", got)
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding search request: %v", err)
		}

		start := (req.PageNumber - 1) * pageSize
		items := make([]map[string]any, 0, pageSize)
		for i := start; i < total && i < start+pageSize; i++ {
			items = append(items, map[string]any{
				"id":              fmt.Sprintf("n-%03d", i),
				"title":           fmt.Sprintf("Notice %d", i),
				"lastUpdatedDate": "2026-08-27T10:00:00Z",
			})
		}

		json.NewEncoder(w).Encode(searchResponse{Items: items, TotalItems: total})
	})
}

func TestSearchPaginationTerminates(t *testing.T) {
	var requests int32
	client := newTestClient(t, searchHandler(t, 25, 10, &requests))

	summaries, err := client.Search(context.Background(), SearchParams{Days: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summaries) != 25 {
		t.Fatalf("expected 25 summaries, got %d", len(summaries))
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Fatalf("expected ceil(25/10)=3 page requests, got %d", got)
	}

	// Upstream order is preserved as received.
	if summaries[0].Key() != "n-000" || summaries[24].Key() != "n-024" {
		t.Fatalf("upstream ordering not preserved: first=%s last=%s",
			summaries[0].Key(), summaries[24].Key())
	}
}

func TestSearchSinglePage(t *testing.T) {
	var requests int32
	client := newTestClient(t, searchHandler(t, 4, 100, &requests))

	summaries, err := client.Search(context.Background(), SearchParams{Days: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summaries) != 4 {
		t.Fatalf("expected 4 summaries, got %d", len(summaries))
	}
	if requests != 1 {
		t.Fatalf("expected a single page request, got %d", requests)
	}
}

func TestSearchStopsOnEmptyPage(t *testing.T) {
	// A server that overstates totalItems must not loop forever.
	var requests int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		items := []map[string]any{}
		if n == 1 {
			items = append(items, map[string]any{"id": "n-1"})
		}
		json.NewEncoder(w).Encode(searchResponse{Items: items, TotalItems: 50})
	}))

	summaries, err := client.Search(context.Background(), SearchParams{Days: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if requests != 2 {
		t.Fatalf("expected pagination to stop after the empty page, got %d requests", requests)
	}
}

func TestRetryOnServerErrorAndRateLimit(t *testing.T) {
	var requests int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch atomic.AddInt32(&requests, 1) {
		case 1:
			http.Error(w, "boom", http.StatusInternalServerError)
		case 2:
			http.Error(w, "slow down", http.StatusTooManyRequests)
		default:
			json.NewEncoder(w).Encode(map[string]any{"id": "n-9", "title": "Recovered"})
		}
	}))

	notice, err := client.GetNotice(context.Background(), "n-9")
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if notice.ID != "n-9" {
		t.Fatalf("unexpected notice id: %q", notice.ID)
	}
	if requests != 3 {
		t.Fatalf("expected 3 attempts, got %d", requests)
	}
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	var requests int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	_, err := client.GetNotice(context.Background(), "n-1")
	if err == nil {
		t.Fatalf("expected error after retry exhaustion")
	}

	reqErr, ok := err.(*RequestError)
	if !ok {
		t.Fatalf("expected *RequestError, got %T", err)
	}
	if reqErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", reqErr.Status)
	}
	if requests != retryAttempts {
		t.Fatalf("expected %d attempts, got %d", retryAttempts, requests)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var requests int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "missing", http.StatusNotFound)
	}))

	_, err := client.GetNotice(context.Background(), "gone")
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if requests != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", requests)
	}
}
