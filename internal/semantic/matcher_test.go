package semantic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type stubEmbedder struct {
	vector   []float32
	err      error
	calls    int
	lastText string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	s.lastText = text
	return s.vector, s.err
}

type stubIndex struct {
	matches  []Match
	err      error
	calls    int
	lastTopK int
}

func (s *stubIndex) Query(_ context.Context, _ []float32, topK int) ([]Match, error) {
	s.calls++
	s.lastTopK = topK
	return s.matches, s.err
}

func TestMatchBuildsQueryText(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.1, 0.2}}
	index := &stubIndex{matches: []Match{{Score: 0.9, SourceTitle: "Prior project"}}}
	matcher := NewMatcher(embedder, index, 3, zap.NewNop())

	matches, err := matcher.Match(context.Background(), "Title", "", "Description")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if embedder.lastText != "Title Description" {
		t.Fatalf("unexpected query text: %q", embedder.lastText)
	}
	if index.lastTopK != 3 {
		t.Fatalf("unexpected topK: %d", index.lastTopK)
	}
	if len(matches) != 1 || matches[0].SourceTitle != "Prior project" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestMatchEmptyTextSkipsRemoteCalls(t *testing.T) {
	embedder := &stubEmbedder{}
	index := &stubIndex{}
	matcher := NewMatcher(embedder, index, 0, zap.NewNop())

	matches, err := matcher.Match(context.Background(), "", "   ", "\t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches != nil {
		t.Fatalf("expected no matches, got %+v", matches)
	}
	if embedder.calls != 0 || index.calls != 0 {
		t.Fatalf("expected no remote calls, got embed=%d query=%d", embedder.calls, index.calls)
	}
}

func TestMatchSurfacesEmbedderFailure(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("quota exceeded")}
	index := &stubIndex{}
	matcher := NewMatcher(embedder, index, 5, zap.NewNop())

	_, err := matcher.Match(context.Background(), "Title", "", "")
	if err == nil {
		t.Fatalf("expected error from embedder")
	}
	if index.calls != 0 {
		t.Fatalf("index must not be queried when embedding fails")
	}
}

func TestIndexClientQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Api-Key"); got != "index-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		w.Write([]byte(`{"matches": [
			{"id": "c1", "score": 0.87, "metadata": {
				"source_title": "Cold chain evaluation",
				"source_url": "https://example.org/p1",
				"source_type": "publication",
				"doc_id": "d1",
				"chunk_index": "2",
				"chunk_text": "We delivered cold chain logistics..."
			}},
			{"id": "c2", "metadata": {"source_title": "Unscored match"}}
		]}`))
	}))
	defer server.Close()

	client := NewIndexClient(server.URL, "index-key", "")

	matches, err := client.Query(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Score != 0.87 || matches[0].SourceTitle != "Cold chain evaluation" {
		t.Fatalf("unexpected first match: %+v", matches[0])
	}
	// A match without a score defaults to 0.
	if matches[1].Score != 0 {
		t.Fatalf("expected defaulted score 0, got %v", matches[1].Score)
	}
}

func TestIndexClientBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewIndexClient(server.URL, "wrong", "")
	if _, err := client.Query(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}
