package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const indexQueryTimeout = 30 * time.Second

// IndexClient queries a Pinecone-compatible vector index over HTTP.
type IndexClient struct {
	baseURL    string
	apiKey     string
	namespace  string
	HTTPClient *http.Client
}

func NewIndexClient(baseURL, apiKey, namespace string) *IndexClient {
	return &IndexClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		namespace: namespace,
		HTTPClient: &http.Client{
			Timeout: indexQueryTimeout,
		},
	}
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    *float64       `json:"score"`
		Metadata indexMetadata  `json:"metadata"`
	} `json:"matches"`
}

type indexMetadata struct {
	SourceTitle string `json:"source_title"`
	SourceURL   string `json:"source_url"`
	SourceType  string `json:"source_type"`
	DocID       string `json:"doc_id"`
	ChunkIndex  string `json:"chunk_index"`
	ChunkText   string `json:"chunk_text"`
}

// Query returns the topK nearest neighbours of the vector. A missing
// similarity score on a match defaults to 0.
func (c *IndexClient) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	body, err := json.Marshal(queryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		Namespace:       c.namespace,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vector index query: bad status %s", resp.Status)
	}

	var parsed queryResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode index response: %w", err)
	}

	matches := make([]Match, 0, len(parsed.Matches))
	for _, match := range parsed.Matches {
		score := 0.0
		if match.Score != nil {
			score = *match.Score
		}
		matches = append(matches, Match{
			Score:       score,
			SourceTitle: match.Metadata.SourceTitle,
			SourceURL:   match.Metadata.SourceURL,
			SourceType:  match.Metadata.SourceType,
			DocID:       match.Metadata.DocID,
			ChunkIndex:  match.Metadata.ChunkIndex,
			ChunkText:   match.Metadata.ChunkText,
		})
	}

	return matches, nil
}
