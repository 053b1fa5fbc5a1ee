package ungm

import (
	"context"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const defaultPageSize = 100

// SearchParams narrow the catalog search to notices updated within the last
// Days days, fetched in pages of PageSize items.
type SearchParams struct {
	Days     int `mapstructure:"days"`
	PageSize int `mapstructure:"page-size"`
}

type searchRequest struct {
	LastUpdatedDateFrom string     `json:"lastUpdatedDateFrom"`
	PageSize            int        `json:"pageSize"`
	PageNumber          int        `json:"pageNumber"`
	Sort                searchSort `json:"sort"`
}

type searchSort struct {
	Name  string `json:"name"`
	Order string `json:"order"`
}

type searchResponse struct {
	Items      []map[string]any `json:"items"`
	TotalItems int              `json:"totalItems"`
}

// Search returns summaries of all notices updated within the window,
// most-recently-updated first as reported by the catalog. Pagination
// continues while the server-reported total exceeds the items collected and
// pages keep coming back non-empty.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]*NoticeSummary, error) {
	days := params.Days
	if days <= 0 {
		days = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	request := searchRequest{
		LastUpdatedDateFrom: since.Format(time.RFC3339),
		PageSize:            pageSize,
		PageNumber:          1,
		Sort:                searchSort{Name: "lastUpdatedDate", Order: "desc"},
	}

	var collected []map[string]any
	for {
		var page searchResponse
		if err := c.postJSON(ctx, "search notices", noticeSearchPath, request, &page); err != nil {
			return nil, err
		}

		collected = append(collected, page.Items...)

		c.logger.Debug("search page received",
			zap.Int("page", request.PageNumber),
			zap.Int("items", len(page.Items)),
			zap.Int("total", page.TotalItems),
		)

		if len(collected) >= page.TotalItems || len(page.Items) == 0 {
			break
		}
		request.PageNumber++
	}

	return decodeSummaries(collected)
}

func decodeSummaries(items []map[string]any) ([]*NoticeSummary, error) {
	var summaries []*NoticeSummary

	cfg := &mapstructure.DecoderConfig{
		Result:           &summaries,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, err
	}

	return summaries, nil
}
