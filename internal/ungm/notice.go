package ungm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NoticeSummary is the shape of a single item in a search page. Only the
// fields needed for the skip decision and the detail fetch are decoded.
type NoticeSummary struct {
	ID          string `json:"id"`
	NoticeID    string `json:"noticeId"`
	Title       string `json:"title"`
	Agency      string `json:"agency"`
	Deadline    string `json:"deadline"`
	LastUpdated string `json:"lastUpdatedDate"`
}

// Key returns the notice identifier, falling back to the alternate id field
// some catalog responses use. Empty when the item carries no usable id.
func (s *NoticeSummary) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.NoticeID
}

// Notice is the full catalog record. Optional fields stay empty when the
// upstream payload omits them; an empty Countries list means no geography
// data is available and no geography filtering applies.
type Notice struct {
	ID                  string      `json:"id"`
	NoticeID            string      `json:"noticeId"`
	Title               string      `json:"title"`
	Summary             string      `json:"summary"`
	Description         string      `json:"description"`
	ProcurementCategory string      `json:"procurementCategory"`
	ProcurementType     string      `json:"procurementType"`
	Agency              string      `json:"agency"`
	Status              string      `json:"status"`
	Deadline            string      `json:"deadline"`
	PublishDate         string      `json:"publishDate"`
	LastUpdated         string      `json:"lastUpdatedDate"`
	Budget              *Budget     `json:"budget"`
	BudgetMin           *float64    `json:"budgetMin"`
	BudgetMax           *float64    `json:"budgetMax"`
	Documents           []Document  `json:"documents"`
	UNSPSC              []UNSPSC    `json:"unspsc"`
	Countries           []Country   `json:"countries"`

	// Raw is the full upstream representation, preserved for persistence.
	Raw map[string]any `json:"-"`
}

type Budget struct {
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Currency string   `json:"currency"`
}

type Document struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type UNSPSC struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Country struct {
	Code string `json:"countryCode"`
	Name string `json:"country"`
}

// GetNotice fetches the full record for the given notice id.
func (c *Client) GetNotice(ctx context.Context, id string) (*Notice, error) {
	if id == "" {
		return nil, fmt.Errorf("notice id is required")
	}
	return c.getNotice(ctx, "get notice", fmt.Sprintf("%s/%s", noticeGetPath, id))
}

// GetNoticeByKey fetches the full record addressed by its public notice key.
func (c *Client) GetNoticeByKey(ctx context.Context, key string) (*Notice, error) {
	if key == "" {
		return nil, fmt.Errorf("notice key is required")
	}
	return c.getNotice(ctx, "get notice by key", fmt.Sprintf("%s/%s", noticeByKeyPath, key))
}

func (c *Client) getNotice(ctx context.Context, op, path string) (*Notice, error) {
	var notice Notice
	data, err := c.getJSON(ctx, op, path, &notice)
	if err != nil {
		return nil, err
	}

	// Keep the untouched upstream payload alongside the typed view.
	raw := make(map[string]any)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &RequestError{Op: op, Err: fmt.Errorf("decode raw payload: %w", err)}
	}
	notice.Raw = raw

	return &notice, nil
}

// Key returns the notice identifier with the same fallback as summaries.
func (n *Notice) Key() string {
	if n.ID != "" {
		return n.ID
	}
	return n.NoticeID
}

// BodyText returns the text scoring matches against: the summary when
// present, otherwise the description.
func (n *Notice) BodyText() string {
	if strings.TrimSpace(n.Summary) != "" {
		return n.Summary
	}
	return n.Description
}

// DeadlineTime parses the deadline as either a full timestamp or a bare
// date, in UTC. The second result is false when absent or unparseable.
func (n *Notice) DeadlineTime() (time.Time, bool) {
	return parseFlexibleTime(n.Deadline)
}

// PublishTime parses the publish timestamp.
func (n *Notice) PublishTime() (time.Time, bool) {
	return parseFlexibleTime(n.PublishDate)
}

// DaysToDeadline returns whole days between now and the deadline, negative
// when the deadline has passed. False when the notice has no deadline.
func (n *Notice) DaysToDeadline(now time.Time) (int, bool) {
	deadline, ok := n.DeadlineTime()
	if !ok {
		return 0, false
	}
	return int(deadline.Sub(now).Hours() / 24), true
}

// CountryCodes returns the set of non-empty country codes on the notice.
func (n *Notice) CountryCodes() map[string]struct{} {
	codes := make(map[string]struct{}, len(n.Countries))
	for _, country := range n.Countries {
		if country.Code != "" {
			codes[country.Code] = struct{}{}
		}
	}
	return codes
}

// CountryNames returns display names for the notice's countries, falling
// back to the code when the name is missing. Order is preserved, duplicates
// dropped.
func (n *Notice) CountryNames() []string {
	seen := make(map[string]struct{}, len(n.Countries))
	names := make([]string, 0, len(n.Countries))
	for _, country := range n.Countries {
		name := country.Name
		if name == "" {
			name = country.Code
		}
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// BudgetRange resolves the monetary range from either the nested budget
// object or the flat fields. False unless both bounds are present.
func (n *Notice) BudgetRange() (min, max float64, ok bool) {
	minVal := n.BudgetMin
	maxVal := n.BudgetMax
	if n.Budget != nil {
		if n.Budget.Min != nil {
			minVal = n.Budget.Min
		}
		if n.Budget.Max != nil {
			maxVal = n.Budget.Max
		}
	}
	if minVal == nil || maxVal == nil {
		return 0, 0, false
	}
	return *minVal, *maxVal, true
}

// Currency returns the budget currency if any.
func (n *Notice) Currency() string {
	if n.Budget != nil {
		return n.Budget.Currency
	}
	return ""
}

func parseFlexibleTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
