// Package pipeline drives one run of the tender evaluation flow: search the
// catalog, then walk each notice through cache check, pre-filter, structured
// scoring, an optional semantic lookup, and the final store-or-filter
// decision. Notices are processed sequentially; the cache and repository are
// the only shared mutable state and every write to them is a single upsert.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tenderscout/tenderscout/internal/evalcache"
	"github.com/tenderscout/tenderscout/internal/scoring"
	"github.com/tenderscout/tenderscout/internal/semantic"
	"github.com/tenderscout/tenderscout/internal/storage"
	"github.com/tenderscout/tenderscout/internal/ungm"
)

// Catalog is the upstream notice source.
type Catalog interface {
	Search(ctx context.Context, params ungm.SearchParams) ([]*ungm.NoticeSummary, error)
	GetNotice(ctx context.Context, id string) (*ungm.Notice, error)
}

// Cache decides whether a notice needs re-evaluation and records outcomes.
type Cache interface {
	ShouldSkip(ctx context.Context, noticeID, upstreamUpdated string) (bool, error)
	Record(ctx context.Context, noticeID string, status evalcache.Status, score float64, semanticScore *float64, upstreamUpdated string) error
}

// Matcher retrieves similar prior work for a notice.
type Matcher interface {
	Match(ctx context.Context, title, summary, description string) ([]semantic.Match, error)
}

// Repository persists accepted notices.
type Repository interface {
	Upsert(ctx context.Context, notice *storage.StoredNotice) error
}

// Policy holds the run's accept/reject thresholds. The structured minimum
// doubles as the gate for the semantic lookup: a notice scoring below it on
// structured signals alone never pays for an embedding call.
type Policy struct {
	StoreAll              bool    `mapstructure:"store-all"`
	StructuredMinScore    int     `mapstructure:"structured-min-score"`
	SemanticMinSimilarity float64 `mapstructure:"semantic-min-similarity"`
	TotalMinScore         int     `mapstructure:"total-min-score"`
}

type Pipeline struct {
	catalog Catalog
	cache   Cache
	matcher Matcher
	repo    Repository
	profile *scoring.Profile
	policy  Policy
	logger  *zap.Logger

	now func() time.Time
}

// New builds a pipeline. A nil matcher disables semantic scoring entirely;
// every notice then takes the structured-only path.
func New(catalog Catalog, cache Cache, matcher Matcher, repo Repository,
	profile *scoring.Profile, policy Policy, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		catalog: catalog,
		cache:   cache,
		matcher: matcher,
		repo:    repo,
		profile: profile,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// Run searches the catalog and evaluates every returned notice. Search
// failure is fatal; per-notice fetch and persistence failures are counted
// and logged, and the run continues with the next notice.
func (p *Pipeline) Run(ctx context.Context, params ungm.SearchParams) (*Result, error) {
	summaries, err := p.catalog.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search notices: %w", err)
	}

	result := &Result{Searched: len(summaries)}
	p.logger.Info("search complete", zap.Int("notices", len(summaries)))

	for _, summary := range summaries {
		key := summary.Key()
		if key == "" {
			p.logger.Warn("search item without id, skipping", zap.String("title", summary.Title))
			result.Failed++
			continue
		}
		p.evaluate(ctx, key, summary, result)
	}

	sort.SliceStable(result.Stored, func(i, j int) bool {
		return result.Stored[i].FitScore > result.Stored[j].FitScore
	})

	return result, nil
}

func (p *Pipeline) evaluate(ctx context.Context, key string, summary *ungm.NoticeSummary, result *Result) {
	log := p.logger.With(zap.String("notice_id", key))

	skip, err := p.cache.ShouldSkip(ctx, key, summary.LastUpdated)
	if err != nil {
		// A broken cache read costs one re-evaluation, nothing worse.
		log.Warn("cache lookup failed, re-evaluating", zap.Error(err))
	}
	if skip {
		log.Debug("recently evaluated, skipping")
		result.Skipped++
		return
	}

	notice, err := p.catalog.GetNotice(ctx, key)
	if err != nil {
		log.Error("detail fetch failed", zap.Error(err))
		result.Failed++
		return
	}

	now := p.now()
	upstreamUpdated := notice.LastUpdated
	if upstreamUpdated == "" {
		upstreamUpdated = summary.LastUpdated
	}

	if scoring.ShouldFilter(notice, p.profile, now) {
		log.Debug("excluded by pre-filter")
		p.record(ctx, log, key, evalcache.StatusFilteredRule, 0, nil, upstreamUpdated)
		result.Filtered++
		return
	}

	structured := scoring.Score(notice, p.profile, nil, now)

	var similarity *float64
	var matches []semantic.Match
	if p.matcher != nil && structured >= p.policy.StructuredMinScore {
		matches, err = p.matcher.Match(ctx, notice.Title, notice.Summary, notice.Description)
		if err != nil {
			log.Warn("semantic match unavailable, structured-only scoring", zap.Error(err))
			matches = nil
		} else {
			top := 0.0
			if len(matches) > 0 {
				top = matches[0].Score
			}
			similarity = &top
		}
	}

	total := structured
	if similarity != nil {
		total = scoring.Score(notice, p.profile, similarity, now)
	}

	log.Debug("scored",
		zap.Int("structured", structured),
		zap.Int("total", total),
		zap.Float64p("similarity", similarity))

	if status, filtered := p.filterStatus(structured, total, similarity); filtered {
		p.record(ctx, log, key, status, float64(total), similarity, upstreamUpdated)
		log.Info("filtered", zap.String("status", string(status)), zap.Int("score", total))
		result.Filtered++
		return
	}

	explanation := buildExplanation(notice, p.profile, matches, total)
	stored, err := p.toStored(notice, structured, total, similarity, matches, explanation)
	if err != nil {
		log.Error("notice conversion failed", zap.Error(err))
		result.Failed++
		return
	}

	if err := p.repo.Upsert(ctx, stored); err != nil {
		// Not recorded in the cache either, so the next run retries it.
		log.Error("persist failed", zap.Error(err))
		result.Failed++
		return
	}
	p.record(ctx, log, key, evalcache.StatusStored, float64(total), similarity, upstreamUpdated)

	log.Info("stored", zap.Int("score", total), zap.String("title", notice.Title))
	result.Stored = append(result.Stored, stored)
}

// filterStatus applies the thresholds in their fixed order and reports the
// first one breached. Store-all mode accepts everything.
func (p *Pipeline) filterStatus(structured, total int, similarity *float64) (evalcache.Status, bool) {
	if p.policy.StoreAll {
		return "", false
	}
	if structured < p.policy.StructuredMinScore {
		return evalcache.StatusFilteredStructured, true
	}
	if similarity != nil && p.policy.SemanticMinSimilarity > 0 && *similarity < p.policy.SemanticMinSimilarity {
		return evalcache.StatusFilteredSemantic, true
	}
	if total < p.policy.TotalMinScore {
		return evalcache.StatusFilteredTotal, true
	}
	return "", false
}

func (p *Pipeline) record(ctx context.Context, log *zap.Logger, key string,
	status evalcache.Status, score float64, semanticScore *float64, upstreamUpdated string) {
	if err := p.cache.Record(ctx, key, status, score, semanticScore, upstreamUpdated); err != nil {
		log.Warn("cache record failed", zap.Error(err))
	}
}

// toStored maps the catalog record to its persisted shape. The raw payload
// is preserved as-is with the run's verdict fields added alongside it.
func (p *Pipeline) toStored(notice *ungm.Notice, structured, total int,
	similarity *float64, matches []semantic.Match, explanation string) (*storage.StoredNotice, error) {

	raw := make(map[string]any, len(notice.Raw)+5)
	for k, v := range notice.Raw {
		raw[k] = v
	}
	raw["fitScore"] = total
	raw["structuredScore"] = structured
	if similarity != nil {
		raw["semanticScore"] = *similarity
	}
	if len(matches) > 0 {
		raw["semanticMatches"] = matchSummaries(matches)
	}
	if explanation != "" {
		raw["fitExplanation"] = explanation
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal raw payload for %s: %w", notice.Key(), err)
	}

	stored := &storage.StoredNotice{
		Notice: storage.Notice{
			ID:                  notice.Key(),
			Title:               notice.Title,
			Summary:             notice.Summary,
			Description:         notice.Description,
			ProcurementCategory: notice.ProcurementCategory,
			ProcurementType:     notice.ProcurementType,
			Agency:              notice.Agency,
			Status:              notice.Status,
			Currency:            notice.Currency(),
			Raw:                 rawJSON,
			FitScore:            total,
		},
	}

	if deadline, ok := notice.DeadlineTime(); ok {
		stored.Deadline = &deadline
	}
	if published, ok := notice.PublishTime(); ok {
		stored.PublishDate = &published
	}
	if min, max, ok := notice.BudgetRange(); ok {
		stored.BudgetMin = &min
		stored.BudgetMax = &max
	}

	for _, doc := range notice.Documents {
		stored.Documents = append(stored.Documents, storage.Document{
			URL:  doc.URL,
			Name: doc.Name,
			Type: doc.Type,
		})
	}
	for _, code := range notice.UNSPSC {
		stored.UNSPSC = append(stored.UNSPSC, storage.UNSPSC{
			Code:        code.Code,
			Description: code.Description,
		})
	}
	for _, country := range notice.Countries {
		stored.Countries = append(stored.Countries, storage.Country{
			Code: country.Code,
			Name: country.Name,
		})
	}

	return stored, nil
}

func matchSummaries(matches []semantic.Match) []map[string]any {
	out := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]any{
			"score":       m.Score,
			"sourceTitle": m.SourceTitle,
			"sourceUrl":   m.SourceURL,
			"sourceType":  m.SourceType,
			"docId":       m.DocID,
			"chunkIndex":  m.ChunkIndex,
		})
	}
	return out
}
