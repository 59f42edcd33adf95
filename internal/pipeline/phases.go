package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/zeroecho/internal/analysis"
	"github.com/jonathan/zeroecho/internal/crawling"
	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/pipeline/steps"
	"github.com/jonathan/zeroecho/internal/registry"
	"github.com/jonathan/zeroecho/internal/scoring"
	"github.com/jonathan/zeroecho/internal/types"
)

// Classification labels, best first.
const (
	LabelFeatured = "featured"
	LabelStandard = "standard"
	LabelBrief    = "brief"
)

// Thresholds are the zero echo score cut-offs used by SCORE, CLASSIFY and PUBLISH.
type Thresholds struct {
	// WorthlessBelow sends lower-scoring articles to WORTHLESS during SCORE.
	WorthlessBelow float64
	FeaturedAt     float64
	StandardAt     float64
	// PublishAt is the minimum score for PUBLISHED; the rest are REJECTED.
	PublishAt float64
}

// DefaultThresholds returns the editorial defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WorthlessBelow: 3.0,
		FeaturedAt:     7.5,
		StandardAt:     5.0,
		PublishAt:      5.0,
	}
}

// Label returns the classification tier for a zero echo score.
func (t Thresholds) Label(zes float64) string {
	switch {
	case zes >= t.FeaturedAt:
		return LabelFeatured
	case zes >= t.StandardAt:
		return LabelStandard
	default:
		return LabelBrief
	}
}

var (
	errNoSources  = errors.New("no feeds or sections configured")
	errNoCrawler  = errors.New("no crawler configured")
	errNoAnalyzer = errors.New("no analysis client configured")
)

func (o *Orchestrator) collect(ctx context.Context, run *runState, t *tally) error {
	if o.cfg.Crawler == nil {
		return errNoCrawler
	}
	src := o.cfg.Sources
	if len(src.Feeds) == 0 && len(src.Sections) == 0 {
		return errNoSources
	}

	var entries []crawling.FeedEntry
	if len(src.Feeds) > 0 {
		found, feedErrs := o.cfg.Crawler.Discover(ctx, src.Feeds)
		entries = append(entries, found...)
		for _, err := range feedErrs {
			t.note(err)
		}
	}
	if len(src.Sections) > 0 {
		found, sectionErrs := o.cfg.Crawler.DiscoverSections(ctx, src.Sections)
		entries = append(entries, found...)
		for _, err := range sectionErrs {
			t.note(err)
		}
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil
		}
		id := types.ArticleID(entry.URL)
		if seen[id] {
			continue
		}
		seen[id] = true

		if _, err := o.cfg.Store.Get(ctx, id); err == nil {
			t.skip()
			continue
		} else if !errors.Is(err, registry.ErrNotFound) {
			t.fail(id, err)
			continue
		}
		if t.result.Succeeded >= run.limit {
			t.skip()
			continue
		}
		if run.dryRun {
			t.succeed()
			continue
		}

		article := types.NewArticle(entry.URL)
		article.Title = entry.Title
		article.Source = entry.Source
		article.PublishedAt = entry.PublishedAt
		if _, err := o.cfg.Store.Upsert(ctx, article); err != nil {
			t.fail(id, err)
			continue
		}
		t.succeed()
	}
	return nil
}

func (o *Orchestrator) extract(ctx context.Context, run *runState, t *tally) error {
	if o.cfg.Crawler == nil {
		return errNoCrawler
	}
	articles, err := o.selectInput(ctx, steps.Extract, run)
	if err != nil || len(articles) == 0 {
		return err
	}

	urls := make([]string, len(articles))
	for i, a := range articles {
		urls[i] = a.SourceURL
	}
	results := make(map[string]crawling.FetchResult, len(articles))
	for _, r := range o.cfg.Crawler.Fetch(ctx, urls, o.cfg.Fetch) {
		results[types.ArticleID(r.URL)] = r
	}

	for _, a := range articles {
		if ctx.Err() != nil {
			return nil
		}
		res, ok := results[a.ID]
		if !ok {
			t.fail(a.ID, errs.New(errs.ParseMalformed, "extract", "no fetch result for "+a.SourceURL))
			continue
		}

		switch res.Status {
		case crawling.StatusSkipped:
			t.skip()
		case crawling.StatusError:
			o.failArticle(ctx, run, t, steps.Extract, a, res.Err())
		default:
			if strings.TrimSpace(res.Text) == "" {
				o.failArticle(ctx, run, t, steps.Extract, a,
					errs.New(errs.ParseMalformed, "extract", "page has no extractable text"))
				continue
			}
			o.apply(run, t, a.ID, func() error {
				_, err := o.cfg.Store.SetContent(ctx, a.ID, registry.Content{
					Title:         firstNonEmpty(res.Title, a.Title),
					ExtractedText: res.Text,
					PublishedAt:   res.PublishedAt,
				})
				if err != nil {
					return err
				}
				o.cfg.Crawler.MarkSeen(a.SourceURL)
				return nil
			})
		}
	}
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, run *runState, t *tally) error {
	if o.cfg.Analyzer == nil {
		return errNoAnalyzer
	}
	articles, err := o.selectInput(ctx, steps.Analyze, run)
	if err != nil || len(articles) == 0 {
		return err
	}

	reqs := make([]analysis.Request, len(articles))
	for i, a := range articles {
		reqs[i] = analysis.Request{ID: a.ID, Title: a.Title, Text: a.ExtractedText}
	}
	results, failures := o.cfg.Analyzer.Analyze(ctx, reqs)

	for _, a := range articles {
		if ctx.Err() != nil {
			return nil
		}
		if err, failed := failures[a.ID]; failed {
			o.failArticle(ctx, run, t, steps.Analyze, a, err)
			continue
		}
		raw, ok := results[a.ID]
		if !ok {
			o.failArticle(ctx, run, t, steps.Analyze, a,
				errs.New(errs.ParseMalformed, "analyze", "analysis client returned nothing"))
			continue
		}
		o.apply(run, t, a.ID, func() error {
			_, err := o.cfg.Store.SetAnalysis(ctx, a.ID, raw)
			return err
		})
	}
	return nil
}

func (o *Orchestrator) score(ctx context.Context, run *runState, t *tally) error {
	articles, err := o.selectInput(ctx, steps.Score, run)
	if err != nil {
		return err
	}
	for _, a := range articles {
		if ctx.Err() != nil {
			return nil
		}
		res := scoring.Score(a.RawAnalysis)
		next := types.StateScored
		if res.ZeroEchoScore < o.cfg.Thresholds.WorthlessBelow {
			next = types.StateWorthless
		}
		run.log.Debug("Scored article",
			zap.String("article_id", a.ID),
			zap.Float64("impact_score", res.ImpactScore),
			zap.Float64("zero_echo_score", res.ZeroEchoScore),
			zap.String("next", string(next)))
		o.apply(run, t, a.ID, func() error {
			_, err := o.cfg.Store.SetScores(ctx, a.ID, *res.Scores(), next)
			return err
		})
	}
	return nil
}

func (o *Orchestrator) classify(ctx context.Context, run *runState, t *tally) error {
	articles, err := o.selectInput(ctx, steps.Classify, run)
	if err != nil {
		return err
	}
	for _, a := range articles {
		if ctx.Err() != nil {
			return nil
		}
		label := o.cfg.Thresholds.Label(zeroEcho(a))
		o.apply(run, t, a.ID, func() error {
			_, err := o.cfg.Store.SetClassification(ctx, a.ID, label)
			return err
		})
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, run *runState, t *tally) error {
	articles, err := o.selectInput(ctx, steps.Publish, run)
	if err != nil {
		return err
	}
	for _, a := range articles {
		if ctx.Err() != nil {
			return nil
		}
		next := types.StateRejected
		if zeroEcho(a) >= o.cfg.Thresholds.PublishAt {
			next = types.StatePublished
		}
		o.apply(run, t, a.ID, func() error {
			_, err := o.cfg.Store.SetState(ctx, a.ID, next)
			return err
		})
	}
	return nil
}

func (o *Orchestrator) release(ctx context.Context, run *runState, t *tally) error {
	articles, err := o.selectInput(ctx, steps.Release, run)
	if err != nil || len(articles) == 0 {
		return err
	}
	now := o.now().UTC()
	release := types.Release{
		Edition:    EditionID(now, run.id),
		ReleasedAt: now,
	}
	for _, a := range articles {
		if ctx.Err() != nil {
			return nil
		}
		o.apply(run, t, a.ID, func() error {
			_, err := o.cfg.Store.SetRelease(ctx, a.ID, release)
			return err
		})
	}
	if !run.dryRun {
		o.emitProgress(run.id, steps.Release, fmt.Sprintf("Released edition %s", release.Edition))
	}
	return nil
}

// EditionID names the edition released by a run.
func EditionID(at time.Time, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return at.Format("2006-01-02") + "-" + short
}

func (o *Orchestrator) selectInput(ctx context.Context, phase steps.Phase, run *runState) ([]*types.Article, error) {
	input := steps.PhaseRegistry[phase].Input
	articles, err := o.cfg.Store.FindByState(ctx, input, run.limit)
	if err != nil {
		return nil, fmt.Errorf("select %s articles: %w", input, err)
	}
	return articles, nil
}

// apply runs one registry mutation, or only counts it on a dry run.
func (o *Orchestrator) apply(run *runState, t *tally, id string, mutate func() error) {
	if run.dryRun {
		t.succeed()
		return
	}
	if err := mutate(); err != nil {
		run.log.Warn("Article update failed", zap.String("article_id", id), zap.Error(err))
		t.fail(id, err)
		return
	}
	t.succeed()
}

// failArticle records err and, when it is permanent, moves the article to
// the phase's failure state. Transient failures leave the state unchanged so
// the next run retries the article.
func (o *Orchestrator) failArticle(ctx context.Context, run *runState, t *tally, phase steps.Phase, a *types.Article, err error) {
	t.fail(a.ID, err)
	if !permanent(phase, err) || run.dryRun {
		return
	}
	target := steps.PhaseRegistry[phase].FailureState
	if target == "" {
		return
	}
	if _, setErr := o.cfg.Store.SetState(ctx, a.ID, target); setErr != nil {
		run.log.Warn("Could not record terminal failure",
			zap.String("article_id", a.ID),
			zap.String("state", string(target)),
			zap.Error(setErr))
		t.note(errs.WithArticle(setErr, a.ID))
	}
}

// permanent decides whether a failure is final for the phase. Analysis
// requests rejected as a whole (POLICY_BLOCKED) point at configuration, not
// at the article, so only malformed output fails an article in ANALYZE.
func permanent(phase steps.Phase, err error) bool {
	kind := errs.KindOf(err)
	switch phase {
	case steps.Analyze:
		return kind == errs.ParseMalformed
	default:
		return kind == errs.PolicyBlocked || kind == errs.ParseMalformed
	}
}

func zeroEcho(a *types.Article) float64 {
	if a.Scores == nil {
		return 0
	}
	return a.Scores.ZeroEchoScore
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
