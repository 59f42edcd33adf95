// Package pipeline orchestrates the article phases. Each phase selects
// articles by state from the registry, does its work and records the
// outcome through typed registry updates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/zeroecho/internal/analysis"
	"github.com/jonathan/zeroecho/internal/crawling"
	"github.com/jonathan/zeroecho/internal/db"
	"github.com/jonathan/zeroecho/internal/metrics"
	"github.com/jonathan/zeroecho/internal/pipeline/steps"
	"github.com/jonathan/zeroecho/internal/registry"
	"github.com/jonathan/zeroecho/internal/types"
)

// DefaultBatchLimit caps the articles a phase selects when none is requested.
const DefaultBatchLimit = 50

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Phase    steps.Phase `json:"phase"`
	Category string      `json:"category"`
	Message  string      `json:"message"`
	RunID    string      `json:"run_id,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Store is the registry surface the orchestrator needs.
type Store interface {
	Get(ctx context.Context, id string) (*types.Article, error)
	FindByState(ctx context.Context, state types.State, limit int) ([]*types.Article, error)
	Upsert(ctx context.Context, article *types.Article) (*types.Article, error)
	SetState(ctx context.Context, id string, state types.State) (*types.Article, error)
	SetContent(ctx context.Context, id string, c registry.Content) (*types.Article, error)
	SetAnalysis(ctx context.Context, id string, raw *types.RawAnalysis) (*types.Article, error)
	SetScores(ctx context.Context, id string, scores types.Scores, next types.State) (*types.Article, error)
	SetClassification(ctx context.Context, id, label string) (*types.Article, error)
	SetRelease(ctx context.Context, id string, release types.Release) (*types.Article, error)
}

// Crawler discovers and fetches article pages.
type Crawler interface {
	Fetch(ctx context.Context, urls []string, opts crawling.FetchOptions) []crawling.FetchResult
	Discover(ctx context.Context, feedURLs []string) ([]crawling.FeedEntry, []error)
	DiscoverSections(ctx context.Context, sections []crawling.Section) ([]crawling.FeedEntry, []error)
	MarkSeen(url string)
}

// Recorder persists run summaries.
type Recorder interface {
	RecordRun(ctx context.Context, run *db.RunRecord) error
}

// Sources lists where COLLECT looks for new articles.
type Sources struct {
	Feeds    []string
	Sections []crawling.Section
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store      Store
	Crawler    Crawler
	Analyzer   analysis.Client
	Sources    Sources
	Fetch      crawling.FetchOptions
	Thresholds Thresholds
	Metrics    *metrics.Metrics
	Recorder   Recorder
	Logger     *zap.Logger
	OnProgress ProgressCallback
	Now        func() time.Time
}

// RunRequest selects what one run does.
type RunRequest struct {
	Phases     []string
	DryRun     bool
	BatchLimit int
}

// Orchestrator runs pipeline phases against the registry.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	phases map[steps.Phase]phaseFunc
}

// phaseFunc executes one phase for a run.
type phaseFunc func(ctx context.Context, run *runState, t *tally) error

type runState struct {
	id     string
	dryRun bool
	limit  int
	log    *zap.Logger
}

// New creates an orchestrator. Store is required; Crawler and Analyzer are
// only needed by the phases that use them.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}

	o := &Orchestrator{cfg: cfg, logger: cfg.Logger, now: cfg.Now}
	o.phases = map[steps.Phase]phaseFunc{
		steps.Collect:  o.collect,
		steps.Extract:  o.extract,
		steps.Analyze:  o.analyze,
		steps.Score:    o.score,
		steps.Classify: o.classify,
		steps.Publish:  o.publish,
		steps.Release:  o.release,
	}
	return o, nil
}

func (o *Orchestrator) emitProgress(runID string, phase steps.Phase, message string) {
	if o.cfg.OnProgress == nil {
		return
	}
	o.cfg.OnProgress(ProgressEvent{
		Phase:    phase,
		Category: steps.PhaseRegistry[phase].Category,
		Message:  message,
		RunID:    runID,
	})
}

// Run executes the requested phases sequentially in canonical order. Each
// phase drains its batch before the next one starts. Per-article failures
// are collected in the result and never abort the run; a cancelled context
// stops new work and returns the partial result.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	phases, err := steps.Normalize(req.Phases)
	if err != nil {
		return nil, err
	}
	limit := req.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	run := &runState{
		id:     uuid.NewString(),
		dryRun: req.DryRun,
		limit:  limit,
	}
	run.log = o.logger.With(zap.String("run_id", run.id), zap.Bool("dry_run", run.dryRun))

	result := &RunResult{
		RunID:     run.id,
		DryRun:    req.DryRun,
		StartedAt: o.now().UTC(),
	}
	run.log.Info("Pipeline run started", zap.Int("phases", len(phases)))

	for _, phase := range phases {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		o.emitProgress(run.id, phase, fmt.Sprintf("Phase %d/%d: %s", steps.Position(phase), len(steps.Order), phase))
		started := time.Now()
		t := &tally{result: &PhaseResult{Phase: phase}}

		if err := o.phases[phase](ctx, run, t); err != nil {
			// A phase-level error means its input could not be read.
			t.note(err)
			run.log.Error("Phase failed", zap.String("phase", string(phase)), zap.Error(err))
		}
		t.result.Duration = time.Since(started)
		result.Phases = append(result.Phases, *t.result)
		result.Failures = append(result.Failures, t.failures...)
		o.cfg.Metrics.ObservePhase(string(phase), t.result.Succeeded, t.result.Failed, t.result.Skipped, t.result.Duration)

		if ctx.Err() != nil {
			result.Cancelled = true
		}

		run.log.Info("Phase finished",
			zap.String("phase", string(phase)),
			zap.Int("attempted", t.result.Attempted),
			zap.Int("succeeded", t.result.Succeeded),
			zap.Int("failed", t.result.Failed),
			zap.Int("skipped", t.result.Skipped),
			zap.Duration("duration", t.result.Duration))
		o.emitProgress(run.id, phase, fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped",
			phase, t.result.Succeeded, t.result.Failed, t.result.Skipped))

		if result.Cancelled {
			break
		}
	}

	result.FinishedAt = o.now().UTC()
	o.cfg.Metrics.ObserveRun(result.Status())
	if o.cfg.Recorder != nil {
		// The run is recorded even when ctx was cancelled.
		if err := o.cfg.Recorder.RecordRun(context.WithoutCancel(ctx), result.Record()); err != nil {
			run.log.Warn("Failed to record run", zap.Error(err))
		}
	}
	run.log.Info("Pipeline run finished",
		zap.String("status", result.Status()),
		zap.Int("failures", len(result.Failures)))
	return result, nil
}
