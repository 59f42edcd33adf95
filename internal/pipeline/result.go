package pipeline

import (
	"time"

	"github.com/jonathan/zeroecho/internal/db"
	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/pipeline/steps"
)

// Run statuses.
const (
	StatusCompleted             = "completed"
	StatusCompletedWithFailures = "completed_with_failures"
	StatusCancelled             = "cancelled"
)

// PhaseResult holds the per-article counts of one phase.
type PhaseResult struct {
	Phase     steps.Phase   `json:"phase"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Failure is one article that could not advance.
type Failure struct {
	Phase     steps.Phase `json:"phase"`
	ArticleID string      `json:"article_id,omitempty"`
	Kind      errs.Kind   `json:"kind,omitempty"`
	Reason    string      `json:"reason"`
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	DryRun     bool          `json:"dry_run"`
	Phases     []PhaseResult `json:"phases"`
	Failures   []Failure     `json:"failures,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Cancelled  bool          `json:"cancelled"`
}

// Status condenses the run into one of the run statuses.
func (r *RunResult) Status() string {
	switch {
	case r.Cancelled:
		return StatusCancelled
	case len(r.Failures) > 0:
		return StatusCompletedWithFailures
	default:
		return StatusCompleted
	}
}

// Phase returns the result for p, or nil when p did not run.
func (r *RunResult) Phase(p steps.Phase) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Phase == p {
			return &r.Phases[i]
		}
	}
	return nil
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Record converts the result into its persisted form. Phase-level errors
// such as an unreadable feed downgrade the phase status.
func (r *RunResult) Record() *db.RunRecord {
	phaseErrors := make(map[steps.Phase]bool)
	for _, f := range r.Failures {
		if f.ArticleID == "" {
			phaseErrors[f.Phase] = true
		}
	}

	rec := &db.RunRecord{
		ID:         r.RunID,
		Status:     r.Status(),
		DryRun:     r.DryRun,
		Failures:   len(r.Failures),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, p := range r.Phases {
		status := db.StepStatusFor(p.Attempted, p.Succeeded, p.Failed)
		if phaseErrors[p.Phase] {
			status = db.StepStatusFailed
			if p.Succeeded > 0 {
				status = db.StepStatusPartial
			}
		}
		rec.Steps = append(rec.Steps, db.RunStep{
			Phase:      string(p.Phase),
			Category:   steps.PhaseRegistry[p.Phase].Category,
			Status:     status,
			Attempted:  p.Attempted,
			Succeeded:  p.Succeeded,
			Failed:     p.Failed,
			Skipped:    p.Skipped,
			DurationMs: p.Duration.Milliseconds(),
		})
	}
	return rec
}

// tally accumulates one phase's outcome.
type tally struct {
	result   *PhaseResult
	failures []Failure
}

func (t *tally) succeed() {
	t.result.Attempted++
	t.result.Succeeded++
}

func (t *tally) skip() {
	t.result.Skipped++
}

func (t *tally) fail(articleID string, err error) {
	t.result.Attempted++
	t.result.Failed++
	t.failures = append(t.failures, Failure{
		Phase:     t.result.Phase,
		ArticleID: articleID,
		Kind:      errs.KindOf(err),
		Reason:    errs.WithArticle(err, articleID).Error(),
	})
}

// note records a failure that is not tied to one article, such as a feed.
func (t *tally) note(err error) {
	t.failures = append(t.failures, Failure{
		Phase:  t.result.Phase,
		Kind:   errs.KindOf(err),
		Reason: err.Error(),
	})
}
