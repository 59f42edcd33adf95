package registry

import (
	"context"
	"time"

	"github.com/jonathan/zeroecho/internal/db"
	"github.com/jonathan/zeroecho/internal/types"
)

// SetState moves the article to state. Illegal transitions return a
// STATE_CONFLICT error and change nothing; the current state is a no-op.
func (r *Registry) SetState(ctx context.Context, id string, state types.State) (*types.Article, error) {
	return r.update(ctx, id, func(a *types.Article) ([]db.Field, error) {
		if a.State == state {
			return nil, nil
		}
		if !types.CanTransition(a.State, state) {
			return nil, conflict("set state", id, a.State, state)
		}
		a.State = state
		return []db.Field{{Path: "state", Value: state}}, nil
	})
}

// advance moves a to next and returns the state field, or nothing when a is
// already there.
func advance(a *types.Article, next types.State) []db.Field {
	if a.State == next {
		return nil
	}
	a.State = next
	return []db.Field{{Path: "state", Value: next}}
}

// Content is the extracted page content of an article.
type Content struct {
	Title         string     `json:"title,omitempty"`
	ExtractedText string     `json:"extracted_text,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
}

// SetContent stores the extracted content and advances to EXTRACTED in a
// single write.
func (r *Registry) SetContent(ctx context.Context, id string, c Content) (*types.Article, error) {
	return r.update(ctx, id, func(a *types.Article) ([]db.Field, error) {
		if !types.CanTransition(a.State, types.StateExtracted) {
			return nil, conflict("set content", id, a.State, types.StateExtracted)
		}
		a.ExtractedText = c.ExtractedText
		fields := []db.Field{{Path: "extracted_text", Value: c.ExtractedText}}
		if c.Title != "" {
			a.Title = c.Title
			fields = append(fields, db.Field{Path: "title", Value: c.Title})
		}
		if c.PublishedAt != nil {
			published := c.PublishedAt.UTC()
			a.PublishedAt = &published
			fields = append(fields, db.Field{Path: "published_at", Value: published})
		}
		return append(fields, advance(a, types.StateExtracted)...), nil
	})
}

// SetAnalysis stores the raw analysis and advances to ANALYZED.
func (r *Registry) SetAnalysis(ctx context.Context, id string, raw *types.RawAnalysis) (*types.Article, error) {
	return r.update(ctx, id, func(a *types.Article) ([]db.Field, error) {
		if !types.CanTransition(a.State, types.StateAnalyzed) {
			return nil, conflict("set analysis", id, a.State, types.StateAnalyzed)
		}
		a.RawAnalysis = raw.Clone()
		fields := []db.Field{{Path: "raw_analysis", Value: raw}}
		return append(fields, advance(a, types.StateAnalyzed)...), nil
	})
}

// SetScores stores the computed scores and moves to next, which must be
// SCORED or WORTHLESS.
func (r *Registry) SetScores(ctx context.Context, id string, scores types.Scores, next types.State) (*types.Article, error) {
	return r.update(ctx, id, func(a *types.Article) ([]db.Field, error) {
		if !types.CanTransition(a.State, next) {
			return nil, conflict("set scores", id, a.State, next)
		}
		s := scores
		a.Scores = &s
		fields := []db.Field{{Path: "scores", Value: scores}}
		return append(fields, advance(a, next)...), nil
	})
}

// SetClassification stores the tier label and advances to CLASSIFIED.
func (r *Registry) SetClassification(ctx context.Context, id, label string) (*types.Article, error) {
	return r.update(ctx, id, func(a *types.Article) ([]db.Field, error) {
		if !types.CanTransition(a.State, types.StateClassified) {
			return nil, conflict("set classification", id, a.State, types.StateClassified)
		}
		a.Classification = label
		fields := []db.Field{{Path: "classification", Value: label}}
		return append(fields, advance(a, types.StateClassified)...), nil
	})
}

// SetRelease records the edition and advances to RELEASED.
func (r *Registry) SetRelease(ctx context.Context, id string, release types.Release) (*types.Article, error) {
	release.ReleasedAt = release.ReleasedAt.UTC()
	return r.update(ctx, id, func(a *types.Article) ([]db.Field, error) {
		if !types.CanTransition(a.State, types.StateReleased) {
			return nil, conflict("set release", id, a.State, types.StateReleased)
		}
		rel := release
		a.Release = &rel
		fields := []db.Field{{Path: "release", Value: release}}
		return append(fields, advance(a, types.StateReleased)...), nil
	})
}
