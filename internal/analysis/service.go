package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/retry"
	"github.com/jonathan/zeroecho/internal/schemas"
	"github.com/jonathan/zeroecho/internal/types"
)

// DefaultBatchSize bounds the number of articles per backend call.
const DefaultBatchSize = 8

// BreakerSettings configures the circuit breaker around backend calls.
type BreakerSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxCall uint32
}

// DefaultBreakerSettings trips after half of at least five calls fail.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     5,
		FailureRatio:    0.5,
		OpenTimeout:     30 * time.Second,
		HalfOpenMaxCall: 1,
	}
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	BatchSize int
	Retry     *retry.Policy
	Breaker   BreakerSettings
	Logger    *zap.Logger
}

// Service implements Client on top of a Backend.
type Service struct {
	backend   Backend
	batchSize int
	retry     *retry.Policy
	breaker   *gobreaker.CircuitBreaker[[]any]
	schema    *schemas.Schema
	logger    *zap.Logger
}

// NewService wires backend with retry, a circuit breaker and schema validation.
func NewService(backend Backend, opts ServiceOptions) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("analysis backend is required")
	}
	schema, err := schemas.AnalysisItem()
	if err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Breaker == (BreakerSettings{}) {
		opts.Breaker = DefaultBreakerSettings()
	}

	s := &Service{
		backend:   backend,
		batchSize: opts.BatchSize,
		retry:     opts.Retry,
		schema:    schema,
		logger:    opts.Logger.With(zap.String("backend", backend.Name())),
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]any](s.breakerSettings(opts.Breaker))
	return s, nil
}

func (s *Service) breakerSettings(cfg BreakerSettings) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        s.backend.Name(),
		MaxRequests: cfg.HalfOpenMaxCall,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Only transport trouble counts against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Analysis circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
}

// BreakerState reports the current circuit breaker state.
func (s *Service) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Analyze splits reqs into batches and analyzes each one. A failed batch
// assigns its error to every article in it; other batches are unaffected.
func (s *Service) Analyze(ctx context.Context, reqs []Request) (map[string]*types.RawAnalysis, map[string]error) {
	results := make(map[string]*types.RawAnalysis, len(reqs))
	failures := make(map[string]error)

	for start := 0; start < len(reqs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(reqs) {
			end = len(reqs)
		}
		batch := reqs[start:end]

		if err := ctx.Err(); err != nil {
			failAll(failures, batch, errs.Wrap(errs.NetworkTransient, "analyze", err))
			continue
		}

		items, err := s.call(ctx, batch)
		if err != nil {
			s.logger.Warn("Analysis batch failed",
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			failAll(failures, batch, err)
			continue
		}
		s.collect(batch, items, results, failures)
	}

	return results, failures
}

func (s *Service) call(ctx context.Context, batch []Request) ([]any, error) {
	items, err := s.breaker.Execute(func() ([]any, error) {
		return retry.DoValue(ctx, s.retry, func(ctx context.Context) ([]any, error) {
			return s.backend.Call(ctx, batch)
		}, nil)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errs.Wrap(errs.NetworkTransient, "analyze", err)
	}
	return items, err
}

// collect matches batch elements to requested ids. Elements for ids that were
// not requested are ignored; requested ids with no element are PARSE_MALFORMED.
func (s *Service) collect(batch []Request, items []any, results map[string]*types.RawAnalysis, failures map[string]error) {
	requested := make(map[string]bool, len(batch))
	for _, r := range batch {
		requested[r.ID] = true
	}
	seen := make(map[string]bool, len(batch))

	for i, item := range items {
		id, obj, err := normalizeItem(item)
		if err != nil {
			s.logger.Warn("Dropping malformed analysis item", zap.Int("index", i), zap.Error(err))
			continue
		}
		if !requested[id] {
			s.logger.Debug("Ignoring analysis item for unrequested article", zap.String("article_id", id))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := s.schema.Validate(obj); err != nil {
			failures[id] = errs.WithArticle(errs.Wrap(errs.ParseMalformed, "validate analysis", err), id)
			continue
		}
		raw, warnings := types.ParseRawAnalysis(obj)
		for _, w := range warnings {
			s.logger.Debug("Analysis payload warning", zap.String("article_id", id), zap.String("warning", w))
		}
		results[id] = raw
	}

	for _, r := range batch {
		if seen[r.ID] {
			continue
		}
		failures[r.ID] = errs.WithArticle(
			errs.New(errs.ParseMalformed, "analyze", "article missing from analysis response"), r.ID)
	}
}

func failAll(failures map[string]error, batch []Request, err error) {
	for _, r := range batch {
		failures[r.ID] = errs.WithArticle(err, r.ID)
	}
}
