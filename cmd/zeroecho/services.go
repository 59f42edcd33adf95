package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/zeroecho/internal/analysis"
	"github.com/jonathan/zeroecho/internal/config"
	"github.com/jonathan/zeroecho/internal/crawling"
	"github.com/jonathan/zeroecho/internal/db"
	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/fetch"
	"github.com/jonathan/zeroecho/internal/llm"
	"github.com/jonathan/zeroecho/internal/logging"
	"github.com/jonathan/zeroecho/internal/metrics"
	"github.com/jonathan/zeroecho/internal/pipeline"
	"github.com/jonathan/zeroecho/internal/registry"
	"github.com/jonathan/zeroecho/internal/retry"
)

// RunLedger records and lists pipeline runs.
type RunLedger interface {
	pipeline.Recorder
	ListRuns(ctx context.Context, limit int) ([]db.RunRecord, error)
}

// Services holds everything a command needs, built once from the config.
type Services struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Registry     *registry.Registry
	Runs         RunLedger
	Engine       *crawling.Engine
	Analyzer     analysis.Client
	Orchestrator *pipeline.Orchestrator

	closers []func()
}

// NewServices wires the store, registry, crawler, analyzer and orchestrator.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Encoding,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, err
	}

	s := &Services{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewMetrics(),
	}
	s.closers = append(s.closers, func() { _ = logger.Sync() })

	if err := s.build(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) build(ctx context.Context) error {
	cfg := s.Config
	policy := retryPolicy(cfg.Retry)

	remote, err := s.openStore(ctx)
	if err != nil {
		return err
	}

	reg, err := registry.New(ctx, registry.Options{
		CacheRoot:   cfg.CacheRoot,
		Environment: cfg.Environment,
		Remote:      remote,
		Retry:       policy,
		Logger:      s.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	s.Registry = reg
	s.closers = append(s.closers, func() { _ = reg.Close() })

	engine, err := s.newEngine(policy)
	if err != nil {
		return err
	}
	s.Engine = engine

	analyzer, err := s.newAnalyzer(ctx, policy)
	if err != nil {
		return err
	}
	s.Analyzer = analyzer

	orch, err := pipeline.New(pipeline.Config{
		Store:    reg,
		Crawler:  engine,
		Analyzer: analyzer,
		Sources:  sources(cfg.Crawler),
		Fetch: crawling.FetchOptions{
			Concurrency: cfg.Crawler.Concurrency,
			UseHeadless: cfg.Crawler.UseHeadless,
		},
		Thresholds: pipeline.Thresholds{
			WorthlessBelow: cfg.Pipeline.WorthlessBelow,
			FeaturedAt:     cfg.Pipeline.FeaturedAt,
			StandardAt:     cfg.Pipeline.StandardAt,
			PublishAt:      cfg.Pipeline.PublishAt,
		},
		Metrics:  s.Metrics,
		Recorder: s.Runs,
		Logger:   s.Logger,
		OnProgress: func(ev pipeline.ProgressEvent) {
			s.Logger.Debug(ev.Message, zap.String("phase", string(ev.Phase)), zap.String("category", ev.Category))
		},
	})
	if err != nil {
		return err
	}
	s.Orchestrator = orch
	return nil
}

// openStore connects to Postgres when a database URL is configured. An
// unreachable database yields a store that fails every call, so the
// registry starts degraded and serves reads from its cache.
func (s *Services) openStore(ctx context.Context) (registry.RemoteStore, error) {
	if s.Config.DatabaseURL == "" {
		s.Logger.Warn("DATABASE_URL not set, using an in-memory remote store")
		mem := db.NewMemoryStore()
		s.Runs = mem
		return mem, nil
	}

	store, err := db.Connect(ctx, s.Config.DatabaseURL)
	if err != nil {
		if !errs.IsKind(err, errs.StoreUnavailable) {
			return nil, err
		}
		s.Logger.Warn("Database unreachable, starting degraded", zap.Error(err))
		offline := db.NewMemoryStore()
		offline.SetFailure(err)
		s.Runs = offline
		return offline, nil
	}
	s.closers = append(s.closers, store.Close)
	s.Runs = store
	return store, nil
}

func (s *Services) newEngine(policy *retry.Policy) (*crawling.Engine, error) {
	cc := s.Config.Crawler

	history, err := crawling.OpenHistory(cc.HistoryPath, cc.Cooldown)
	if err != nil {
		return nil, err
	}

	var renderer fetch.Renderer
	if cc.UseHeadless {
		renderer = fetch.NewBrowser(cc.Timeout, s.Logger)
	}

	return crawling.NewEngine(crawling.Config{
		Fetch:        &fetch.Options{Timeout: cc.Timeout, UserAgent: cc.UserAgent},
		Robots:       fetch.NewRobots(&http.Client{Timeout: cc.Timeout}, cc.UserAgent, cc.RobotsTTL),
		Renderer:     renderer,
		History:      history,
		Freshness:    crawling.NewFreshness(cc.FreshnessWindow),
		Retry:        policy,
		HostInterval: cc.HostInterval,
		Logger:       s.Logger,
		Metrics:      s.Metrics,
	}), nil
}

// newAnalyzer returns nil when the Gemini provider has no API key; ANALYZE
// then reports the missing analyzer while the other phases keep working.
func (s *Services) newAnalyzer(ctx context.Context, policy *retry.Policy) (analysis.Client, error) {
	ac := s.Config.Analysis

	var backend analysis.Backend
	switch ac.Provider {
	case "http":
		backend = analysis.NewHTTPBackend(ac.Endpoint, ac.APIKey, ac.Timeout)
	default:
		if ac.APIKey == "" {
			s.Logger.Warn("No analysis API key configured, ANALYZE is disabled")
			return nil, nil
		}
		llmCfg := llm.DefaultConfig()
		if ac.Model != "" {
			llmCfg = llmCfg.WithModel(llm.TierLite, ac.Model)
		}
		client, err := llm.NewClient(ctx, llmCfg, ac.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		backend = analysis.NewLLMBackend(client, llm.TierLite)
	}

	svc, err := analysis.NewService(backend, analysis.ServiceOptions{
		BatchSize: ac.BatchSize,
		Retry:     policy,
		Logger:    s.Logger,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func retryPolicy(rc config.RetryConfig) *retry.Policy {
	return &retry.Policy{
		MaxRetries: rc.MaxRetries,
		BaseDelay:  rc.BaseDelay,
		MaxDelay:   rc.MaxDelay,
		Jitter:     rc.Jitter,
	}
}

func sources(cc config.CrawlerConfig) pipeline.Sources {
	src := pipeline.Sources{Feeds: cc.Feeds}
	for _, sec := range cc.Sections {
		src.Sections = append(src.Sections, crawling.Section{URL: sec.URL, PathPrefixes: sec.PathPrefixes})
	}
	return src
}
