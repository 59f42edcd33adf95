package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs the pipeline once an hour.
const DefaultSchedule = "@every 1h"

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// Scheduler triggers pipeline runs on a cron schedule. At most one run is in
// flight at a time: a tick or RunOnce call that arrives while a run is going
// is skipped.
type Scheduler struct {
	runner  Runner
	request RunRequest
	logger  *zap.Logger
	cron    *cron.Cron
	entry   cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running sync.Mutex

	mu   sync.Mutex
	last *RunResult
	runs int
}

// NewScheduler parses spec (five-field cron or a descriptor such as
// "@every 30m") and prepares a scheduler. Nothing runs until Start.
func NewScheduler(runner Runner, spec string, req RunRequest, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: logger.Sugar()}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:  runner,
		request: req,
		logger:  logger,
		cron:    c,
		ctx:     ctx,
		cancel:  cancel,
	}

	id, err := c.AddFunc(spec, func() { s.RunOnce(s.ctx) })
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing on the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Time("next_run", s.cron.Entry(s.entry).Next))
}

// Stop cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// RunOnce performs one run immediately and records its outcome. It returns
// false without running when another run is still in progress.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.TryLock() {
		s.logger.Warn("Skipping run, previous run still in progress")
		return false
	}
	defer s.running.Unlock()
	s.wg.Add(1)
	defer s.wg.Done()

	result, err := s.runner.Run(ctx, s.request)

	s.mu.Lock()
	if result != nil {
		s.last = result
	}
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled run failed", zap.Error(err))
		return true
	}
	s.logger.Info("Scheduled run finished",
		zap.String("run_id", result.RunID),
		zap.String("status", result.Status()))
	return true
}

// Last returns the most recent run result and how many runs have been attempted.
func (s *Scheduler) Last() (*RunResult, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.runs
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
