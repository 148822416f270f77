package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"stockaggregator/internal/aggregator"
)

// Runner runs one aggregation.
type Runner interface {
	Run(ctx context.Context) (aggregator.Report, error)
}

// Sink receives each successful report.
type Sink interface {
	Set(report aggregator.Report)
}

// Scheduler refreshes a Sink from a Runner on a cron schedule. A refresh
// that is still running when the next one is due causes that one to be
// skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	sink   Sink
	logger *slog.Logger
	ctx    context.Context

	entry cron.EntryID
}

// New creates a Scheduler. ctx bounds every run it starts.
func New(ctx context.Context, runner Runner, sink Sink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		sink:   sink,
		logger: logger,
		ctx:    ctx,
	}
}

// Register adds the refresh job on a standard five-field cron spec.
func (s *Scheduler) Register(spec string) error {
	id, err := s.cron.AddFunc(spec, s.refresh)
	if err != nil {
		return fmt.Errorf("register refresh %q: %w", spec, err)
	}
	if s.entry == 0 {
		s.entry = id
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow performs a refresh synchronously. Once a schedule is registered it
// goes through the same job chain as the cron ticks, so it is skipped while
// another refresh is in flight.
func (s *Scheduler) RunNow() {
	if job := s.cron.Entry(s.entry).WrappedJob; job != nil {
		job.Run()
		return
	}
	s.refresh()
}

func (s *Scheduler) refresh() {
	report, err := s.runner.Run(s.ctx)
	if err != nil {
		s.logger.Error("scheduled refresh failed", slog.Any("error", err))
		return
	}
	// A run cut short by shutdown returns whatever it had; keep the
	// previous snapshot instead.
	if err := s.ctx.Err(); err != nil {
		s.logger.Warn("discarding interrupted refresh",
			slog.Int("attempted", report.Attempted),
			slog.Int("universe", len(report.Universe)),
			slog.Any("error", err),
		)
		return
	}
	s.sink.Set(report)
	s.logger.Info("snapshot refreshed",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("skipped", report.Skipped),
	)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
