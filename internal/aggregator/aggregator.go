package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"stockaggregator/internal/fetcher"
	"stockaggregator/internal/universe"
)

// Config controls the fetch loop.
type Config struct {
	// Concurrency is the number of workers pulling tickers.
	Concurrency int
	// SleepInterval is each worker's pause between tickers. Aggregate
	// request-group rate is roughly Concurrency / SleepInterval.
	SleepInterval time.Duration
	// HistoryDays is the calendar-day window requested for closes.
	HistoryDays int
	// ClosesWindow is how many of the most recent closes are kept.
	ClosesWindow int
	// RunTimeout bounds a whole run. Zero means no bound.
	RunTimeout time.Duration
}

// DefaultConfig returns the reference settings: 8 workers, 120ms apart,
// 5 closes out of a 30 day window, no run timeout.
func DefaultConfig() Config {
	return Config{
		Concurrency:   8,
		SleepInterval: 120 * time.Millisecond,
		HistoryDays:   30,
		ClosesWindow:  5,
	}
}

// Resolver supplies the ticker universe for a run.
type Resolver interface {
	Resolve(ctx context.Context) universe.Universe
}

// Report is the outcome of one run. Stocks is in completion order, not
// universe order.
type Report struct {
	Stocks       []Stock
	Universe     []string
	UsedFallback bool
	Attempted    int
	Succeeded    int
	Skipped      int
	StartedAt    time.Time
	Duration     time.Duration
}

// Aggregator fetches and normalizes market data for a ticker universe
// with a fixed number of workers.
type Aggregator struct {
	provider fetcher.Provider
	resolver Resolver
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Aggregator.
func New(provider fetcher.Provider, resolver Resolver, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ClosesWindow < 1 {
		cfg.ClosesWindow = 1
	}
	if cfg.HistoryDays < 1 {
		cfg.HistoryDays = 1
	}
	return &Aggregator{
		provider: provider,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// run is the state shared by the workers of one Run call.
type run struct {
	symbols  []string
	from, to time.Time

	// cursor is the index of the next unclaimed symbol
	cursor atomic.Int64

	mu        sync.Mutex
	stocks    []Stock
	attempted int
}

// claim hands out each index exactly once.
func (r *run) claim() (string, bool) {
	i := r.cursor.Add(1) - 1
	if i >= int64(len(r.symbols)) {
		return "", false
	}
	return r.symbols[i], true
}

func (r *run) exhausted() bool {
	return r.cursor.Load() >= int64(len(r.symbols))
}

// Run resolves the universe and fetches every ticker in it. Per-ticker
// failures are logged and counted, never returned. The only error is the
// context's, when it is already done before the run starts.
func (a *Aggregator) Run(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if a.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RunTimeout)
		defer cancel()
	}

	start := a.now()
	u := a.resolver.Resolve(ctx)

	r := &run{
		symbols: u.Symbols,
		from:    start.AddDate(0, 0, -a.cfg.HistoryDays),
		to:      start,
		stocks:  make([]Stock, 0, len(u.Symbols)),
	}

	var wg conc.WaitGroup
	for i := 0; i < a.cfg.Concurrency; i++ {
		wg.Go(func() { a.work(ctx, r) })
	}
	wg.Wait()

	report := Report{
		Stocks:       r.stocks,
		Universe:     u.Symbols,
		UsedFallback: u.UsedFallback,
		Attempted:    r.attempted,
		Succeeded:    len(r.stocks),
		Skipped:      r.attempted - len(r.stocks),
		StartedAt:    start,
		Duration:     a.now().Sub(start),
	}

	a.logger.Info("aggregation complete",
		slog.String("provider", a.provider.Name()),
		slog.Int("universe", len(u.Symbols)),
		slog.Bool("fallback", u.UsedFallback),
		slog.Int("attempted", report.Attempted),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// work claims tickers until the universe is exhausted or ctx is done.
func (a *Aggregator) work(ctx context.Context, r *run) {
	for ctx.Err() == nil {
		symbol, ok := r.claim()
		if !ok {
			return
		}

		stock, err := a.fetchOne(ctx, symbol, r.from, r.to)

		r.mu.Lock()
		r.attempted++
		if err == nil {
			r.stocks = append(r.stocks, stock)
		}
		r.mu.Unlock()

		if err != nil {
			a.logger.Warn("skipping ticker",
				slog.String("symbol", symbol),
				slog.String("error_type", string(fetcher.TypeOf(err))),
				slog.Any("error", err),
			)
		}

		if r.exhausted() {
			return
		}
		if !sleep(ctx, a.cfg.SleepInterval) {
			return
		}
	}
}

// fetchOne issues the quote, profile and history calls for symbol
// concurrently. The first failure cancels the other two.
func (a *Aggregator) fetchOne(ctx context.Context, symbol string, from, to time.Time) (Stock, error) {
	raw := fetcher.RawRecord{Symbol: symbol}

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	p.Go(func(ctx context.Context) error {
		q, err := a.provider.Quote(ctx, symbol)
		raw.Quote = q
		return err
	})
	p.Go(func(ctx context.Context) error {
		pr, err := a.provider.Profile(ctx, symbol)
		raw.Profile = pr
		return err
	})
	p.Go(func(ctx context.Context) error {
		h, err := a.provider.History(ctx, symbol, from, to)
		raw.History = h
		return err
	})

	if err := p.Wait(); err != nil {
		return Stock{}, err
	}
	return Normalize(raw, a.cfg.ClosesWindow)
}

// sleep pauses for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
