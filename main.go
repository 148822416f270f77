package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stockaggregator/internal/aggregator"
	"stockaggregator/internal/alphavantage"
	"stockaggregator/internal/api"
	"stockaggregator/internal/config"
	"stockaggregator/internal/fetcher"
	"stockaggregator/internal/ratelimit"
	"stockaggregator/internal/scheduler"
	"stockaggregator/internal/snapshot"
	"stockaggregator/internal/universe"
	"stockaggregator/internal/yahoo"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	slog.SetDefault(logger)

	// Create context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	fallback := universe.SP100()
	if cfg.FallbackFile != "" {
		if fallback, err = universe.LoadFallback(cfg.FallbackFile); err != nil {
			return err
		}
	}

	resolver := universe.NewResolver(provider, cfg.IndexSymbol, fallback, logger)
	agg := aggregator.New(provider, resolver, aggregator.Config{
		Concurrency:   cfg.Concurrency,
		SleepInterval: cfg.SleepInterval,
		HistoryDays:   cfg.HistoryDays,
		ClosesWindow:  cfg.ClosesWindow,
		RunTimeout:    cfg.RunTimeout,
	}, logger)

	var snapshots api.SnapshotSource
	if cfg.RefreshSchedule != "" {
		store := snapshot.NewStore()
		sched := scheduler.New(ctx, agg, store, logger)
		if err := sched.Register(cfg.RefreshSchedule); err != nil {
			return err
		}
		if cfg.RefreshOnStart {
			go sched.RunNow()
		}
		sched.Start()
		defer sched.Stop()
		snapshots = store
	}

	srv := api.NewHandler(agg, snapshots, logger).NewServer(cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stock aggregator listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("provider", provider.Name()),
			slog.String("index", cfg.IndexSymbol),
			slog.Int("concurrency", cfg.Concurrency),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("received shutdown signal, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newProvider builds the configured market-data provider with its rate limit.
func newProvider(cfg *config.Config) (fetcher.Provider, error) {
	policy := fetcher.DefaultRetryPolicy()
	policy.Count = cfg.RetryCount

	limiter := ratelimit.New()

	switch cfg.Provider {
	case config.ProviderYahoo:
		limiter.SetLimit(ratelimit.APIYahoo, cfg.RateLimitRPS, cfg.Concurrency)
		return yahoo.NewClient(cfg.YahooBaseURL, policy, limiter, yahoo.WithCookieURL(cfg.YahooCookieURL)), nil
	case config.ProviderAlphaVantage:
		limiter.SetLimit(ratelimit.APIAlphaVantage, cfg.RateLimitRPS, 1)
		return alphavantage.NewClient(cfg.AlphavantageAPIKey, cfg.AlphavantageBaseURL, policy, limiter), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
