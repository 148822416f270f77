package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockaggregator/internal/fetcher"
)

// MockProvider is a configurable fetcher.Provider for tests. Every Func field
// is optional; unset funcs fall back to deterministic canned data derived
// from the symbol.
type MockProvider struct {
	ComponentsFunc func(ctx context.Context, index string) ([]string, error)
	QuoteFunc      func(ctx context.Context, symbol string) (fetcher.Quote, error)
	ProfileFunc    func(ctx context.Context, symbol string) (fetcher.Profile, error)
	HistoryFunc    func(ctx context.Context, symbol string, from, to time.Time) ([]fetcher.Close, error)

	// Latency is added to every Quote, Profile and History call.
	Latency time.Duration

	// FailSymbols makes every per-ticker call for these symbols fail.
	FailSymbols map[string]error

	mu        sync.Mutex
	calls     map[string]int
	active    map[string]int
	maxGroups int
}

// NewMockProvider returns a provider whose index lookup answers components.
func NewMockProvider(components ...string) *MockProvider {
	return &MockProvider{
		ComponentsFunc: func(ctx context.Context, index string) ([]string, error) {
			return components, nil
		},
	}
}

// Name implements fetcher.Provider
func (m *MockProvider) Name() string {
	return "mock"
}

// Components implements fetcher.Provider
func (m *MockProvider) Components(ctx context.Context, index string) ([]string, error) {
	if m.ComponentsFunc != nil {
		return m.ComponentsFunc(ctx, index)
	}
	return nil, fetcher.NewClientError(0, "no components configured")
}

// Quote implements fetcher.Provider
func (m *MockProvider) Quote(ctx context.Context, symbol string) (fetcher.Quote, error) {
	if err := m.enter(ctx, symbol); err != nil {
		return fetcher.Quote{}, err
	}
	defer m.exit(symbol)

	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, symbol)
	}
	return CannedQuote(symbol), nil
}

// Profile implements fetcher.Provider
func (m *MockProvider) Profile(ctx context.Context, symbol string) (fetcher.Profile, error) {
	if err := m.enter(ctx, symbol); err != nil {
		return fetcher.Profile{}, err
	}
	defer m.exit(symbol)

	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, symbol)
	}
	sector := "Technology"
	return fetcher.Profile{Sector: &sector}, nil
}

// History implements fetcher.Provider
func (m *MockProvider) History(ctx context.Context, symbol string, from, to time.Time) ([]fetcher.Close, error) {
	if err := m.enter(ctx, symbol); err != nil {
		return nil, err
	}
	defer m.exit(symbol)

	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, symbol, from, to)
	}
	return CannedHistory(to, 20), nil
}

// enter records the call, simulates latency and applies FailSymbols. On
// success the caller must call exit.
func (m *MockProvider) enter(ctx context.Context, symbol string) error {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
		m.active = make(map[string]int)
	}
	m.calls[symbol]++
	m.active[symbol]++
	if len(m.active) > m.maxGroups {
		m.maxGroups = len(m.active)
	}
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			m.exit(symbol)
			return fetcher.NewTimeoutError(ctx.Err())
		case <-time.After(m.Latency):
		}
	}

	if err, ok := m.FailSymbols[symbol]; ok {
		m.exit(symbol)
		if err == nil {
			err = fetcher.NewServerError(500)
		}
		return fmt.Errorf("mock fetch for %s: %w", symbol, err)
	}
	return nil
}

func (m *MockProvider) exit(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[symbol]--; m.active[symbol] <= 0 {
		delete(m.active, symbol)
	}
}

// MaxInFlightGroups is the highest number of distinct symbols that had a
// call in flight at the same moment.
func (m *MockProvider) MaxInFlightGroups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxGroups
}

// Calls returns how many per-ticker calls were made for symbol.
func (m *MockProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// TotalCalls returns the number of per-ticker calls across all symbols.
func (m *MockProvider) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// CannedQuote is the quote MockProvider returns by default.
func CannedQuote(symbol string) fetcher.Quote {
	return fetcher.Quote{
		Symbol:        symbol,
		ShortName:     symbol + " Inc.",
		Price:         100 + float64(len(symbol)),
		ChangePercent: 1.25,
		MarketCap:     1_500_000_000_000,
		Volume:        42_000_000,
	}
}

// CannedHistory returns n daily closes ending at end, oldest first, priced
// 1, 2, ... n.
func CannedHistory(end time.Time, n int) []fetcher.Close {
	closes := make([]fetcher.Close, n)
	for i := 0; i < n; i++ {
		closes[i] = fetcher.Close{
			Date:  end.AddDate(0, 0, i-n+1),
			Price: float64(i + 1),
		}
	}
	return closes
}
