package snapshot

import (
	"sync"

	"stockaggregator/internal/aggregator"
)

// Store keeps the most recent aggregation report in memory.
type Store struct {
	mu     sync.RWMutex
	report aggregator.Report
	ok     bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the held report.
func (s *Store) Set(report aggregator.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
	s.ok = true
}

// Latest returns the held report and whether one has been stored yet.
func (s *Store) Latest() (aggregator.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report, s.ok
}
