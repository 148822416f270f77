package universe

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

var errEmptyComponents = errors.New("index lookup returned no symbols")

// Lookup is the part of a provider the resolver needs.
type Lookup interface {
	Components(ctx context.Context, index string) ([]string, error)
}

// Universe is the ordered, de-duplicated set of symbols one run covers.
type Universe struct {
	Symbols      []string
	UsedFallback bool
}

// Resolver produces the ticker universe for an aggregation run.
type Resolver struct {
	lookup   Lookup
	index    string
	fallback Fallback
	logger   *slog.Logger
}

// NewResolver creates a resolver that asks lookup for the members of index
// and substitutes fallback when that fails.
func NewResolver(lookup Lookup, index string, fallback Fallback, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lookup:   lookup,
		index:    index,
		fallback: fallback,
		logger:   logger,
	}
}

// Resolve makes exactly one live lookup attempt. Any error, or an empty
// answer, is logged and replaced by the fallback table. Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context) Universe {
	symbols, err := r.lookup.Components(ctx, r.index)
	if err == nil {
		if live := dedupe(symbols); len(live) > 0 {
			return Universe{Symbols: live}
		}
		err = errEmptyComponents
	}

	r.logger.Warn("universe lookup failed, using fallback",
		slog.String("index", r.index),
		slog.Any("error", err),
		slog.Int("fallback_size", len(r.fallback.Symbols)),
		slog.String("fallback_as_of", r.fallback.AsOf),
	)
	return Universe{
		Symbols:      slices.Clone(r.fallback.Symbols),
		UsedFallback: true,
	}
}

// dedupe drops blanks and repeated symbols, keeping first occurrences.
func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
