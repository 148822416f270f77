package fetcher

import (
	"context"
	"time"
)

// Provider is the contract every market-data source implements.
// A provider answers the four logical calls one aggregation run needs:
// an index-membership lookup and, per ticker, a quote, a company profile
// and a daily price history.
type Provider interface {
	// Name identifies the provider in logs (e.g. "yahoo", "alphavantage").
	Name() string

	// Components returns the current member symbols of the given index.
	Components(ctx context.Context, index string) ([]string, error)

	// Quote returns the latest quote snapshot for symbol.
	Quote(ctx context.Context, symbol string) (Quote, error)

	// Profile returns the company profile for symbol. A missing sector is
	// not an error; Profile.Sector is nil in that case.
	Profile(ctx context.Context, symbol string) (Profile, error)

	// History returns daily closes between from and to, oldest first.
	History(ctx context.Context, symbol string, from, to time.Time) ([]Close, error)
}

// Quote is a point-in-time price snapshot.
// MarketCap is in raw currency units and Volume in shares.
type Quote struct {
	Symbol        string
	ShortName     string
	Price         float64
	ChangePercent float64
	MarketCap     int64
	Volume        int64
}

// Profile carries company metadata.
type Profile struct {
	Sector    *string
	LongName  string
	MarketCap int64
}

// Close is one daily closing price.
type Close struct {
	Date  time.Time
	Price float64
}
