package aggregator

import (
	"stockaggregator/internal/fetcher"
)

// Stock is the normalized per-ticker record served to the dashboard.
// MarketCap is in raw currency units and RegularMarketVolume in shares;
// scaling for display is left to the consumer.
type Stock struct {
	Symbol                     string    `json:"symbol"`
	ShortName                  string    `json:"shortName"`
	RegularMarketPrice         float64   `json:"regularMarketPrice"`
	RegularMarketChangePercent float64   `json:"regularMarketChangePercent"`
	MarketCap                  int64     `json:"marketCap"`
	RegularMarketVolume        int64     `json:"regularMarketVolume"`
	Sector                     *string   `json:"sector"`
	ThirtyDayCloses            []float64 `json:"thirtyDayCloses"`
}

// Normalize builds a Stock from the three raw responses of one ticker,
// keeping the most recent window closes in chronological order. A record
// without any close is rejected rather than emitted partially. The record
// carries the symbol as claimed from the universe, not the provider's
// spelling of it, so distinct universe entries never collapse into one.
func Normalize(raw fetcher.RawRecord, window int) (Stock, error) {
	if len(raw.History) == 0 {
		return Stock{}, fetcher.NewValidationError("no closing prices for %s", raw.Symbol)
	}
	if window < 1 {
		window = 1
	}

	history := raw.History
	if len(history) > window {
		history = history[len(history)-window:]
	}
	closes := make([]float64, len(history))
	for i, c := range history {
		closes[i] = c.Price
	}

	stock := Stock{
		Symbol:                     raw.Symbol,
		ShortName:                  raw.Quote.ShortName,
		RegularMarketPrice:         raw.Quote.Price,
		RegularMarketChangePercent: raw.Quote.ChangePercent,
		MarketCap:                  raw.Quote.MarketCap,
		RegularMarketVolume:        raw.Quote.Volume,
		Sector:                     raw.Profile.Sector,
		ThirtyDayCloses:            closes,
	}
	if stock.Symbol == "" {
		stock.Symbol = raw.Quote.Symbol
	}
	if stock.ShortName == "" {
		stock.ShortName = raw.Profile.LongName
	}
	if stock.ShortName == "" {
		stock.ShortName = stock.Symbol
	}
	if stock.MarketCap == 0 {
		stock.MarketCap = raw.Profile.MarketCap
	}
	return stock, nil
}
