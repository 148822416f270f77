package alphavantage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"stockaggregator/internal/fetcher"
	"stockaggregator/internal/ratelimit"
)

// DefaultBaseURL is the production AlphaVantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// notice holds the in-body status fields AlphaVantage returns with HTTP 200.
type notice struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (n notice) err() error {
	switch {
	case n.ErrorMessage != "":
		return fetcher.NewClientError(0, n.ErrorMessage)
	case n.Note != "":
		return fetcher.NewRateLimitError(0, n.Note)
	case n.Information != "":
		return fetcher.NewRateLimitError(0, n.Information)
	}
	return nil
}

// GlobalQuoteResponse represents the AlphaVantage API response for stock quotes
type GlobalQuoteResponse struct {
	notice
	GlobalQuote struct {
		Symbol           string `json:"01. symbol"`
		Open             string `json:"02. open"`
		High             string `json:"03. high"`
		Low              string `json:"04. low"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
}

// OverviewResponse represents the OVERVIEW (company fundamentals) response
type OverviewResponse struct {
	notice
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	Sector               string `json:"Sector"`
	MarketCapitalization string `json:"MarketCapitalization"`
}

// DailySeriesResponse represents the TIME_SERIES_DAILY response
type DailySeriesResponse struct {
	notice
	TimeSeries map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
}

// Client fetches stock data from AlphaVantage
type Client struct {
	apiKey  string
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// NewClient creates a new AlphaVantage provider
func NewClient(apiKey, baseURL string, policy fetcher.RetryPolicy, limiter *ratelimit.Limiter) *Client {
	return &Client{
		apiKey:  apiKey,
		client:  fetcher.NewHTTPClient(baseURL, policy),
		limiter: limiter,
	}
}

// Name implements fetcher.Provider
func (c *Client) Name() string {
	return "alphavantage"
}

// Components implements fetcher.Provider. AlphaVantage has no index
// membership endpoint, so callers always fall back to a static universe.
func (c *Client) Components(_ context.Context, index string) ([]string, error) {
	return nil, fetcher.NewClientError(0, fmt.Sprintf("index membership not supported for %s", index))
}

func (c *Client) query(ctx context.Context, function, symbol string, params map[string]string, result any) error {
	if err := c.limiter.Wait(ctx, ratelimit.APIAlphaVantage); err != nil {
		return fetcher.NewTimeoutError(err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":   c.apiKey,
			"function": function,
			"symbol":   symbol,
		}).
		SetQueryParams(params).
		SetResult(result).
		Get("")

	return fetcher.CheckResponse(resp, err)
}

// Quote implements fetcher.Provider using GLOBAL_QUOTE
func (c *Client) Quote(ctx context.Context, symbol string) (fetcher.Quote, error) {
	var result GlobalQuoteResponse
	if err := c.query(ctx, "GLOBAL_QUOTE", symbol, nil, &result); err != nil {
		return fetcher.Quote{}, fmt.Errorf("failed to fetch stock quote for %s: %w", symbol, err)
	}
	if err := result.err(); err != nil {
		return fetcher.Quote{}, fmt.Errorf("failed to fetch stock quote for %s: %w", symbol, err)
	}

	gq := result.GlobalQuote
	if gq.Price == "" {
		return fetcher.Quote{}, fetcher.NewValidationError("price not found in response for %s", symbol)
	}

	price, err := strconv.ParseFloat(gq.Price, 64)
	if err != nil {
		return fetcher.Quote{}, fetcher.NewValidationError("failed to parse stock price for %s: %v", symbol, err)
	}

	quote := fetcher.Quote{
		Symbol: gq.Symbol,
		Price:  price,
	}
	if gq.Volume != "" {
		if quote.Volume, err = strconv.ParseInt(gq.Volume, 10, 64); err != nil {
			return fetcher.Quote{}, fetcher.NewValidationError("failed to parse volume for %s: %v", symbol, err)
		}
	}
	if gq.ChangePercent != "" {
		pct := strings.TrimSuffix(gq.ChangePercent, "%")
		if quote.ChangePercent, err = strconv.ParseFloat(pct, 64); err != nil {
			return fetcher.Quote{}, fetcher.NewValidationError("failed to parse change percent for %s: %v", symbol, err)
		}
	}
	return quote, nil
}

// Profile implements fetcher.Provider using OVERVIEW
func (c *Client) Profile(ctx context.Context, symbol string) (fetcher.Profile, error) {
	var result OverviewResponse
	if err := c.query(ctx, "OVERVIEW", symbol, nil, &result); err != nil {
		return fetcher.Profile{}, fmt.Errorf("failed to fetch overview for %s: %w", symbol, err)
	}
	if err := result.err(); err != nil {
		return fetcher.Profile{}, fmt.Errorf("failed to fetch overview for %s: %w", symbol, err)
	}

	profile := fetcher.Profile{LongName: result.Name}
	if result.Sector != "" && result.Sector != "None" {
		sector := titleCase(result.Sector)
		profile.Sector = &sector
	}
	if mc, err := strconv.ParseInt(result.MarketCapitalization, 10, 64); err == nil {
		profile.MarketCap = mc
	}
	return profile, nil
}

// History implements fetcher.Provider using TIME_SERIES_DAILY (compact,
// the latest 100 sessions), filtered to [from, to].
func (c *Client) History(ctx context.Context, symbol string, from, to time.Time) ([]fetcher.Close, error) {
	var result DailySeriesResponse
	params := map[string]string{"outputsize": "compact"}
	if err := c.query(ctx, "TIME_SERIES_DAILY", symbol, params, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch daily series for %s: %w", symbol, err)
	}
	if err := result.err(); err != nil {
		return nil, fmt.Errorf("failed to fetch daily series for %s: %w", symbol, err)
	}
	if len(result.TimeSeries) == 0 {
		return nil, fetcher.NewValidationError("no daily series for %s", symbol)
	}

	fromDay := from.UTC().Truncate(24 * time.Hour)
	history := make([]fetcher.Close, 0, len(result.TimeSeries))
	for day, bar := range result.TimeSeries {
		date, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, fetcher.NewValidationError("bad date %q in series for %s", day, symbol)
		}
		if date.Before(fromDay) || date.After(to) {
			continue
		}
		price, err := strconv.ParseFloat(bar.Close, 64)
		if err != nil {
			return nil, fetcher.NewValidationError("bad close %q on %s for %s", bar.Close, day, symbol)
		}
		history = append(history, fetcher.Close{Date: date, Price: price})
	}

	sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })
	return history, nil
}

// titleCase turns AlphaVantage's upper-case sectors ("TECHNOLOGY",
// "LIFE SCIENCES") into the capitalisation Yahoo uses.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

