package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"resty.dev/v3"

	"stockaggregator/internal/fetcher"
	"stockaggregator/internal/ratelimit"
)

// DefaultBaseURL is the production Yahoo Finance query host.
const DefaultBaseURL = "https://query2.finance.yahoo.com"

// DefaultCookieURL hands out the session cookie the crumb is bound to.
const DefaultCookieURL = "https://fc.yahoo.com"

const (
	userAgent = "Mozilla/5.0 (compatible; stockaggregator/1.0)"
	crumbPath = "/v1/test/getcrumb"
)

// Client fetches market data from Yahoo Finance's public JSON endpoints.
//
// The quote and quoteSummary endpoints reject requests that lack a crumb
// tied to a session cookie, so the client performs that handshake lazily
// and caches the crumb until Yahoo answers 401.
type Client struct {
	client    *resty.Client
	limiter   *ratelimit.Limiter
	cookieURL string

	mu    sync.Mutex
	crumb string
}

// Option configures a Client.
type Option func(*Client)

// WithCookieURL overrides the host visited to obtain the session cookie.
// An empty url keeps DefaultCookieURL.
func WithCookieURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.cookieURL = url
		}
	}
}

// NewClient creates a Yahoo provider rooted at baseURL.
func NewClient(baseURL string, policy fetcher.RetryPolicy, limiter *ratelimit.Limiter, opts ...Option) *Client {
	client := fetcher.NewHTTPClient(baseURL, policy).
		SetHeader("User-Agent", userAgent)
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		client.SetCookieJar(jar)
	}

	c := &Client{
		client:    client,
		limiter:   limiter,
		cookieURL: DefaultCookieURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements fetcher.Provider
func (c *Client) Name() string {
	return "yahoo"
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APIYahoo); err != nil {
		return nil, fetcher.NewTimeoutError(err)
	}
	return c.client.R().SetContext(ctx), nil
}

// sessionCrumb returns the cached crumb, performing the cookie handshake on
// first use. Concurrent callers share a single handshake.
func (c *Client) sessionCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.crumb != "" {
		return c.crumb, nil
	}

	// The cookie host answers 404 but still sets the session cookie; only
	// transport failures matter here.
	if resp, err := c.client.R().SetContext(ctx).Get(c.cookieURL); err != nil {
		return "", fmt.Errorf("failed to obtain yahoo session cookie: %w", fetcher.CheckResponse(resp, err))
	}

	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.SetHeader("Accept", "text/plain").Get(crumbPath)
	if err := fetcher.CheckResponse(resp, err); err != nil {
		return "", fmt.Errorf("failed to fetch yahoo crumb: %w", err)
	}

	crumb := strings.TrimSpace(resp.String())
	if crumb == "" || strings.ContainsAny(crumb, "<{ ") {
		return "", fetcher.NewValidationError("unexpected yahoo crumb response %q", crumb)
	}
	c.crumb = crumb
	return crumb, nil
}

func (c *Client) invalidateCrumb(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crumb == stale {
		c.crumb = ""
	}
}

// getWithCrumb issues a crumb-authenticated GET. A 401 means the crumb
// expired, so it is refreshed and the request retried once.
func (c *Client) getWithCrumb(ctx context.Context, path string, build func(*resty.Request) *resty.Request) (*resty.Response, error) {
	for attempt := 0; ; attempt++ {
		crumb, err := c.sessionCrumb(ctx)
		if err != nil {
			return nil, err
		}
		req, err := c.request(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := build(req).SetQueryParam("crumb", crumb).Get(path)
		if err == nil && resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			c.invalidateCrumb(crumb)
			continue
		}
		return resp, err
	}
}

// Components returns the member symbols of index (e.g. "^OEX" for the S&P 100).
func (c *Client) Components(ctx context.Context, index string) ([]string, error) {
	summary, err := c.quoteSummary(ctx, index, "components")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch components for %s: %w", index, err)
	}

	for _, r := range summary.QuoteSummary.Result {
		if r.Components != nil && len(r.Components.Components) > 0 {
			return r.Components.Components, nil
		}
	}
	return nil, fetcher.NewValidationError("no components found for %s", index)
}

// Quote implements fetcher.Provider
func (c *Client) Quote(ctx context.Context, symbol string) (fetcher.Quote, error) {
	var result QuoteResponse
	resp, err := c.getWithCrumb(ctx, "/v7/finance/quote", func(req *resty.Request) *resty.Request {
		return req.
			SetQueryParam("symbols", symbol).
			SetResult(&result)
	})
	if err := fetcher.CheckResponse(resp, err); err != nil {
		return fetcher.Quote{}, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}

	if e := result.QuoteResponse.Error; e != nil {
		return fetcher.Quote{}, fmt.Errorf("failed to fetch quote for %s: %w", symbol, fetcher.NewClientError(0, e.Description))
	}
	if len(result.QuoteResponse.Result) == 0 {
		return fetcher.Quote{}, fetcher.NewValidationError("quote not found for %s", symbol)
	}

	q := result.QuoteResponse.Result[0]
	if q.RegularMarketPrice == nil {
		return fetcher.Quote{}, fetcher.NewValidationError("price not found in quote for %s", symbol)
	}

	quote := fetcher.Quote{
		Symbol:    q.Symbol,
		ShortName: q.ShortName,
		Price:     *q.RegularMarketPrice,
	}
	if quote.ShortName == "" {
		quote.ShortName = q.LongName
	}
	if q.RegularMarketChangePercent != nil {
		quote.ChangePercent = *q.RegularMarketChangePercent
	}
	if q.MarketCap != nil {
		quote.MarketCap = *q.MarketCap
	}
	if q.RegularMarketVolume != nil {
		quote.Volume = *q.RegularMarketVolume
	}
	return quote, nil
}

// Profile implements fetcher.Provider
func (c *Client) Profile(ctx context.Context, symbol string) (fetcher.Profile, error) {
	summary, err := c.quoteSummary(ctx, symbol, "assetProfile,price")
	if err != nil {
		return fetcher.Profile{}, fmt.Errorf("failed to fetch profile for %s: %w", symbol, err)
	}

	var profile fetcher.Profile
	for _, r := range summary.QuoteSummary.Result {
		if r.AssetProfile != nil && r.AssetProfile.Sector != "" {
			sector := r.AssetProfile.Sector
			profile.Sector = &sector
		}
		if r.Price != nil {
			profile.LongName = r.Price.LongName
			if r.Price.MarketCap != nil {
				profile.MarketCap = r.Price.MarketCap.Raw
			}
		}
	}
	return profile, nil
}

func (c *Client) quoteSummary(ctx context.Context, symbol, modules string) (*QuoteSummaryResponse, error) {
	var result QuoteSummaryResponse
	resp, err := c.getWithCrumb(ctx, "/v10/finance/quoteSummary/{symbol}", func(req *resty.Request) *resty.Request {
		return req.
			SetPathParam("symbol", symbol).
			SetQueryParam("modules", modules).
			SetResult(&result)
	})
	if err := fetcher.CheckResponse(resp, err); err != nil {
		return nil, err
	}

	if e := result.QuoteSummary.Error; e != nil {
		return nil, fetcher.NewClientError(0, e.Description)
	}
	return &result, nil
}

// History implements fetcher.Provider. Days on which Yahoo reports a null
// close (halts, holidays) are dropped.
func (c *Client) History(ctx context.Context, symbol string, from, to time.Time) ([]fetcher.Close, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var result ChartResponse
	resp, err := req.
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(from.Unix(), 10),
			"period2":  strconv.FormatInt(to.Unix(), 10),
			"interval": "1d",
		}).
		SetResult(&result).
		Get("/v8/finance/chart/{symbol}")
	if err := fetcher.CheckResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
	}

	if e := result.Chart.Error; e != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, fetcher.NewClientError(0, e.Description))
	}
	if len(result.Chart.Result) == 0 {
		return nil, fetcher.NewValidationError("no chart data for %s", symbol)
	}

	chart := result.Chart.Result[0]
	if len(chart.Indicators.Quote) == 0 {
		return nil, fetcher.NewValidationError("no price series for %s", symbol)
	}
	closes := chart.Indicators.Quote[0].Close

	history := make([]fetcher.Close, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		history = append(history, fetcher.Close{
			Date:  time.Unix(ts, 0).UTC(),
			Price: *closes[i],
		})
	}

	sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })
	return history, nil
}
