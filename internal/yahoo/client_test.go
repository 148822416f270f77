package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockaggregator/internal/fetcher"
	"stockaggregator/internal/ratelimit"
)

var _ fetcher.Provider = (*Client)(nil)

// crumbGate fronts a handler the way Yahoo does: the root path hands out a
// session cookie, the crumb endpoint requires it, and quote endpoints answer
// 401 unless both cookie and current crumb are present.
type crumbGate struct {
	next http.Handler

	mu         sync.Mutex
	crumb      string
	rejectAll  bool
	handshakes int
}

func (g *crumbGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/":
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusNotFound)
	case r.URL.Path == crumbPath:
		if _, err := r.Cookie("A3"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		g.mu.Lock()
		g.handshakes++
		crumb := g.crumb
		g.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(crumb))
	case strings.HasPrefix(r.URL.Path, "/v7/"), strings.HasPrefix(r.URL.Path, "/v10/"):
		_, cookieErr := r.Cookie("A3")
		g.mu.Lock()
		ok := cookieErr == nil && !g.rejectAll && r.URL.Query().Get("crumb") == g.crumb
		g.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, `{"finance":{"result":null,"error":{"code":"Unauthorized","description":"Invalid Crumb"}}}`)
			return
		}
		g.next.ServeHTTP(w, r)
	default:
		g.next.ServeHTTP(w, r)
	}
}

func (g *crumbGate) rotate(crumb string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.crumb = crumb
}

func (g *crumbGate) handshakeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handshakes
}

func newGatedClient(t *testing.T, handler http.HandlerFunc) (*Client, *crumbGate) {
	t.Helper()
	gate := &crumbGate{next: handler, crumb: "crumb-1"}
	server := httptest.NewServer(gate)
	t.Cleanup(server.Close)
	return NewClient(server.URL, fetcher.NoRetry(), ratelimit.New(), WithCookieURL(server.URL)), gate
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	c, _ := newGatedClient(t, handler)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestClient_Name(t *testing.T) {
	c := NewClient(DefaultBaseURL, fetcher.NoRetry(), nil)
	assert.Equal(t, "yahoo", c.Name())
}

func TestClient_Quote_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7/finance/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		writeJSON(w, http.StatusOK, `{
			"quoteResponse": {
				"result": [{
					"symbol": "AAPL",
					"shortName": "Apple Inc.",
					"regularMarketPrice": 178.23,
					"regularMarketChangePercent": 0.98,
					"marketCap": 2780000000000,
					"regularMarketVolume": 50000000
				}],
				"error": null
			}
		}`)
	})

	quote, err := c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, fetcher.Quote{
		Symbol:        "AAPL",
		ShortName:     "Apple Inc.",
		Price:         178.23,
		ChangePercent: 0.98,
		MarketCap:     2780000000000,
		Volume:        50000000,
	}, quote)
}

func TestClient_Quote_FallsBackToLongName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"quoteResponse":{"result":[{"symbol":"BRK-B","longName":"Berkshire Hathaway Inc.","regularMarketPrice":410.5}]}}`)
	})

	quote, err := c.Quote(context.Background(), "BRK-B")
	require.NoError(t, err)
	assert.Equal(t, "Berkshire Hathaway Inc.", quote.ShortName)
	assert.Zero(t, quote.MarketCap)
}

func TestClient_Quote_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType fetcher.ErrorType
	}{
		{"server error", http.StatusInternalServerError, `{}`, fetcher.ErrorTypeServer},
		{"rate limited", http.StatusTooManyRequests, `{}`, fetcher.ErrorTypeRateLimit},
		{"not found", http.StatusNotFound, `{}`, fetcher.ErrorTypeClient},
		{"empty result", http.StatusOK, `{"quoteResponse":{"result":[]}}`, fetcher.ErrorTypeValidation},
		{"missing price", http.StatusOK, `{"quoteResponse":{"result":[{"symbol":"BAD"}]}}`, fetcher.ErrorTypeValidation},
		{"api error", http.StatusOK, `{"quoteResponse":{"result":[],"error":{"code":"Bad Request","description":"Invalid symbol"}}}`, fetcher.ErrorTypeClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := c.Quote(context.Background(), "BAD")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, fetcher.TypeOf(err))
			assert.Contains(t, err.Error(), "BAD")
		})
	}
}

func TestClient_Profile(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantSector *string
	}{
		{
			name:       "with sector",
			body:       `{"quoteSummary":{"result":[{"assetProfile":{"sector":"Technology","industry":"Consumer Electronics"}}],"error":null}}`,
			wantSector: strPtr("Technology"),
		},
		{
			name:       "no asset profile",
			body:       `{"quoteSummary":{"result":[{}],"error":null}}`,
			wantSector: nil,
		},
		{
			name:       "empty sector",
			body:       `{"quoteSummary":{"result":[{"assetProfile":{"sector":""}}]}}`,
			wantSector: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v10/finance/quoteSummary/MSFT", r.URL.Path)
				assert.Equal(t, "assetProfile,price", r.URL.Query().Get("modules"))
				writeJSON(w, http.StatusOK, tt.body)
			})

			profile, err := c.Profile(context.Background(), "MSFT")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSector, profile.Sector)
		})
	}
}

func TestClient_Profile_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"Quote not found for symbol: BAD"}}}`)
	})

	_, err := c.Profile(context.Background(), "BAD")
	require.Error(t, err)
	assert.Equal(t, fetcher.ErrorTypeClient, fetcher.TypeOf(err))
}

func TestClient_Components(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v10/finance/quoteSummary/^OEX", r.URL.Path)
		assert.Equal(t, "components", r.URL.Query().Get("modules"))
		writeJSON(w, http.StatusOK, `{"quoteSummary":{"result":[{"components":{"components":["AAPL","MSFT","NVDA"]}}]}}`)
	})

	symbols, err := c.Components(context.Background(), "^OEX")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, symbols)
}

func TestClient_Components_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"quoteSummary":{"result":[{"components":{"components":[]}}]}}`)
	})

	_, err := c.Components(context.Background(), "^OEX")
	require.Error(t, err)
	assert.Equal(t, fetcher.ErrorTypeValidation, fetcher.TypeOf(err))
}

func TestClient_History(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1d", q.Get("interval"))
		assert.Equal(t, "1740787200", q.Get("period1"))
		assert.Equal(t, "1743379200", q.Get("period2"))

		// out of order with a null close in the middle
		writeJSON(w, http.StatusOK, `{
			"chart": {
				"result": [{
					"timestamp": [1741008600, 1740749400, 1741095000],
					"indicators": {"quote": [{"close": [101.5, 100.25, null]}]}
				}],
				"error": null
			}
		}`)
	})

	history, err := c.History(context.Background(), "AAPL", from, to)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, 100.25, history[0].Price)
	assert.Equal(t, 101.5, history[1].Price)
	assert.True(t, history[0].Date.Before(history[1].Date))
}

func TestClient_History_ChartError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	})

	_, err := c.History(context.Background(), "GONE", time.Now().AddDate(0, 0, -30), time.Now())
	require.Error(t, err)
	assert.Equal(t, fetcher.ErrorTypeClient, fetcher.TypeOf(err))
}

func TestClient_ContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Quote(ctx, "AAPL")
	require.Error(t, err)
	assert.Equal(t, fetcher.ErrorTypeTimeout, fetcher.TypeOf(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func strPtr(s string) *string { return &s }

func TestClient_Profile_PriceModule(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"quoteSummary":{"result":[{
			"assetProfile": {"sector": "Financial Services"},
			"price": {"longName": "JPMorgan Chase & Co.", "marketCap": {"raw": 690000000000, "fmt": "690B"}}
		}]}}`)
	})

	profile, err := c.Profile(context.Background(), "JPM")
	require.NoError(t, err)

	require.NotNil(t, profile.Sector)
	assert.Equal(t, "Financial Services", *profile.Sector)
	assert.Equal(t, "JPMorgan Chase & Co.", profile.LongName)
	assert.Equal(t, int64(690000000000), profile.MarketCap)
}

func TestClient_CrumbHandshake(t *testing.T) {
	c, gate := newGatedClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crumb-1", r.URL.Query().Get("crumb"))
		switch {
		case r.URL.Path == "/v7/finance/quote":
			writeJSON(w, http.StatusOK, `{"quoteResponse":{"result":[{"symbol":"AAPL","regularMarketPrice":178.23}]}}`)
		case r.URL.Query().Get("modules") == "components":
			writeJSON(w, http.StatusOK, `{"quoteSummary":{"result":[{"components":{"components":["AAPL"]}}]}}`)
		default:
			writeJSON(w, http.StatusOK, `{"quoteSummary":{"result":[{"assetProfile":{"sector":"Technology"}}]}}`)
		}
	})
	ctx := context.Background()

	_, err := c.Components(ctx, "^OEX")
	require.NoError(t, err)
	_, err = c.Quote(ctx, "AAPL")
	require.NoError(t, err)
	_, err = c.Profile(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, gate.handshakeCount())
}

func TestClient_CrumbRefreshedOnUnauthorized(t *testing.T) {
	c, gate := newGatedClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"quoteResponse":{"result":[{"symbol":"AAPL","regularMarketPrice":178.23}]}}`)
	})
	ctx := context.Background()

	_, err := c.Quote(ctx, "AAPL")
	require.NoError(t, err)

	gate.rotate("crumb-2")

	quote, err := c.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 178.23, quote.Price)
	assert.Equal(t, 2, gate.handshakeCount())
}

func TestClient_CrumbRejectedRefreshesOnce(t *testing.T) {
	c, gate := newGatedClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not pass the crumb gate")
	})
	gate.mu.Lock()
	gate.rejectAll = true
	gate.mu.Unlock()

	_, err := c.Quote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, fetcher.ErrorTypeClient, fetcher.TypeOf(err))
	assert.Equal(t, 2, gate.handshakeCount())
}

func TestClient_CrumbUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case crumbPath:
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/v8/finance/chart/AAPL":
			writeJSON(w, http.StatusOK, `{"chart":{"result":[{"timestamp":[1741008600],"indicators":{"quote":[{"close":[101.5]}]}}]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	c := NewClient(server.URL, fetcher.NoRetry(), nil, WithCookieURL(server.URL))

	_, err := c.Quote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, fetcher.ErrorTypeServer, fetcher.TypeOf(err))
	assert.Contains(t, err.Error(), "crumb")

	// the chart endpoint does not need a crumb
	history, err := c.History(context.Background(), "AAPL", time.Now().AddDate(0, 0, -30), time.Now())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
