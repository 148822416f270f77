package yahoo

// apiError is the error object Yahoo embeds in otherwise successful bodies.
type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// QuoteResponse represents the /v7/finance/quote response
type QuoteResponse struct {
	QuoteResponse struct {
		Result []QuoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

// QuoteResult is one entry of a quote response. Pointers distinguish a
// missing field from a zero value.
type QuoteResult struct {
	Symbol                     string   `json:"symbol"`
	ShortName                  string   `json:"shortName"`
	LongName                   string   `json:"longName"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	MarketCap                  *int64   `json:"marketCap"`
	RegularMarketVolume        *int64   `json:"regularMarketVolume"`
}

// QuoteSummaryResponse represents the /v10/finance/quoteSummary response for
// the assetProfile, price and components modules.
type QuoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile *struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
			Price *struct {
				LongName  string `json:"longName"`
				MarketCap *struct {
					Raw int64 `json:"raw"`
				} `json:"marketCap"`
			} `json:"price"`
			Components *struct {
				Components []string `json:"components"`
			} `json:"components"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteSummary"`
}

// ChartResponse represents the /v8/finance/chart response
type ChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}
