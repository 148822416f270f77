package fetcher

import (
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"
)

// RetryPolicy configures the retry behaviour of clients built by NewHTTPClient.
type RetryPolicy struct {
	Count       int
	WaitTime    time.Duration
	MaxWaitTime time.Duration
}

// DefaultRetryPolicy is what production clients use.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Count:       3,
		WaitTime:    1 * time.Second,
		MaxWaitTime: 10 * time.Second,
	}
}

// NoRetry disables retries entirely.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// NewHTTPClient creates a new HTTP client with retry logic and exponential backoff
func NewHTTPClient(baseURL string, policy RetryPolicy) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(policy.Count).
		SetRetryWaitTime(policy.WaitTime).
		SetRetryMaxWaitTime(policy.MaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	return client
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	switch code := r.StatusCode(); {
	case code >= 500:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// retryHook logs retry attempts for observability
func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}

	slog.Debug("retrying request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}
