package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stockaggregator/internal/aggregator"
)

// GetStocks handles GET /api/stocks. It runs a full aggregation and always
// answers 200 once the run completes, however many tickers were skipped.
func (h *Handler) GetStocks(c *gin.Context) {
	report, err := h.aggregator.Run(c.Request.Context())
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}

	setReportHeaders(c, report)
	c.JSON(http.StatusOK, gin.H{"stocks": report.Stocks})
}

// GetLatestStocks handles GET /api/stocks/latest, serving the most recent
// scheduled snapshot without triggering a run.
func (h *Handler) GetLatestStocks(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduled refresh is not enabled"})
		return
	}

	report, ok := h.snapshots.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot available yet"})
		return
	}

	setReportHeaders(c, report)
	c.Header(HeaderSnapshot, report.StartedAt.UTC().Format(time.RFC3339))
	c.JSON(http.StatusOK, gin.H{"stocks": report.Stocks})
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

func setReportHeaders(c *gin.Context, report aggregator.Report) {
	c.Header(HeaderAttempted, strconv.Itoa(report.Attempted))
	c.Header(HeaderSucceeded, strconv.Itoa(report.Succeeded))
	c.Header(HeaderSkipped, strconv.Itoa(report.Skipped))
	c.Header(HeaderFallback, strconv.FormatBool(report.UsedFallback))
}

// handleError logs the error and sends appropriate HTTP response
func (h *Handler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := c.GetString(RequestIDContextKey)
	if requestID == "" {
		requestID = "unknown"
	}

	h.logger.Error("API error",
		slog.String("request_id", requestID),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestID,
	})
}
