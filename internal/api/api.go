package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockaggregator/internal/aggregator"
)

const (
	ServiceVersion      = "1.0.0"
	ServiceName         = "stock-aggregator"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"

	HeaderAttempted = "X-Tickers-Attempted"
	HeaderSucceeded = "X-Tickers-Succeeded"
	HeaderSkipped   = "X-Tickers-Skipped"
	HeaderFallback  = "X-Universe-Fallback"
	HeaderSnapshot  = "X-Snapshot-Time"
)

// Aggregator runs a full aggregation.
type Aggregator interface {
	Run(ctx context.Context) (aggregator.Report, error)
}

// SnapshotSource exposes the last scheduled report.
type SnapshotSource interface {
	Latest() (aggregator.Report, bool)
}

// Handler serves the stock endpoints.
type Handler struct {
	aggregator Aggregator
	snapshots  SnapshotSource
	logger     *slog.Logger
}

// NewHandler creates a new API handler. snapshots may be nil when no
// refresh schedule is configured.
func NewHandler(agg Aggregator, snapshots SnapshotSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		aggregator: agg,
		snapshots:  snapshots,
		logger:     logger,
	}
}

// SetupRoutes configures all API routes
func (h *Handler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(h.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/api/stocks", h.GetStocks)
	router.GET("/api/stocks/latest", h.GetLatestStocks)
	router.GET("/health", h.HealthCheck)

	return router
}

// NewServer wraps the routes in an http.Server listening on addr.
func (h *Handler) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
