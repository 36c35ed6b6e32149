package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/pumpscan/service/db"
	"github.com/brojonat/pumpscan/service/metrics"
	natspkg "github.com/brojonat/pumpscan/service/nats"
	"github.com/brojonat/pumpscan/service/solana"
	"github.com/brojonat/pumpscan/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the read side of the wallet cache. Implemented by *db.Store.
type Store interface {
	Ping(ctx context.Context) error
	GetWalletStats(ctx context.Context, address string) (*db.WalletStats, error)
	GetWalletRank(ctx context.Context, address string) (*db.Rank, error)
	ListEvents(ctx context.Context, wallet string, limit, offset int) ([]solana.Event, error)
	CountEvents(ctx context.Context, wallet string) (int, error)
	ClearWalletCache(ctx context.Context, address string) (int64, error)
	ListTopLosers(ctx context.Context, limit int) ([]db.LeaderboardEntry, error)
	GetLeaderboardStats(ctx context.Context) (*db.LeaderboardStats, error)
}

// Scans starts scan workflows and reports on them. Implemented by
// *temporal.Client.
type Scans interface {
	StartScan(ctx context.Context, input temporal.ScanWalletInput) (workflowID, runID string, err error)
	GetScanResult(ctx context.Context, address string) (*temporal.ScanStatus, error)
}

// Server represents the HTTP server for the scan service.
type Server struct {
	addr       string
	store      Store
	scans      Scans
	subscriber natspkg.Subscriber
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The subscriber is optional - if nil, the SSE endpoint won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, store Store, scans Scans, subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       addr,
		store:      store,
		scans:      scans,
		subscriber: subscriber,
		metrics:    m,
		logger:     logger,
	}
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, metrics.InstrumentRoute(s.metrics, pattern, h))
	}

	// Scans
	route("POST /api/v1/scans", handleStartScan(s.scans, s.logger))
	route("GET /api/v1/scans/{address}", handleGetScan(s.scans, s.logger))

	// Cached wallet data
	route("GET /api/v1/wallets/{address}", handleGetWallet(s.store, s.logger))
	route("GET /api/v1/wallets/{address}/events", handleListEvents(s.store, s.logger))
	route("DELETE /api/v1/wallets/{address}/cache", handleClearCache(s.store, s.logger))

	// Leaderboard
	route("GET /api/v1/leaderboard", handleLeaderboard(s.store, s.logger))
	route("GET /api/v1/leaderboard/stats", handleLeaderboardStats(s.store, s.logger))

	if s.subscriber != nil {
		route("GET /api/v1/stream/scans/{address}", handleStreamScan(s.subscriber, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("NATS subscriber not configured, streaming endpoint disabled")
	}

	route("GET /health", handleHealth(s.store, s.logger))

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams stay open for the length of a scan.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close the subscriber first so open streams end.
	if s.subscriber != nil {
		s.subscriber.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
