// Package pgwireadmin exposes a read-only HTTP status and Prometheus
// metrics endpoint over a *pgwire.Pool, in the style of the teacher
// repo's REST API server.
package pgwireadmin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgwireclient/pgwire"
	"github.com/pgwireclient/pgwire/internal/metrics"
)

// Server is a read-only status/metrics HTTP server fronting one Pool.
type Server struct {
	pool       *pgwire.Pool
	collector  *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
	logger     *slog.Logger
}

// NewServer builds a Server over pool, registering a metrics.Collector
// labeled poolName. Pass a nil logger to use slog.Default().
func NewServer(pool *pgwire.Pool, poolName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pool:      pool,
		collector: metrics.New(poolName),
		startTime: time.Now(),
		logger:    logger,
	}
}

// Collector returns the server's metrics collector, so callers can wire
// QueryDuration/TransactionCompleted observations from their own query
// call sites.
func (s *Server) Collector() *metrics.Collector { return s.collector }

// Start begins serving on addr (e.g. ":9090") and starts a background
// goroutine that periodically refreshes the pool gauges.
func (s *Server) Start(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/pool/stats", s.poolStatsHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go s.refreshLoop()

	s.logger.Info("pgwireadmin listening", "addr", addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("pgwireadmin server error", "err", err)
		}
	}()
	return nil
}

func (s *Server) refreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		stats := s.pool.Stats()
		s.collector.UpdatePoolStats(stats.Active, stats.Idle, stats.Waiting)
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
	})
}

func (s *Server) poolStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Fprintf(w, `{"error":"encoding response: %s"}`, err)
	}
}
