// Package api implements the read-only HTTP façade: health, status, stats,
// transaction/validator lookups, and a Prometheus /metrics endpoint.
// Deliberately outside the coordinator's core signing path, but still a
// first-class surface. Routing is gorilla/mux.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bridgerelay/coordinator/internal/chain"
	"github.com/bridgerelay/coordinator/internal/coordinator"
	"github.com/bridgerelay/coordinator/internal/threshold"
)

// Version is the build-time version string, swapped by a linker flag in
// real release builds; a plain constant is enough for this façade's
// /health response.
const Version = "dev"

// Coordinator is the subset of *coordinator.Coordinator the façade reads
// from, kept narrow so handler tests can fake it without the rest of the
// coordinator's dependency graph.
type Coordinator interface {
	CollectStats(ctx context.Context) (coordinator.Stats, error)
	RecentTransactions(page, limit int) []coordinator.TxRecord
	Transaction(srcTx string) (coordinator.TxRecord, bool)
	Validators() []threshold.ValidatorID
}

// Server is the read façade's HTTP server.
type Server struct {
	router    *mux.Router
	coord     Coordinator
	chainA    chain.Client
	chainB    chain.Client
	registry  *prometheus.Registry
	startedAt time.Time
	logger    zerolog.Logger
}

// New builds a Server with every route registered. registry backs the
// /metrics endpoint; pass the same registry given to metrics.New so
// counters line up with what the coordinator increments.
func New(coord Coordinator, chainA, chainB chain.Client, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		coord:     coord,
		chainA:    chainA,
		chainB:    chainB,
		registry:  registry,
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "api").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	s.router.HandleFunc("/transactions/{tx}", s.handleTransaction).Methods(http.MethodGet)
	s.router.HandleFunc("/validators", s.handleValidators).Methods(http.MethodGet)
	s.router.HandleFunc("/validators/{id}", s.handleValidator).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// ServeHTTP lets Server be used directly as an http.Handler, mainly so
// tests can drive it with httptest without a real listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the façade on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.CollectStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"version":      Version,
		"uptime_s":     int(time.Since(s.startedAt).Seconds()),
		"bridge_stats": stats,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	heightA, err := s.chainA.CurrentHeight(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read chain-a height for /status")
	}
	heightB, err := s.chainB.CurrentHeight(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read chain-b height for /status")
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"height_a":    heightA,
		"height_b":    heightB,
		"validators":  s.coord.Validators(),
		"recent_txs":  s.coord.RecentTransactions(0, 20),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.CollectStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed_a":       stats.ProcessedA,
		"processed_b":       stats.ProcessedB,
		"pending_sessions":  stats.PendingSignatures,
		"active_validators": stats.ActiveValidators,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 0 {
		page = 0
	}
	txs := s.coord.RecentTransactions(page, limit)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.coord.Transaction(mux.Vars(r)["tx"])
	if !ok {
		s.writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleValidators(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"validators": s.coord.Validators()})
}

func (s *Server) handleValidator(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, v := range s.coord.Validators() {
		if string(v) == id {
			s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": v})
			return
		}
	}
	s.writeError(w, http.StatusNotFound, errNotFound)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "not found" }
