// Package api implements the query surface of spec.md §6: the stable HTTP
// contract over the grid, historical series, statistics, and arbitrage
// opportunities, plus health and operational endpoints.
//
// Grounded on the teacher's internal/interfaces/http/server.go: a
// gorilla/mux router, a middleware chain (request id, structured logging,
// timeout), and a Handlers type holding the query-layer dependencies.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/fundingobservatory/observatory/internal/cache"
	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/metrics"
)

// Server is the read-only HTTP query surface.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
}

// requestIDKey is the context key the requestID middleware stores under.
type requestIDKey struct{}

// New constructs a Server bound to cfg.ListenAddr with every spec.md §6
// endpoint wired.
func New(cfg config.APIConfig, deps Deps) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:   router,
		handlers: NewHandlers(deps),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Deps bundles the query API's collaborators, assembled by cmd/collector.
type Deps struct {
	Store       Store
	Cache       *cache.Cache
	Metrics     *metrics.Registry
	StatusPath  string
	LockPath    string
	MinAPR      float64
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(timeoutMiddleware)

	s.router.HandleFunc("/api/funding-rates-grid", s.handlers.Grid).Methods("GET")
	s.router.HandleFunc("/api/funding-rates", s.handlers.FundingRates).Methods("GET")
	s.router.HandleFunc("/api/historical-funding-by-asset/{asset}", s.handlers.HistoricalByAsset).Methods("GET")
	s.router.HandleFunc("/api/historical-funding-by-contract/{exchange}/{symbol}", s.handlers.HistoricalByContract).Methods("GET")
	s.router.HandleFunc("/api/contracts-with-zscores", s.handlers.ContractsWithZScores).Methods("GET")
	s.router.HandleFunc("/api/arbitrage/opportunities", s.handlers.ArbitrageOpportunities).Methods("GET")
	s.router.HandleFunc("/api/backfill-status", s.handlers.BackfillStatus).Methods("GET")
	s.router.HandleFunc("/api/cache/clear", s.handlers.CacheClear).Methods("POST")
	s.router.HandleFunc("/api/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/api/health/performance", s.handlers.Performance).Methods("GET")
	s.router.Handle("/metrics", s.handlers.metrics.Handler())

	s.router.NotFoundHandler = http.HandlerFunc(notFound)
}

// requestIDMiddleware stamps every request with a short correlation id,
// echoed on the response for client-side log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request's method, path, status, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("api request")
	})
}

// timeoutMiddleware bounds every request to a per-request timeout (spec.md
// §5: "a single HTTP request has a per-request timeout").
func timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	if id == "" {
		return "unknown"
	}
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "VALIDATION", "the requested endpoint does not exist", "")
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is called
// or a non-graceful error occurs.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("api: listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the server's bound address, for tests and startup logging.
func (s *Server) Addr() string {
	return s.server.Addr
}
