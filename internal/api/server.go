package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lox/cyclewatch/internal/models"
	"github.com/lox/cyclewatch/internal/store"
)

// Runner executes a classification run on demand.
type Runner interface {
	Run(ctx context.Context, trigger string) (*models.StatusRecord, error)
}

type Server struct {
	statuses store.StatusStore
	audit    *store.Store
	runner   Runner
	port     string
}

func NewServer(statuses store.StatusStore, port string) *Server {
	return &Server{
		statuses: statuses,
		port:     port,
	}
}

// SetRunner enables POST /api/run.
func (s *Server) SetRunner(r Runner) {
	s.runner = r
}

// SetAudit enables GET /api/runs.
func (s *Server) SetAudit(audit *store.Store) {
	s.audit = audit
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	mux.HandleFunc("GET /api/history", s.handleAPIHistory)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("POST /api/run", s.handleAPIRun)
	mux.Handle("GET /metrics", promhttp.Handler())
	return withCORS(withLogging(mux))
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// withCORS allows any origin to read the status, matching the public endpoint.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().Str("component", "api").Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", rec.status).Dur("took", time.Since(start)).Msg("request")
	})
}
