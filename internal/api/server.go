package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/AaronLay10/AdventureEngine/internal/attempt"
	"github.com/AaronLay10/AdventureEngine/internal/events"
	"github.com/AaronLay10/AdventureEngine/internal/metrics"
	"github.com/AaronLay10/AdventureEngine/internal/storage/postgres"
	"github.com/AaronLay10/AdventureEngine/internal/version"
)

const shutdownTimeout = 10 * time.Second

// ReadyCheck is one dependency consulted by /ready.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// EventLog serves persisted event history.
type EventLog interface {
	QueryEvents(ctx context.Context, attemptID string, limit int) ([]postgres.EventRow, error)
}

// Server is the HTTP front of the adventure service.
type Server struct {
	service *attempt.Service
	auth    *Authenticator
	metrics *metrics.Collector
	logger  *zap.Logger
	checks  []ReadyCheck
	history EventLog
	name    string
}

// Options configures a Server. Nil Auth disables authentication; nil
// Metrics and Logger are replaced with private instances.
type Options struct {
	Name    string
	Auth    *Authenticator
	Metrics *metrics.Collector
	Logger  *zap.Logger
	Checks  []ReadyCheck
	History EventLog
}

func NewServer(svc *attempt.Service, opts Options) *Server {
	s := &Server{
		service: svc,
		auth:    opts.Auth,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		checks:  opts.Checks,
		history: opts.History,
		name:    opts.Name,
	}
	if s.auth == nil {
		s.auth = NewAuthenticator("")
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.name == "" {
		s.name = "adventure-engine"
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireRole(RoleAuthor))
		r.Get("/events", s.handleEvents)
		r.Get("/ws/events", s.handleEventStream)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/adventures/validate", s.handleValidate)
		r.Get("/adventures/access/{code}", s.handleAdventureByCode)
		r.Get("/adventures/{id}/leaderboard", s.handleLeaderboard)
		r.Post("/adventures/{id}/guest", s.handleStartGuest)
		r.Post("/adventures/{id}/guest/submit", s.handleSubmitGuest)

		r.With(s.auth.RequireRole(RoleAuthor)).Post("/adventures", s.handleSaveAdventure)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireRole(RoleSolver))
			r.Get("/adventures/{id}/attempt", s.handleGetOrStart)
			r.Get("/attempts/{id}", s.handleGetAttempt)
			r.Post("/attempts/{id}/submit", s.handleSubmit)
		})
	})
	return r
}

// Serve listens on port until ctx is cancelled, then shuts down gracefully.
// A nil tlsCfg serves plain HTTP.
func (s *Server) Serve(ctx context.Context, port int, tlsCfg *tls.Config) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", tlsCfg != nil),
			zap.Bool("auth", s.auth.Enabled()),
		)
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api: %w", err)
	}
	return nil
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.name,
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleEvents returns the in-memory ring buffer, or the persisted history
// when ?history=1 or ?attempt_id= is given and an event log is configured.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attemptID := q.Get("attempt_id")
	if s.history == nil || (attemptID == "" && q.Get("history") == "") {
		writeJSON(w, http.StatusOK, events.Snapshot())
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := s.history.QueryEvents(r.Context(), attemptID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []postgres.EventRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// logRequests logs every request once it has been served.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.String("remoteAddr", r.RemoteAddr),
		)
	})
}

// observe records request counts and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}
