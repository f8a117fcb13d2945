package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/config"
	"github.com/nbsearch/notebook-indexer/internal/metrics"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
	"github.com/nbsearch/notebook-indexer/internal/queue"
)

// Server wires HTTP handlers to the stores and the job queue.
type Server struct {
	router    chi.Router
	notebooks notebook.Store
	repos     notebook.RepoStore
	enqueuer  queue.Enqueuer
	clock     notebook.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	notebooks notebook.Store,
	repos notebook.RepoStore,
	enqueuer queue.Enqueuer,
	clock notebook.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		notebooks: notebooks,
		repos:     repos,
		enqueuer:  enqueuer,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/notebooks", func(r chi.Router) {
			r.Get("/unresolved", s.listUnresolved)
			r.Route("/{notebook_id}", func(r chi.Router) {
				r.Get("/", s.getNotebook)
				r.Post("/sync", s.syncNotebook)
			})
		})
		r.Route("/repos/{repo_id}", func(r chi.Router) {
			r.Get("/", s.getRepo)
			r.Post("/sync", s.syncRepo)
			r.Get("/notebooks", s.listRepoNotebooks)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getNotebook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notebook_id")
	nb, err := s.notebooks.Load(r.Context(), id)
	if errors.Is(err, notebook.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "notebook not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load notebook")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notebook": nb})
}

func (s *Server) listUnresolved(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 100, 1000)
	notebooks, err := s.notebooks.ListUnresolved(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list notebooks")
		return
	}
	if notebooks == nil {
		notebooks = []notebook.Notebook{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notebooks": notebooks})
}

func (s *Server) syncNotebook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notebook_id")
	if _, err := s.notebooks.Load(r.Context(), id); err != nil {
		s.writeError(w, http.StatusNotFound, "notebook not found")
		return
	}
	s.enqueue(w, r, queue.KindContentSync, id)
}

func (s *Server) getRepo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "repo_id")
	repo, err := s.repos.Load(r.Context(), id)
	if errors.Is(err, notebook.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load repository")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"repository": repo})
}

func (s *Server) syncRepo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "repo_id")
	if _, err := s.repos.Load(r.Context(), id); err != nil {
		s.writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	s.enqueue(w, r, queue.KindRepoSync, id)
}

func (s *Server) listRepoNotebooks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "repo_id")
	if _, err := s.repos.Load(r.Context(), id); err != nil {
		s.writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	notebooks, err := s.notebooks.ListByRepo(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list notebooks")
		return
	}
	if notebooks == nil {
		notebooks = []notebook.Notebook{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notebooks": notebooks})
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, kind queue.Kind, key string) {
	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := queue.Item{
		Kind:       kind,
		Key:        key,
		EnqueuedAt: s.clock.Now(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "failed to enqueue job")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"kind": string(kind),
		"key":  key,
	})
}

// parseLimit reads a limit query value, falling back on the default when it
// is absent or not a positive integer, and clamping to max.
func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
