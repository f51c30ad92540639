// Package admin exposes the bridge's operational HTTP surface: health, task
// inventory, last-run summaries, and manual triggers. It is an internal tool
// behind basic auth, not a public API.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/proconsa/erp-bridge/internal/platform/httpx"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

// Task describes one schedulable sync for the task inventory endpoint.
type Task struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cron        string `json:"cron"`
}

// Trigger enqueues a task for immediate execution.
type Trigger interface {
	Enqueue(ctx context.Context, taskName string) (string, error)
}

// LastRuns reads the most recent run summary per task.
type LastRuns interface {
	Last(ctx context.Context, task string) (runlog.Summary, error)
}

// Config carries the server's dependencies.
type Config struct {
	Addr         string
	User         string
	PasswordHash string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Production   bool

	Tasks   []Task
	Trigger Trigger
	Runs    LastRuns
	Logger  *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	cfg    Config
	router chi.Router
}

// NewServer builds the router and middleware chain.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})
	limiter := httprate.Limit(60, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(secureMiddleware.Handler)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Use(s.basicAuth)
		gr.Get("/api/tasks", s.handleTasks)
		gr.Get("/api/tasks/{name}/last-run", s.handleLastRun)
		gr.Post("/api/tasks/{name}/run", s.handleTrigger)
	})

	s.router = r
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.cfg.Logger.Info("admin server listening", slog.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": s.cfg.Tasks})
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.knownTask(name) {
		httpx.RespondError(w, fmt.Errorf("%w: unknown task %q", httpx.ErrNotFound, name))
		return
	}
	summary, err := s.cfg.Runs.Last(r.Context(), name)
	if errors.Is(err, runlog.ErrNoRun) {
		httpx.RespondError(w, fmt.Errorf("%w: no runs recorded for %q", httpx.ErrNotFound, name))
		return
	}
	if err != nil {
		s.cfg.Logger.Error("read last run", slog.String("task", name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.knownTask(name) {
		httpx.RespondError(w, fmt.Errorf("%w: unknown task %q", httpx.ErrNotFound, name))
		return
	}
	id, err := s.cfg.Trigger.Enqueue(r.Context(), name)
	if err != nil {
		s.cfg.Logger.Error("enqueue task", slog.String("task", name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	s.cfg.Logger.Info("task enqueued manually", slog.String("task", name), slog.String("id", id))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task": name, "id": id})
}

func (s *Server) knownTask(name string) bool {
	for _, t := range s.cfg.Tasks {
		if t.Name == name {
			return true
		}
	}
	return false
}
