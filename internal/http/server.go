// Package http exposes the JSON API: account registration and login,
// category forest management, expense CRUD and search, summaries and
// exports.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"notbroke/internal/auth"
	"notbroke/internal/config"
	applog "notbroke/internal/log"
	"notbroke/internal/middleware/ratelimit"
	"notbroke/internal/middleware/security"
	"notbroke/internal/middleware/trace"
	"notbroke/internal/services"
	"notbroke/internal/storage"
)

type Server struct {
	http.Server

	logger     *applog.Logger
	auth       *auth.Service
	categories *services.CategoryService
	expenses   *services.ExpenseService
	summaries  *services.SummaryService
	repo       *storage.SQLiteRepository

	limiter  *ratelimit.Limiter
	validate *validator.Validate

	shutdownOnce sync.Once
}

type Deps struct {
	Auth       *auth.Service
	Categories *services.CategoryService
	Expenses   *services.ExpenseService
	Summaries  *services.SummaryService
	Repo       *storage.SQLiteRepository
}

// NewServer wires routes and the middleware chain, returning a server
// ready for ListenAndServe.
func NewServer(cfg *config.Config, logger *applog.Logger, deps Deps) *Server {
	s := &Server{
		logger:     logger.WithComponent(applog.ComponentHTTP),
		auth:       deps.Auth,
		categories: deps.Categories,
		expenses:   deps.Expenses,
		summaries:  deps.Summaries,
		repo:       deps.Repo,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
		}),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	authed := s.auth.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		respondError(w, r, err)
	})
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux.Handle("POST /categories", protect(s.handleCreateCategory))
	mux.Handle("GET /categories", protect(s.handleListCategories))
	mux.Handle("GET /categories/{id}", protect(s.handleGetCategory))
	mux.Handle("PATCH /categories/{id}", protect(s.handleUpdateCategory))
	mux.Handle("DELETE /categories/{id}", protect(s.handleDeleteCategory))
	mux.Handle("GET /categories/{id}/expenses", protect(s.handleCategoryExpenses))

	mux.Handle("POST /expenses", protect(s.handleCreateExpense))
	mux.Handle("GET /expenses", protect(s.handleSearchExpenses))
	mux.Handle("GET /expenses/export", protect(s.handleExportExpenses))
	mux.Handle("GET /expenses/{id}", protect(s.handleGetExpense))
	mux.Handle("PATCH /expenses/{id}", protect(s.handleUpdateExpense))
	mux.Handle("DELETE /expenses/{id}", protect(s.handleDeleteExpense))

	mux.Handle("GET /summary", protect(s.handleSummary))

	chain := trace.NewMiddleware(s.logger, security.ClientIP).Middleware(
		security.Headers(security.DefaultHeadersConfig())(
			s.limiter.Middleware(security.ClientIP)(
				applog.Middleware(s.logger)(mux))))

	s.Server = http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Shutdown stops the listener and the rate limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unreachable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
