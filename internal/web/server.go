package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/finvex/autotrader/internal/audit"
	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/executor"
	"github.com/finvex/autotrader/internal/ledger"
	"github.com/finvex/autotrader/internal/storage"
)

// Server is the small operational surface: run history, order and audit
// review, and manual run triggers.
type Server struct {
	httpServer *http.Server
	repo       *storage.Repository
	trail      *audit.Trail
	ledger     *ledger.Ledger
	executor   *executor.Executor
	cfg        *config.Config
	log        zerolog.Logger
}

func NewServer(
	repo *storage.Repository,
	trail *audit.Trail,
	ldg *ledger.Ledger,
	exec *executor.Executor,
	cfg *config.Config,
	log zerolog.Logger,
) *Server {
	s := &Server{
		repo:     repo,
		trail:    trail,
		ledger:   ldg,
		executor: exec,
		cfg:      cfg,
		log:      log.With().Str("component", "web").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleRuns)
		r.Get("/orders", s.handleOrders)
		r.Get("/audit", s.handleAudit)
		r.Get("/balance/{userID}", s.handleBalance)
		r.Post("/trading/execute", s.handleExecute)
		r.Post("/trading/execute/{userID}", s.handleExecuteForUser)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Web.Port).Msg("web server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
