package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/config"
	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/review"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes the operator admin API: submission ingest, cluster
// reports and entry lookup. It is not the chat surface.
type Server struct {
	pool         *db.Pool
	orchestrator *review.Orchestrator
	idPool       *review.IDPool
	cfg          *config.Config
	logger       zerolog.Logger
	opts         Options
}

func NewServer(pool *db.Pool, orchestrator *review.Orchestrator, idPool *review.IDPool, cfg *config.Config, logger zerolog.Logger, opts Options) *Server {
	return &Server{
		pool:         pool,
		orchestrator: orchestrator,
		idPool:       idPool,
		cfg:          cfg,
		logger:       logger,
		opts:         opts,
	}
}

func (s *Server) Start(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/submissions", s.handleSubmit)
	e.GET("/v1/submissions/:id", s.handleGetSubmission)
	e.GET("/v1/report", s.handleReport)
	e.GET("/v1/report/keywords", s.handleKeywordReport)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("admin api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := s.opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin api: %w", err)
	}
	return <-errCh
}
