package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pricewise-ai/pricewise/internal/config"
)

const (
	// shutdownTimeout bounds the whole stop sequence: draining HTTP
	// connections plus every registered shutdown hook.
	shutdownTimeout = 30 * time.Second

	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

type shutdownHook struct {
	name string
	fn   func(context.Context) error
}

type Server struct {
	httpServer *http.Server
	hooks      []shutdownHook
}

func New(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}
}

// OnShutdown registers a hook to run after the HTTP listener has
// drained. Hooks run in registration order, so register dependents
// before their dependencies (pipeline drain before closing NATS).
func (s *Server) OnShutdown(name string, fn func(context.Context) error) {
	s.hooks = append(s.hooks, shutdownHook{name: name, fn: fn})
}

// Start serves until SIGINT/SIGTERM or a listener error, then drains.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("draining http server: %w", err)
	}

	// Stop background work only after the listener stops accepting
	// requests, so no handler can start a run we will not wait for.
	for _, hook := range s.hooks {
		if err := hook.fn(drainCtx); err != nil {
			slog.Warn("shutdown hook failed", "hook", hook.name, "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}
