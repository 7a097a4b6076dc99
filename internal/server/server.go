package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/zeropass/zeropass/internal/audit"
	"github.com/zeropass/zeropass/internal/catalog"
	"github.com/zeropass/zeropass/internal/config"
	"github.com/zeropass/zeropass/internal/engine"
	"github.com/zeropass/zeropass/internal/store"
)

// Server hosts the firewall simulator API: rule set management, simulation,
// evaluation logs, the template/scenario catalog and operational endpoints.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *audit.Metrics

	ruleSets store.RuleSets
	logs     store.Logs
	limiter  *engine.SlidingWindow
	engine   *engine.Engine
	catalog  *catalog.Catalog
	loader   *catalog.Loader
	guard    *IPGuard

	httpServer *http.Server
	version    string
}

// New assembles a Server from configuration. The storage backend, evaluation
// engine, catalog and guard are all wired here.
func New(cfg *config.Config, version string) (*Server, error) {
	logger := buildLogger(cfg)

	metrics := audit.NewMetrics()
	metrics.SetBuildInfo(version, runtime.Version())

	var (
		ruleSets store.RuleSets
		logs     store.Logs
	)
	switch cfg.Storage.Backend {
	case "redis":
		client, err := store.NewRedisClient(context.Background(), cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		ruleSets = store.NewRedisRuleSets(client)
		logs = store.NewRedisLogs(client)
		logger.Info("storage backend ready", "backend", "redis", "addr", cfg.Storage.Redis.Addr)
	default:
		ruleSets = store.NewMemoryRuleSets()
		logs = store.NewMemoryLogs()
		logger.Info("storage backend ready", "backend", "memory")
	}

	limiter := engine.NewSlidingWindow()
	recorder := audit.NewRecorder(logs, metrics, logger)
	eng := engine.New(limiter, recorder, logger)

	cat := catalog.New()
	loader, err := catalog.NewLoader(cat, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	guard := NewIPGuard(cfg.Limits.PerIP, cfg.Limits.Burst, cfg.Limits.CleanupInterval.Duration, cfg.Listen.TrustedProxies)

	return &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		ruleSets: ruleSets,
		logs:     logs,
		limiter:  limiter,
		engine:   eng,
		catalog:  cat,
		loader:   loader,
		guard:    guard,
		version:  version,
	}, nil
}

// Logger returns the server's structured logger.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Reloadables returns the components that react to configuration reloads.
// The server itself subscribes last so the reload metrics only tick after
// the other subscribers applied the new config.
func (s *Server) Reloadables() []config.Reloadable {
	return []config.Reloadable{s.loader, s.guard, s}
}

// OnConfigReload implements config.Reloadable for the reload metrics.
func (s *Server) OnConfigReload(_ *config.Config) error {
	s.metrics.RecordConfigReload(true)
	s.metrics.SetConfigReloadTime(time.Now())
	return nil
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Listen.Host, fmt.Sprintf("%d", s.cfg.Listen.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "version", s.version)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.cfg.Shutdown.Timeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown.Timeout.Duration)
	defer cancel()
	defer s.guard.Stop()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("shutdown complete")
	return nil
}

// buildLogger constructs the slog logger from the logging configuration.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}
