package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/tagcaption/internal/adapters/http/api"
	"github.com/okian/tagcaption/internal/adapters/http/swagger"
	service "github.com/okian/tagcaption/internal/app"
	"github.com/okian/tagcaption/internal/config"
	"github.com/okian/tagcaption/pkg/logger"
	"github.com/okian/tagcaption/pkg/shutdown"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// httpShutdownPriority stops the listener before the service closes the store.
const httpShutdownPriority = 0

func main() {
	if err := logger.Init(); err != nil {
		// Logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(context.Background(), "tagcaption exited with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run loads configuration, starts the service and HTTP server, and blocks
// until ctx is canceled or the listener fails.
func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Get()
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		log.Warn(ctx, "invalid log_format; falling back to text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	log = logger.Get()

	svc := service.New(
		service.WithConfig(cfg),
		service.WithLogger(log.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, api.WithLogger(log.Named("http"))).Register(ctx, mux)
	srv := newHTTPServer(cfg, mux)

	hooks, err := newShutdownRegistry(srv, svc)
	if err != nil {
		_ = svc.Stop()
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down server...")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hooks.Run(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown incomplete", logger.Error(err))
		runErr = errors.Join(runErr, err)
	}

	log.Info(context.Background(), "server stopped")
	return runErr
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// newShutdownRegistry stops HTTP first so in-flight requests finish before
// the store is closed.
func newShutdownRegistry(srv *http.Server, svc *service.Service) (*shutdown.Registry, error) {
	hooks := shutdown.New()
	if err := hooks.Add("http", httpShutdownPriority, srv.Shutdown); err != nil {
		return nil, err
	}
	if err := hooks.Add("service", service.ShutdownPriority, svc.Shutdown); err != nil {
		return nil, err
	}
	return hooks, nil
}
