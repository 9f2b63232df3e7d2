package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	wdhttp "github.com/qbsru/widgetdomains/internal/adapter/http"
	wdnats "github.com/qbsru/widgetdomains/internal/adapter/nats"
	wdotel "github.com/qbsru/widgetdomains/internal/adapter/otel"
	"github.com/qbsru/widgetdomains/internal/adapter/postgres"
	"github.com/qbsru/widgetdomains/internal/config"
	"github.com/qbsru/widgetdomains/internal/logger"
	"github.com/qbsru/widgetdomains/internal/middleware"
	"github.com/qbsru/widgetdomains/internal/port/audit"
	"github.com/qbsru/widgetdomains/internal/service"
)

const (
	limiterCleanupInterval = time.Minute
	limiterMaxIdle         = 10 * time.Minute
	requestTimeout         = 30 * time.Second
	shutdownTimeout        = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	lg, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(lg)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"cname_target", cfg.Domains.CNAMETarget,
		"cert_provider", cfg.CertManager.Provider,
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := wdotel.Init(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var sink audit.Sink
	if a.queue != nil {
		sink = wdnats.NewAuditSink(a.queue)
	}
	auditor := service.NewAuditRecorder(sink)
	defer auditor.Wait()

	resumeIssuance(ctx, a.certs)
	service.NewRefresher(a.registry, cfg.Refresher.Interval, cfg.Refresher.BatchSize).Start(ctx)

	limiter := middleware.NewRateLimiter(cfg.Rate)
	limiter.StartCleanup(ctx, limiterCleanupInterval, limiterMaxIdle)

	handlers := &wdhttp.Handlers{
		Registry:  a.registry,
		Audit:     auditor,
		Readiness: a.readiness(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(wdotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(wdhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(wdhttp.SecurityHeaders)
	r.Use(wdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(limiter.Handler)
	r.Use(chimw.Timeout(requestTimeout))

	wdhttp.MountRoutes(r, handlers, a.store, a.idem)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
