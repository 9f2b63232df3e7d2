package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qbsru/widgetdomains/internal/adapter/dns"
	wdhttp "github.com/qbsru/widgetdomains/internal/adapter/http"
	wdnats "github.com/qbsru/widgetdomains/internal/adapter/nats"
	"github.com/qbsru/widgetdomains/internal/adapter/natskv"
	wdotel "github.com/qbsru/widgetdomains/internal/adapter/otel"
	"github.com/qbsru/widgetdomains/internal/adapter/postgres"
	"github.com/qbsru/widgetdomains/internal/adapter/ristretto"
	"github.com/qbsru/widgetdomains/internal/adapter/tiered"
	"github.com/qbsru/widgetdomains/internal/config"
	"github.com/qbsru/widgetdomains/internal/port/cache"
	"github.com/qbsru/widgetdomains/internal/port/certmanager"
	"github.com/qbsru/widgetdomains/internal/secrets"
	"github.com/qbsru/widgetdomains/internal/service"
)

const (
	idempotencyRetention = 24 * time.Hour
	idempotencyL1SizeMB  = 8
)

// app holds the infrastructure and services shared by the server and the
// admin commands.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	store    *postgres.Store
	queue    *wdnats.Queue // nil when NATS is disabled
	metrics  *wdotel.Metrics
	certs    certmanager.Client
	registry *service.Registry
	idem     cache.Cache

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// PostgreSQL
	a.pool, err = postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.onClose(a.pool.Close)
	a.store = postgres.NewStore(a.pool)

	// NATS
	if cfg.NATS.URL != "" {
		a.queue, err = wdnats.Connect(ctx, cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		q := a.queue
		a.onClose(func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		})
	} else {
		slog.Warn("nats disabled: audit events go to the log and the status cache is process-local")
	}

	a.metrics, err = wdotel.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// Certificate manager
	vault, err := secrets.NewVault(secrets.EnvLoader(secrets.ACMEEABKeyID, secrets.ACMEEABHMAC, secrets.ACMEKeySecret))
	if err != nil {
		return nil, err
	}
	a.certs, err = newCertManager(ctx, cfg, vault, a.queue)
	if err != nil {
		return nil, fmt.Errorf("certmanager: %w", err)
	}
	if c, ok := a.certs.(interface{ Close() }); ok {
		a.onClose(c.Close)
	}

	statusCache, err := a.statusCache(ctx)
	if err != nil {
		return nil, err
	}
	a.idem, err = a.idempotencyCache(ctx)
	if err != nil {
		return nil, err
	}

	// Services
	breaker := service.NewCertManagerBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	ssl := service.NewSSLProvisioner(a.certs, breaker)
	ssl.SetCache(statusCache, cfg.Cache.StatusTTL)
	ssl.SetRenewalWindow(cfg.Domains.RenewalWindow)
	ssl.SetMetrics(a.metrics)

	verifier := service.NewDNSVerifier(dns.New(cfg.Domains.Nameservers, cfg.Domains.DNSTimeout), a.metrics)

	a.registry = service.NewRegistry(a.store, verifier, ssl, cfg.Domains.CNAMETarget)
	a.registry.SetVerificationInterval(cfg.Domains.VerificationInterval)
	a.registry.SetIssuanceDeadline(cfg.Domains.IssuanceDeadline)
	return a, nil
}

// statusCache returns the certificate status snapshot cache: ristretto alone,
// or ristretto in front of NATS KV when NATS is enabled.
func (a *app) statusCache(ctx context.Context) (cache.Cache, error) {
	l1, err := ristretto.New(a.cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.onClose(l1.Close)
	if a.queue == nil {
		return l1, nil
	}

	kv, err := a.queue.KeyValue(ctx, a.cfg.NATS.CacheBucket, a.cfg.Cache.StatusTTL)
	if err != nil {
		return nil, fmt.Errorf("l2 cache: %w", err)
	}
	return tiered.New(l1, natskv.New(kv), a.cfg.Cache.StatusTTL), nil
}

// idempotencyCache stores replayable mutation responses: in NATS KV so every
// replica sees them, or in a process-local ristretto without NATS.
func (a *app) idempotencyCache(ctx context.Context) (cache.Cache, error) {
	if a.queue != nil {
		kv, err := a.queue.KeyValue(ctx, a.cfg.NATS.IdempotencyBucket, idempotencyRetention)
		if err != nil {
			return nil, fmt.Errorf("idempotency store: %w", err)
		}
		return natskv.New(kv), nil
	}
	c, err := ristretto.New(idempotencyL1SizeMB)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	a.onClose(c.Close)
	return c, nil
}

// readiness lists the dependencies checked by /health/ready.
func (a *app) readiness() []wdhttp.ReadinessCheck {
	checks := []wdhttp.ReadinessCheck{{Name: "postgres", Check: a.pool.Ping}}
	if a.queue != nil {
		q := a.queue
		checks = append(checks, wdhttp.ReadinessCheck{Name: "nats", Check: func(context.Context) error {
			if !q.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}})
	}
	return checks
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
