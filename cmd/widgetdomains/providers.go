package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qbsru/widgetdomains/internal/adapter/acm"
	"github.com/qbsru/widgetdomains/internal/adapter/acme"
	wdnats "github.com/qbsru/widgetdomains/internal/adapter/nats"
	"github.com/qbsru/widgetdomains/internal/config"
	"github.com/qbsru/widgetdomains/internal/port/certmanager"
	"github.com/qbsru/widgetdomains/internal/secrets"
)

const resumeTimeout = 30 * time.Second

// registerProviders makes every certificate manager adapter available by name.
func registerProviders(orders acme.OrderStore) {
	acm.Register()
	acme.Register(orders)
}

// providerConfig merges the EAB credentials and the key sealing secret from
// the vault into the certificate manager settings.
func providerConfig(cm config.CertManager, vault *secrets.Vault) map[string]string {
	m := cm.ProviderConfig()
	if sk := vault.Get(secrets.ACMEKeySecret); sk != "" {
		m["acme_key_secret"] = sk
	}
	if kid := vault.Get(secrets.ACMEEABKeyID); kid != "" {
		m["acme_eab_kid"] = kid
		m["acme_eab_hmac"] = vault.Get(secrets.ACMEEABHMAC)
	}
	return m
}

// newCertManager builds the configured certificate manager. ACME orders live
// in NATS KV when a queue is available so issuance state survives restarts.
func newCertManager(ctx context.Context, cfg *config.Config, vault *secrets.Vault, queue *wdnats.Queue) (certmanager.Client, error) {
	var orders acme.OrderStore = acme.NewMemoryOrderStore()
	if cfg.CertManager.Provider == acme.ProviderName {
		if queue == nil {
			slog.Warn("acme orders kept in memory: pending issuances are lost on restart")
		} else {
			kv, err := queue.KeyValue(ctx, cfg.NATS.OrderBucket, 0)
			if err != nil {
				return nil, fmt.Errorf("acme order store: %w", err)
			}
			orders = acme.NewKVOrderStore(kv)
		}
	}
	registerProviders(orders)

	client, err := certmanager.New(cfg.CertManager.Provider, providerConfig(cfg.CertManager, vault))
	if err != nil {
		return nil, err
	}
	slog.Info("certificate manager configured",
		"provider", cfg.CertManager.Provider,
		"available", certmanager.Available(),
		"eab_kid", vault.Redacted(secrets.ACMEEABKeyID),
	)
	return client, nil
}

// resumeIssuance restarts certificate orders a previous process left
// validating. Only the server calls it; admin commands never issue.
func resumeIssuance(ctx context.Context, certs certmanager.Client) {
	r, ok := certs.(interface {
		Resume(context.Context) (int, error)
	})
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, resumeTimeout)
	defer cancel()
	n, err := r.Resume(ctx)
	if err != nil {
		slog.Warn("certificate order resume failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("certificate orders resumed", "count", n)
	}
}
