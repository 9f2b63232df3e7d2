// Package acme implements the certificate manager port on an ACME CA (Let's
// Encrypt by default) through go-acme/lego with HTTP-01 validation.
//
// ACME issuance is synchronous, so RequestCertificate records an order in
// the VALIDATING state and runs issuance in the background. Status reads
// come from the order store.
package acme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/google/uuid"

	"github.com/qbsru/widgetdomains/internal/port/certmanager"
)

// ProviderName is the registry name of this adapter.
const ProviderName = "acme"

const (
	// issueTimeout bounds one background issuance including queueing.
	issueTimeout = 10 * time.Minute
	// writeTimeout bounds order writes that must land after shutdown began.
	writeTimeout = 10 * time.Second
	// maxAttempts caps how often an interrupted order is resumed.
	maxAttempts = 3
	// deleteRetries bounds conditional delete attempts against a racing
	// issuance.
	deleteRetries = 3
)

// Client is a certmanager.Client backed by an ACME CA.
type Client struct {
	issuer Issuer
	orders OrderStore
	sealer *KeySealer
	pool   *pool
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

var (
	_ certmanager.Client   = (*Client)(nil)
	_ certmanager.Exporter = (*Client)(nil)
)

// New creates a Client. maxConcurrent bounds simultaneous issuances. Issued
// private keys are sealed with sealer before they are stored.
func New(issuer Issuer, orders OrderStore, sealer *KeySealer, maxConcurrent int) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		issuer: issuer,
		orders: orders,
		sealer: sealer,
		pool:   newPool(maxConcurrent),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds the "acme" factory to the certmanager registry. Orders are
// kept in the given store.
func Register(orders OrderStore) {
	certmanager.Register(ProviderName, func(cfg map[string]string) (certmanager.Client, error) {
		sealer, err := NewKeySealer(cfg["acme_key_secret"])
		if err != nil {
			return nil, err
		}
		issuer, err := NewLegoIssuer(IssuerConfig{
			Email:         cfg["acme_email"],
			DirectoryURL:  cfg["acme_directory"],
			HTTP01Address: cfg["http01_address"],
			KeyType:       cfg["key_type"],
			EABKeyID:      cfg["acme_eab_kid"],
			EABHMAC:       cfg["acme_eab_hmac"],
		})
		if err != nil {
			return nil, err
		}
		maxConcurrent, _ := strconv.Atoi(cfg["max_concurrent"])
		return New(issuer, orders, sealer, maxConcurrent), nil
	})
}

// RequestCertificate implements certmanager.Client. It returns the order id
// immediately; issuance continues in the background.
func (c *Client) RequestCertificate(ctx context.Context, domain string) (string, error) {
	now := c.now()
	o := &Order{
		ID:        uuid.NewString(),
		Domain:    domain,
		State:     StateValidating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.orders.Create(ctx, o); err != nil {
		return "", fmt.Errorf("acme request certificate %s: %w", domain, err)
	}

	c.enqueue(o.ID)
	return o.ID, nil
}

// Resume re-enqueues every order still VALIDATING, such as those abandoned
// by Close. Orders interrupted maxAttempts times are marked invalid.
func (c *Client) Resume(ctx context.Context) (int, error) {
	orders, err := c.orders.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("acme resume: %w", err)
	}
	n := 0
	for _, o := range orders {
		if o.State != StateValidating {
			continue
		}
		c.enqueue(o.ID)
		n++
	}
	return n, nil
}

func (c *Client) enqueue(id string) {
	c.pool.Go(c.ctx, func() { c.issue(id) })
}

// issue claims the order with a conditional write, runs issuance and stores
// the result against the claimed revision. A certificate whose order was
// deleted or rewritten meanwhile is revoked, not stored.
func (c *Client) issue(id string) {
	ctx, cancel := context.WithTimeout(c.ctx, issueTimeout)
	defer cancel()

	o, rev, err := c.orders.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, certmanager.ErrCertificateNotFound) {
			slog.Error("acme order load failed", "order_id", id, "error", err)
		}
		return
	}
	if o.State != StateValidating {
		return
	}

	o.Attempts++
	o.UpdatedAt = c.now()
	if o.Attempts > maxAttempts {
		o.State = StateInvalid
		o.Error = fmt.Sprintf("issuance interrupted %d times", maxAttempts)
		c.finish(o, rev, nil)
		return
	}
	if rev, err = c.orders.Update(ctx, o, rev); err != nil {
		slog.Warn("acme order claim failed", "order_id", id, "error", err)
		return
	}

	res, err := c.issuer.Obtain(o.Domain)
	var issued []byte
	if err == nil {
		issued = res.Certificate
		o.Certificate, o.ExpiresAt, err = certificateExpiry(res.Certificate)
		if err == nil {
			o.SealedKey, err = c.sealer.Seal(res.PrivateKey)
		}
	}
	if err != nil {
		o.State = StateInvalid
		o.Error = err.Error()
		o.Certificate, o.SealedKey = nil, nil
		slog.Warn("acme issuance failed", "order_id", o.ID, "domain", o.Domain, "error", err)
		if len(issued) > 0 {
			c.revokeOrphan(o, issued)
			issued = nil
		}
	} else {
		o.State = StateIssued
		slog.Info("acme certificate issued", "order_id", o.ID, "domain", o.Domain, "expires_at", o.ExpiresAt)
	}
	o.UpdatedAt = c.now()
	c.finish(o, rev, issued)
}

// finish stores the final order state even when Close has begun. issued is
// revoked if the write does not land.
func (c *Client) finish(o *Order, rev uint64, issued []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), writeTimeout)
	defer cancel()

	_, err := c.orders.Update(ctx, o, rev)
	if err == nil {
		return
	}
	slog.Warn("acme order update failed", "order_id", o.ID, "error", err)
	if len(issued) > 0 {
		c.revokeOrphan(o, issued)
	}
}

// revokeOrphan revokes a certificate no order will ever reference.
func (c *Client) revokeOrphan(o *Order, cert []byte) {
	if err := c.issuer.Revoke(cert); err != nil {
		slog.Error("acme revoke of orphaned certificate failed", "order_id", o.ID, "domain", o.Domain, "error", err)
		return
	}
	slog.Info("acme orphaned certificate revoked", "order_id", o.ID, "domain", o.Domain)
}

func certificateExpiry(pemBundle []byte) ([]byte, *time.Time, error) {
	if len(pemBundle) == 0 {
		return nil, nil, errors.New("empty certificate payload received from ACME server")
	}
	leaf, err := certcrypto.ParsePEMCertificate(pemBundle)
	if err != nil {
		return nil, nil, fmt.Errorf("parse issued certificate: %w", err)
	}
	notAfter := leaf.NotAfter.UTC()
	return pemBundle, &notAfter, nil
}

// GetCertificateStatus implements certmanager.Client. Issued certificates past
// their expiry report "expired".
func (c *Client) GetCertificateStatus(ctx context.Context, certificateID string) (*certmanager.Status, error) {
	o, _, err := c.orders.Get(ctx, certificateID)
	if err != nil {
		return nil, fmt.Errorf("acme certificate status: %w", err)
	}

	status := strings.ToLower(o.State)
	if o.State == StateIssued && o.ExpiresAt != nil && !c.now().Before(*o.ExpiresAt) {
		status = "expired"
	}
	return &certmanager.Status{ProviderStatus: status, ExpiresAt: o.ExpiresAt}, nil
}

// ExportCertificate implements certmanager.Exporter.
func (c *Client) ExportCertificate(ctx context.Context, certificateID string) (*certmanager.Bundle, error) {
	o, _, err := c.orders.Get(ctx, certificateID)
	if err != nil {
		return nil, fmt.Errorf("acme export certificate: %w", err)
	}
	if o.State != StateIssued {
		return nil, fmt.Errorf("acme export certificate %s: %w", certificateID, certmanager.ErrCertificateNotIssued)
	}
	key, err := c.sealer.Open(o.SealedKey)
	if err != nil {
		return nil, fmt.Errorf("acme export certificate %s: %w", certificateID, err)
	}
	return &certmanager.Bundle{CertificatePEM: o.Certificate, PrivateKeyPEM: key, ExpiresAt: o.ExpiresAt}, nil
}

// DeleteCertificate implements certmanager.Client. Issued certificates are
// revoked before the order is removed. The removal is conditional, so an
// issuance finishing concurrently either is seen here and revoked, or finds
// its order gone and revokes its own certificate.
func (c *Client) DeleteCertificate(ctx context.Context, certificateID string) error {
	for range deleteRetries {
		o, rev, err := c.orders.Get(ctx, certificateID)
		if err != nil {
			return fmt.Errorf("acme delete certificate: %w", err)
		}

		if o.State == StateIssued {
			if err := c.issuer.Revoke(o.Certificate); err != nil {
				return fmt.Errorf("acme delete certificate %s: %w", certificateID, err)
			}
		}

		err = c.orders.Delete(ctx, certificateID, rev)
		if errors.Is(err, ErrOrderChanged) {
			continue
		}
		if err != nil {
			return fmt.Errorf("acme delete certificate %s: %w", certificateID, err)
		}
		return nil
	}
	return fmt.Errorf("acme delete certificate %s: %w", certificateID, ErrOrderChanged)
}

// Wait blocks until all background issuances have finished.
func (c *Client) Wait() {
	c.pool.Wait()
}

// Close abandons queued issuances and waits for running ones. Abandoned
// orders stay VALIDATING and are picked up by Resume.
func (c *Client) Close() {
	c.cancel()
	c.pool.Wait()
	if err := c.issuer.Close(); err != nil {
		slog.Warn("acme issuer close failed", "error", err)
	}
}
