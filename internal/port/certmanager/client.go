// Package certmanager defines the certificate manager port (interface): the
// narrow capability the service needs from an external certificate authority.
package certmanager

import (
	"context"
	"errors"
	"time"
)

// ErrCertificateNotFound is returned when the provider has no certificate
// with the given id.
var ErrCertificateNotFound = errors.New("certificate not found")

// ErrCertificateNotIssued is returned when a certificate exists but has no
// issued material yet.
var ErrCertificateNotIssued = errors.New("certificate not issued")

// Status is a provider's view of one certificate. ProviderStatus keeps the
// provider's own vocabulary; callers normalize it.
type Status struct {
	ProviderStatus string
	ExpiresAt      *time.Time

	// ValidationRecords are DNS records the provider needs before it can
	// issue. Empty for providers that validate on their own.
	ValidationRecords []ValidationRecord
}

// ValidationRecord is one DNS record requested by the provider.
type ValidationRecord struct {
	Name  string
	Type  string
	Value string
}

// Client requests, inspects and deletes certificates.
type Client interface {
	// RequestCertificate starts issuance for domain and returns the
	// provider's certificate id. It does not wait for issuance.
	RequestCertificate(ctx context.Context, domain string) (string, error)
	GetCertificateStatus(ctx context.Context, certificateID string) (*Status, error)
	DeleteCertificate(ctx context.Context, certificateID string) error
}

// Bundle is an issued certificate with its private key, both PEM encoded.
type Bundle struct {
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	ExpiresAt      *time.Time
}

// Exporter is implemented by providers that hold the private key of the
// certificates they issue.
type Exporter interface {
	ExportCertificate(ctx context.Context, certificateID string) (*Bundle, error)
}
