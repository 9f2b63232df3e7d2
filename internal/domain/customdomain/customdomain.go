// Package customdomain defines the custom domain model: a workspace's own DNS
// name pointed at the platform widget, its DNS verification state and the TLS
// certificate provisioned for it.
package customdomain

import "time"

// SSLStatus is the normalized certificate state.
type SSLStatus string

const (
	SSLPending SSLStatus = "pending"
	SSLActive  SSLStatus = "active"
	SSLExpired SSLStatus = "expired"
	SSLError   SSLStatus = "error"
)

// Valid reports whether s is one of the four known states.
func (s SSLStatus) Valid() bool {
	switch s {
	case SSLPending, SSLActive, SSLExpired, SSLError:
		return true
	}
	return false
}

// DNSStatus is the derived DNS verification state shown to users.
type DNSStatus string

const (
	DNSPending  DNSStatus = "pending"
	DNSVerified DNSStatus = "verified"
	DNSError    DNSStatus = "error"
)

// Config is the stored configuration of one custom domain.
type Config struct {
	ID                      string     `json:"id"`
	WorkspaceID             string     `json:"workspace_id"`
	Domain                  string     `json:"domain"`
	CNAMETarget             string     `json:"cname_target"`
	Verified                bool       `json:"verified"`
	VerifiedAt              *time.Time `json:"verified_at,omitempty"`
	LastVerificationAttempt *time.Time `json:"last_verification_attempt,omitempty"`
	VerificationError       *string    `json:"verification_error,omitempty"`
	SSLStatus               SSLStatus  `json:"ssl_status"`
	SSLCertificateID        *string    `json:"ssl_certificate_id,omitempty"`
	SSLExpiresAt            *time.Time `json:"ssl_expires_at,omitempty"`
	SSLRequestedAt          *time.Time `json:"ssl_requested_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`

	// SSLValidationRecords are the DNS records the certificate authority
	// wants to see before it issues, as of the last refresh.
	SSLValidationRecords []ValidationRecord `json:"ssl_validation_records,omitempty"`
}

// ValidationRecord is a DNS record requested by the certificate authority to
// prove control of the domain.
type ValidationRecord struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// EffectiveSSLStatus returns the SSL status that is meaningful for the
// current DNS state. Certificate state is ignored until DNS is verified.
func (c *Config) EffectiveSSLStatus() SSLStatus {
	if !c.Verified {
		return SSLPending
	}
	return c.SSLStatus
}

// DNSStatus derives the DNS verification state from the stored fields.
func (c *Config) DNSStatus() DNSStatus {
	switch {
	case c.Verified:
		return DNSVerified
	case c.VerificationError != nil:
		return DNSError
	default:
		return DNSPending
	}
}

// Ready reports whether the domain serves the widget over HTTPS.
func (c *Config) Ready() bool {
	return c.Verified && c.SSLStatus == SSLActive
}

// CreateRequest holds the fields needed to insert a new domain record.
type CreateRequest struct {
	WorkspaceID string
	Domain      string
	CNAMETarget string
}

// VerificationOutcome is persisted after a DNS check.
type VerificationOutcome struct {
	Verified          bool
	VerifiedAt        *time.Time
	VerificationError *string
	SSLStatus         SSLStatus
	SSLCertificateID  *string
	SSLRequestedAt    *time.Time // set when SSLCertificateID is a new request
}

// SSLState is persisted after polling the certificate manager.
type SSLState struct {
	Status            SSLStatus
	ExpiresAt         *time.Time
	ValidationRecords []ValidationRecord
}

// DNSInstructions tells the user which record to create at their DNS provider.
type DNSInstructions struct {
	RecordType string `json:"record_type"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	TTL        int    `json:"ttl"`
	Text       string `json:"text"`
}

// StatusView is the read-only projection returned by status queries. It is
// rebuilt from the stored record on every read.
type StatusView struct {
	ID                      string          `json:"id"`
	Domain                  string          `json:"domain"`
	CNAMETarget             string          `json:"cname_target"`
	DNSStatus               DNSStatus       `json:"dns_status"`
	SSLStatus               SSLStatus       `json:"ssl_status"`
	Ready                   bool            `json:"ready"`
	NeedsRenewal            bool            `json:"needs_renewal"`
	VerifiedAt              *time.Time      `json:"verified_at,omitempty"`
	SSLExpiresAt            *time.Time      `json:"ssl_expires_at,omitempty"`
	VerificationError       *string         `json:"verification_error,omitempty"`
	LastVerificationAttempt *time.Time      `json:"last_verification_attempt,omitempty"`
	NextVerificationAt      *time.Time      `json:"next_verification_at,omitempty"`
	Instructions            DNSInstructions `json:"instructions"`
	NextSteps               []string        `json:"next_steps"`

	// CertificateValidation lists the records to add while the certificate
	// is waiting for validation.
	CertificateValidation []ValidationRecord `json:"certificate_validation,omitempty"`
}

// RefreshResult is returned after polling the certificate manager.
type RefreshResult struct {
	Config       *Config `json:"config"`
	NeedsRenewal bool    `json:"needs_renewal"`
}
