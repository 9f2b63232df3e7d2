// Package acm implements the certificate manager port on AWS Certificate
// Manager. Certificates are requested with DNS validation; ACM issues them
// once the validation records exist, so requesting never blocks.
package acm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/qbsru/widgetdomains/internal/port/certmanager"
)

// ProviderName is the registry name of this adapter.
const ProviderName = "acm"

// API is the subset of the ACM client used here.
type API interface {
	RequestCertificate(ctx context.Context, params *acm.RequestCertificateInput, optFns ...func(*acm.Options)) (*acm.RequestCertificateOutput, error)
	DescribeCertificate(ctx context.Context, params *acm.DescribeCertificateInput, optFns ...func(*acm.Options)) (*acm.DescribeCertificateOutput, error)
	DeleteCertificate(ctx context.Context, params *acm.DeleteCertificateInput, optFns ...func(*acm.Options)) (*acm.DeleteCertificateOutput, error)
}

// Client is a certmanager.Client backed by ACM.
type Client struct {
	api   API
	nonce func() string
}

// New wraps an ACM API implementation.
func New(api API) *Client {
	return &Client{api: api, nonce: uuid.NewString}
}

// NewFromRegion loads AWS credentials from the default chain and returns a
// Client for region.
func NewFromRegion(ctx context.Context, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("acm: load aws config: %w", err)
	}
	return New(acm.NewFromConfig(cfg)), nil
}

// Register adds the "acm" factory to the certmanager registry.
func Register() {
	certmanager.Register(ProviderName, func(cfg map[string]string) (certmanager.Client, error) {
		region := cfg["region"]
		if region == "" {
			return nil, errors.New("acm: region is required")
		}
		return NewFromRegion(context.Background(), region)
	})
}

// idempotencyToken identifies one RequestCertificate call, so SDK retries of
// that call collapse into one certificate. ACM answers a reused token with the
// earlier certificate for an hour, hence the per-call nonce. ACM accepts at
// most 32 word characters.
func idempotencyToken(domain, nonce string) string {
	sum := sha256.Sum256([]byte(domain + "|" + nonce))
	return hex.EncodeToString(sum[:16])
}

// RequestCertificate implements certmanager.Client.
func (c *Client) RequestCertificate(ctx context.Context, domain string) (string, error) {
	out, err := c.api.RequestCertificate(ctx, &acm.RequestCertificateInput{
		DomainName:       aws.String(domain),
		ValidationMethod: types.ValidationMethodDns,
		IdempotencyToken: aws.String(idempotencyToken(domain, c.nonce())),
		Tags: []types.Tag{
			{Key: aws.String("managed-by"), Value: aws.String("widgetdomains")},
		},
	})
	if err != nil {
		return "", fmt.Errorf("acm request certificate %s: %w", domain, err)
	}
	if out.CertificateArn == nil {
		return "", fmt.Errorf("acm request certificate %s: empty certificate arn", domain)
	}
	return *out.CertificateArn, nil
}

// GetCertificateStatus implements certmanager.Client. The provider status is
// ACM's status lower-cased, e.g. "pending_validation" or "issued".
func (c *Client) GetCertificateStatus(ctx context.Context, certificateID string) (*certmanager.Status, error) {
	out, err := c.api.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
		CertificateArn: aws.String(certificateID),
	})
	if err != nil {
		return nil, mapError(err, "acm describe certificate %s", certificateID)
	}
	if out.Certificate == nil {
		return nil, fmt.Errorf("acm describe certificate %s: %w", certificateID, certmanager.ErrCertificateNotFound)
	}

	return &certmanager.Status{
		ProviderStatus:    strings.ToLower(string(out.Certificate.Status)),
		ExpiresAt:         out.Certificate.NotAfter,
		ValidationRecords: validationRecords(out.Certificate.DomainValidationOptions),
	}, nil
}

// validationRecords returns the CNAME records ACM still waits for. ACM fills
// ResourceRecord a few seconds after the request, so early reads return none.
func validationRecords(opts []types.DomainValidation) []certmanager.ValidationRecord {
	var out []certmanager.ValidationRecord
	seen := make(map[string]bool)
	for _, o := range opts {
		if o.ResourceRecord == nil || o.ValidationStatus == types.DomainStatusSuccess {
			continue
		}
		rr := o.ResourceRecord
		name := aws.ToString(rr.Name)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, certmanager.ValidationRecord{
			Name:  name,
			Type:  string(rr.Type),
			Value: aws.ToString(rr.Value),
		})
	}
	return out
}

// DeleteCertificate implements certmanager.Client.
func (c *Client) DeleteCertificate(ctx context.Context, certificateID string) error {
	_, err := c.api.DeleteCertificate(ctx, &acm.DeleteCertificateInput{
		CertificateArn: aws.String(certificateID),
	})
	if err != nil {
		return mapError(err, "acm delete certificate %s", certificateID)
	}
	return nil
}

func mapError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
		return fmt.Errorf("%s: %w", msg, certmanager.ErrCertificateNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
