// Package dnsresolver defines the DNS resolution port (interface).
package dnsresolver

import (
	"context"
	"errors"
)

var (
	// ErrNoRecords means the name does not exist or carries no CNAME record.
	ErrNoRecords = errors.New("no CNAME records")

	// ErrTemporary means the lookup could not complete (timeout, refused,
	// server failure). The answer is unknown, not negative.
	ErrTemporary = errors.New("temporary DNS failure")
)

// Resolver resolves CNAME records.
type Resolver interface {
	// LookupCNAME returns the CNAME targets found for host in answer order.
	// Failures wrap ErrNoRecords or ErrTemporary.
	LookupCNAME(ctx context.Context, host string) ([]string, error)
}
