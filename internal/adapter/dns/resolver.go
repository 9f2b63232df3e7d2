// Package dns implements the DNS resolver port with miekg/dns, querying the
// configured nameservers directly so that NXDOMAIN, NODATA and server
// failures can be told apart.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/qbsru/widgetdomains/internal/port/dnsresolver"
)

// DefaultResolvConf is read when no nameservers are configured.
const DefaultResolvConf = "/etc/resolv.conf"

// FallbackNameservers are used when resolv.conf is missing or empty.
var FallbackNameservers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// maxChain bounds how many CNAME hops are followed in one answer.
const maxChain = 8

// Resolver queries nameservers in order until one gives a definitive answer.
type Resolver struct {
	client  *mdns.Client
	servers []string
	timeout time.Duration
}

// New creates a Resolver. servers are host:port pairs; an empty list falls
// back to the system configuration.
func New(servers []string, timeout time.Duration) *Resolver {
	if len(servers) == 0 {
		servers = SystemNameservers(DefaultResolvConf)
	}
	return &Resolver{
		client:  &mdns.Client{Net: "udp", Timeout: timeout},
		servers: servers,
		timeout: timeout,
	}
}

// SystemNameservers parses a resolv.conf file into host:port pairs.
func SystemNameservers(path string) []string {
	cc, err := mdns.ClientConfigFromFile(path)
	if err != nil || len(cc.Servers) == 0 {
		return FallbackNameservers
	}
	out := make([]string, 0, len(cc.Servers))
	for _, s := range cc.Servers {
		out = append(out, net.JoinHostPort(s, cc.Port))
	}
	return out
}

// LookupCNAME implements dnsresolver.Resolver. It returns the CNAME targets
// of host in answer order, without trailing dots.
func (r *Resolver) LookupCNAME(ctx context.Context, host string) ([]string, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(host), mdns.TypeCNAME)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("lookup cname %s: %w: %w", host, dnsresolver.ErrTemporary, err)
		}

		qctx, cancel := context.WithTimeout(ctx, r.timeout)
		resp, _, err := r.client.ExchangeContext(qctx, msg, server)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}

		switch resp.Rcode {
		case mdns.RcodeSuccess:
		case mdns.RcodeNameError:
			return nil, fmt.Errorf("lookup cname %s: NXDOMAIN: %w", host, dnsresolver.ErrNoRecords)
		default:
			// SERVFAIL, REFUSED and friends say nothing about the record.
			lastErr = fmt.Errorf("%s: %s", server, mdns.RcodeToString[resp.Rcode])
			continue
		}

		targets := cnameTargets(resp.Answer, mdns.Fqdn(host))
		if len(targets) == 0 {
			return nil, fmt.Errorf("lookup cname %s: NODATA: %w", host, dnsresolver.ErrNoRecords)
		}
		return targets, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return nil, fmt.Errorf("lookup cname %s: %w: %w", host, dnsresolver.ErrTemporary, lastErr)
}

// cnameTargets collects the CNAME records owned by name. Resolvers may append
// the rest of the chain; only the record for the queried name is first.
func cnameTargets(answer []mdns.RR, name string) []string {
	var out []string
	owner := name
	for range maxChain {
		found := false
		for _, rr := range answer {
			c, ok := rr.(*mdns.CNAME)
			if !ok || !strings.EqualFold(c.Hdr.Name, owner) {
				continue
			}
			out = append(out, strings.TrimSuffix(c.Target, "."))
			owner = c.Target
			found = true
			break
		}
		if !found {
			break
		}
	}
	return out
}
