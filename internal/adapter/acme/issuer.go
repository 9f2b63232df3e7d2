package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// Issuer obtains and revokes certificates. Calls block until the CA answers
// and must be safe for concurrent use.
type Issuer interface {
	Obtain(domain string) (*certificate.Resource, error)
	Revoke(cert []byte) error
	Close() error
}

// IssuerConfig configures the lego-backed issuer.
type IssuerConfig struct {
	Email         string
	DirectoryURL  string
	HTTP01Address string // host:port the challenge server binds
	KeyType       string // EC256, EC384, RSA2048, RSA4096
	EABKeyID      string // external account binding, optional
	EABHMAC       string
}

var keyTypes = map[string]certcrypto.KeyType{
	"EC256":   certcrypto.EC256,
	"EC384":   certcrypto.EC384,
	"RSA2048": certcrypto.RSA2048,
	"RSA4096": certcrypto.RSA4096,
}

// legoIssuer registers an ACME account on first use and reuses it for every
// order. All orders share one challenge server.
type legoIssuer struct {
	cfg        IssuerConfig
	challenges *challengeServer

	mu     sync.Mutex
	client *lego.Client
}

// NewLegoIssuer validates cfg and returns an Issuer. No network traffic
// happens until the first Obtain.
func NewLegoIssuer(cfg IssuerConfig) (Issuer, error) {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.New("acme: email is required")
	}
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = lego.LEDirectoryProduction
	}
	if cfg.KeyType == "" {
		cfg.KeyType = "EC256"
	}
	if _, ok := keyTypes[strings.ToUpper(cfg.KeyType)]; !ok {
		return nil, fmt.Errorf("acme: unsupported key type %q", cfg.KeyType)
	}
	if cfg.HTTP01Address != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTP01Address); err != nil {
			return nil, fmt.Errorf("acme: invalid http-01 address %q: %w", cfg.HTTP01Address, err)
		}
	}
	return &legoIssuer{cfg: cfg, challenges: newChallengeServer(cfg.HTTP01Address)}, nil
}

func (l *legoIssuer) ensureClient() (*lego.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	user := &accountUser{email: l.cfg.Email, key: key}

	legoCfg := lego.NewConfig(user)
	legoCfg.CADirURL = l.cfg.DirectoryURL
	legoCfg.Certificate.KeyType = keyTypes[strings.ToUpper(l.cfg.KeyType)]

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("create acme client: %w", err)
	}

	if err := client.Challenge.SetHTTP01Provider(l.challenges); err != nil {
		return nil, fmt.Errorf("configure http-01 provider: %w", err)
	}

	var reg *registration.Resource
	if l.cfg.EABKeyID != "" {
		reg, err = client.Registration.RegisterWithExternalAccountBinding(registration.RegisterEABOptions{
			TermsOfServiceAgreed: true,
			Kid:                  l.cfg.EABKeyID,
			HmacEncoded:          l.cfg.EABHMAC,
		})
	} else {
		reg, err = client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	}
	if err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}
	user.registration = reg

	l.client = client
	return client, nil
}

func (l *legoIssuer) Obtain(domain string) (*certificate.Resource, error) {
	client, err := l.ensureClient()
	if err != nil {
		return nil, err
	}
	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("obtain certificate for %s: %w", domain, err)
	}
	return res, nil
}

func (l *legoIssuer) Revoke(cert []byte) error {
	client, err := l.ensureClient()
	if err != nil {
		return err
	}
	if err := client.Certificate.Revoke(cert); err != nil {
		return fmt.Errorf("revoke certificate: %w", err)
	}
	return nil
}

func (l *legoIssuer) Close() error {
	return l.challenges.Close()
}

type accountUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *accountUser) GetEmail() string                        { return u.email }
func (u *accountUser) GetRegistration() *registration.Resource { return u.registration }
func (u *accountUser) GetPrivateKey() crypto.PrivateKey        { return u.key }
