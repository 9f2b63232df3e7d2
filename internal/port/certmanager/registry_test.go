package certmanager_test

import (
	"context"
	"testing"

	"github.com/qbsru/widgetdomains/internal/port/certmanager"
)

type testClient struct{}

func (testClient) RequestCertificate(_ context.Context, _ string) (string, error) {
	return "cert-1", nil
}

func (testClient) GetCertificateStatus(_ context.Context, _ string) (*certmanager.Status, error) {
	return &certmanager.Status{ProviderStatus: "ISSUED"}, nil
}

func (testClient) DeleteCertificate(_ context.Context, _ string) error { return nil }

func TestRegisterAndNew(t *testing.T) {
	certmanager.Register("test-ca", func(_ map[string]string) (certmanager.Client, error) {
		return testClient{}, nil
	})

	c, err := certmanager.New("test-ca", nil)
	if err != nil {
		t.Fatal(err)
	}
	id, err := c.RequestCertificate(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if id != "cert-1" {
		t.Fatalf("expected cert-1, got %s", id)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := certmanager.New("nonexistent", nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	certmanager.Register("dup-ca", func(_ map[string]string) (certmanager.Client, error) {
		return testClient{}, nil
	})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	certmanager.Register("dup-ca", func(_ map[string]string) (certmanager.Client, error) {
		return testClient{}, nil
	})
}

func TestAvailable(t *testing.T) {
	certmanager.Register("avail-ca", func(_ map[string]string) (certmanager.Client, error) {
		return testClient{}, nil
	})
	found := false
	for _, n := range certmanager.Available() {
		if n == "avail-ca" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected avail-ca in Available()")
	}
}
