package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/qbsru/widgetdomains/internal/secrets"
)

func staticLoader(vals map[string]string) secrets.Loader {
	return func() (map[string]string, error) { return vals, nil }
}

func TestNewVault(t *testing.T) {
	v, err := secrets.NewVault(staticLoader(map[string]string{secrets.ACMEEABKeyID: "kid-123"}))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if got := v.Get(secrets.ACMEEABKeyID); got != "kid-123" {
		t.Fatalf("expected kid-123, got %q", got)
	}
	if got := v.Get(secrets.ACMEEABHMAC); got != "" {
		t.Fatalf("expected empty value for missing key, got %q", got)
	}

	_, err = secrets.NewVault(func() (map[string]string, error) { return nil, errors.New("unreachable") })
	if err == nil {
		t.Fatal("expected error from failing loader")
	}
}

func TestVault_ReloadKeepsValuesOnError(t *testing.T) {
	calls := 0
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		calls++
		switch calls {
		case 1:
			return map[string]string{"HMAC": "first"}, nil
		case 2:
			return map[string]string{"HMAC": "rotated"}, nil
		default:
			return nil, errors.New("unavailable")
		}
	})

	if err := v.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := v.Get("HMAC"); got != "rotated" {
		t.Fatalf("expected rotated, got %q", got)
	}
	if err := v.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := v.Get("HMAC"); got != "rotated" {
		t.Fatalf("expected rotated after failed reload, got %q", got)
	}
}

func TestVault_Redaction(t *testing.T) {
	v, _ := secrets.NewVault(staticLoader(map[string]string{
		secrets.ACMEEABKeyID: "kid_live_abcdef",
		secrets.ACMEEABHMAC:  "hmacsecret123",
		"SHORT":              "ab",
	}))

	if got := v.Redacted(secrets.ACMEEABKeyID); got != "ki****" {
		t.Errorf("expected ki****, got %q", got)
	}
	if got := v.Redacted("SHORT"); got != "****" {
		t.Errorf("expected short value fully masked, got %q", got)
	}
	if got := v.Redacted("MISSING"); got != "" {
		t.Errorf("expected empty for missing key, got %q", got)
	}

	msg := v.RedactString("register account kid=kid_live_abcdef hmac=hmacsecret123 about")
	if strings.Contains(msg, "kid_live_abcdef") || strings.Contains(msg, "hmacsecret123") {
		t.Fatalf("secret leaked: %q", msg)
	}
	if !strings.Contains(msg, "about") {
		t.Fatalf("short secret should not be replaced inside ordinary text: %q", msg)
	}
}

func TestVault_Keys(t *testing.T) {
	v, _ := secrets.NewVault(staticLoader(map[string]string{"B": "2", "A": "1"}))
	if got := strings.Join(v.Keys(), ","); got != "A,B" {
		t.Fatalf("expected sorted keys A,B, got %s", got)
	}
}

func TestVault_ConcurrentAccess(t *testing.T) {
	v, _ := secrets.NewVault(staticLoader(map[string]string{"K": "V"}))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = v.Get("K")
		}()
		go func() {
			defer wg.Done()
			_ = v.Reload()
		}()
	}
	wg.Wait()
}

func TestEnvLoader(t *testing.T) {
	t.Setenv(secrets.ACMEEABKeyID, "kid-from-env")
	vals, err := secrets.EnvLoader(secrets.ACMEEABKeyID, secrets.ACMEEABHMAC)()
	if err != nil {
		t.Fatalf("EnvLoader: %v", err)
	}
	if vals[secrets.ACMEEABKeyID] != "kid-from-env" {
		t.Fatalf("expected kid-from-env, got %q", vals[secrets.ACMEEABKeyID])
	}
	if _, ok := vals[secrets.ACMEEABHMAC]; ok {
		t.Fatal("expected unset variable to be omitted")
	}
}

func TestEnvLoaderReadsSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme_key")
	if err := os.WriteFile(path, []byte("sealing-secret-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(secrets.ACMEKeySecret+"_FILE", path)
	t.Setenv(secrets.ACMEEABKeyID, "kid-from-env")
	t.Setenv(secrets.ACMEEABKeyID+"_FILE", filepath.Join(t.TempDir(), "ignored"))

	vals, err := secrets.EnvLoader(secrets.ACMEKeySecret, secrets.ACMEEABKeyID)()
	if err != nil {
		t.Fatalf("EnvLoader: %v", err)
	}
	if got := vals[secrets.ACMEKeySecret]; got != "sealing-secret-from-file" {
		t.Fatalf("expected file value without newline, got %q", got)
	}
	if got := vals[secrets.ACMEEABKeyID]; got != "kid-from-env" {
		t.Fatalf("expected the variable to win over its file, got %q", got)
	}

	t.Setenv(secrets.ACMEKeySecret+"_FILE", filepath.Join(t.TempDir(), "missing"))
	if _, err := secrets.EnvLoader(secrets.ACMEKeySecret)(); err == nil {
		t.Fatal("expected error for an unreadable secret file")
	}
}
