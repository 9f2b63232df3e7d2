// Package secrets holds credentials that must not reach config files or logs,
// such as the ACME external account binding and the key sealing secret.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Env keys read by the service.
const (
	ACMEEABKeyID = "WIDGETDOMAINS_ACME_EAB_KID"
	ACMEEABHMAC  = "WIDGETDOMAINS_ACME_EAB_HMAC"
	// ACMEKeySecret seals issued private keys at rest.
	ACMEKeySecret = "WIDGETDOMAINS_ACME_KEY_SECRET"
)

// minRedactLen is the shortest value RedactString replaces. Shorter values
// match too much ordinary text.
const minRedactLen = 4

// Loader retrieves secrets from a source (env vars, file, remote vault, etc.).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Keys returns the names of the loaded secrets, sorted.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Redacted returns a masked form of the secret suitable for logs.
func (v *Vault) Redacted(key string) string {
	return mask(v.Get(key))
}

// RedactString replaces every known secret value in s with its masked form.
func (v *Vault) RedactString(s string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, val := range v.values {
		if len(val) < minRedactLen {
			continue
		}
		s = strings.ReplaceAll(s, val, mask(val))
	}
	return s
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

func mask(val string) string {
	switch {
	case val == "":
		return ""
	case len(val) <= minRedactLen:
		return "****"
	default:
		return val[:2] + "****"
	}
}
