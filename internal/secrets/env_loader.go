package secrets

import (
	"fmt"
	"os"
	"strings"
)

// fileSuffix names the variable that points at a mounted secret file, as in
// WIDGETDOMAINS_ACME_KEY_SECRET_FILE=/run/secrets/acme_key.
const fileSuffix = "_FILE"

// EnvLoader returns a Loader that reads the given variables. A key that is
// unset falls back to the file named by <key>_FILE, trailing newline removed.
// Keys with neither are omitted.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
				continue
			}
			path := os.Getenv(k + fileSuffix)
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s%s: %w", k, fileSuffix, err)
			}
			if v := strings.TrimRight(string(data), "\r\n"); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
