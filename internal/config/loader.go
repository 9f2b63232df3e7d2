package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "widgetdomains.yaml"

var knownProviders = map[string]bool{"acm": true, "acme": true}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("WIDGETDOMAINS_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "WIDGETDOMAINS_PORT")
	setString(&cfg.Server.CORSOrigin, "WIDGETDOMAINS_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "WIDGETDOMAINS_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "WIDGETDOMAINS_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "WIDGETDOMAINS_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "WIDGETDOMAINS_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "WIDGETDOMAINS_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.AuditStream, "WIDGETDOMAINS_NATS_AUDIT_STREAM")
	setString(&cfg.NATS.OrderBucket, "WIDGETDOMAINS_NATS_ORDER_BUCKET")
	setString(&cfg.NATS.CacheBucket, "WIDGETDOMAINS_NATS_CACHE_BUCKET")
	setString(&cfg.NATS.IdempotencyBucket, "WIDGETDOMAINS_NATS_IDEMPOTENCY_BUCKET")
	setString(&cfg.Logging.Level, "WIDGETDOMAINS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WIDGETDOMAINS_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "WIDGETDOMAINS_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "WIDGETDOMAINS_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "WIDGETDOMAINS_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "WIDGETDOMAINS_RATE_RPS")
	setInt(&cfg.Rate.Burst, "WIDGETDOMAINS_RATE_BURST")

	// Domains
	setString(&cfg.Domains.CNAMETarget, "WIDGETDOMAINS_CNAME_TARGET")
	setDuration(&cfg.Domains.VerificationInterval, "WIDGETDOMAINS_VERIFICATION_INTERVAL")
	setDuration(&cfg.Domains.DNSTimeout, "WIDGETDOMAINS_DNS_TIMEOUT")
	setList(&cfg.Domains.Nameservers, "WIDGETDOMAINS_NAMESERVERS")
	setDuration(&cfg.Domains.RenewalWindow, "WIDGETDOMAINS_RENEWAL_WINDOW")
	setDuration(&cfg.Domains.IssuanceDeadline, "WIDGETDOMAINS_ISSUANCE_DEADLINE")

	// Certificate manager
	setString(&cfg.CertManager.Provider, "WIDGETDOMAINS_CERT_PROVIDER")
	setString(&cfg.CertManager.Region, "AWS_REGION")
	setString(&cfg.CertManager.ACMEEmail, "WIDGETDOMAINS_ACME_EMAIL")
	setString(&cfg.CertManager.ACMEDirectory, "WIDGETDOMAINS_ACME_DIRECTORY")
	setString(&cfg.CertManager.HTTP01Address, "WIDGETDOMAINS_ACME_HTTP01_ADDRESS")
	setString(&cfg.CertManager.KeyType, "WIDGETDOMAINS_ACME_KEY_TYPE")
	setInt(&cfg.CertManager.MaxConcurrent, "WIDGETDOMAINS_ACME_MAX_CONCURRENT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "WIDGETDOMAINS_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.StatusTTL, "WIDGETDOMAINS_CACHE_STATUS_TTL")

	// Refresher
	setDuration(&cfg.Refresher.Interval, "WIDGETDOMAINS_REFRESH_INTERVAL")
	setInt(&cfg.Refresher.BatchSize, "WIDGETDOMAINS_REFRESH_BATCH_SIZE")

	// OpenTelemetry
	setBool(&cfg.OTel.Enabled, "WIDGETDOMAINS_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "WIDGETDOMAINS_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if strings.TrimSpace(cfg.Domains.CNAMETarget) == "" {
		return errors.New("domains.cname_target is required")
	}
	if cfg.Domains.VerificationInterval < 0 {
		return errors.New("domains.verification_interval must be >= 0")
	}
	if cfg.Domains.IssuanceDeadline <= 0 {
		return errors.New("domains.issuance_deadline must be > 0")
	}
	if cfg.Domains.DNSTimeout <= 0 {
		return errors.New("domains.dns_timeout must be > 0")
	}
	if !knownProviders[cfg.CertManager.Provider] {
		return fmt.Errorf("certmanager.provider %q is not one of acm, acme", cfg.CertManager.Provider)
	}
	if cfg.CertManager.Provider == "acme" && cfg.CertManager.ACMEEmail == "" {
		return errors.New("certmanager.acme_email is required for the acme provider")
	}
	if cfg.CertManager.MaxConcurrent < 1 {
		return errors.New("certmanager.max_concurrent must be >= 1")
	}
	if cfg.Cache.StatusTTL < 0 || cfg.Refresher.Interval < 0 {
		return errors.New("cache.status_ttl and refresher.interval must be >= 0")
	}
	if cfg.Refresher.BatchSize < 1 {
		return errors.New("refresher.batch_size must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList splits a comma-separated env value.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
