// Package config loads application configuration from environment variables,
// optionally layered over a YAML file.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	// APIBaseURL is the desk-booking backend root, e.g. http://localhost:8000.
	APIBaseURL string
	// ListenAddr is where the console server binds.
	ListenAddr string
	// DBPath is the SQLite file holding the persisted session.
	DBPath string
	// FallbackPath is where navigation is sent when no usable session exists.
	FallbackPath string

	RequestTimeout time.Duration
	ReadRetries    int
	ExpiryLeeway   time.Duration
	UserInfoTTL    time.Duration
	DiffMaxDepth   int

	// SecretKey is the 32-byte AES-256 key for the persisted session, decoded
	// from 64 hex characters. Nil means the session is kept in memory only.
	SecretKey []byte
}

// fileConfig is the YAML shape; durations are strings so "15s" parses.
type fileConfig struct {
	APIBaseURL     string `yaml:"api_base_url"`
	ListenAddr     string `yaml:"listen_addr"`
	DBPath         string `yaml:"db_path"`
	FallbackPath   string `yaml:"fallback_path"`
	RequestTimeout string `yaml:"request_timeout"`
	ReadRetries    *int   `yaml:"read_retries"`
	ExpiryLeeway   string `yaml:"expiry_leeway"`
	UserInfoTTL    string `yaml:"user_info_ttl"`
	DiffMaxDepth   *int   `yaml:"diff_max_depth"`
	SecretKey      string `yaml:"secret_key"`
}

// HasSecretKey reports whether the persisted session can be encrypted.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) == 32
}

func defaults() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:8000",
		ListenAddr:     "127.0.0.1:3000",
		DBPath:         "deskbooking.db",
		FallbackPath:   "/",
		RequestTimeout: 15 * time.Second,
		ReadRetries:    3,
		ExpiryLeeway:   0,
		UserInfoTTL:    time.Minute,
		DiffMaxDepth:   0,
	}
}

// Load reads configuration and returns a validated Config.
// If DESKBOOK_CONFIG_FILE names a YAML file its values replace the defaults;
// environment variables then override both:
// DESKBOOK_API_URL (http://localhost:8000), DESKBOOK_LISTEN_ADDR (127.0.0.1:3000),
// DESKBOOK_DB_PATH (deskbooking.db), DESKBOOK_FALLBACK_PATH (/),
// DESKBOOK_REQUEST_TIMEOUT (15s), DESKBOOK_READ_RETRIES (3),
// DESKBOOK_EXPIRY_LEEWAY (0s), DESKBOOK_USER_INFO_TTL (1m),
// DESKBOOK_DIFF_MAX_DEPTH (0, unbounded), DESKBOOK_SECRET_KEY (unset).
func Load() (*Config, error) {
	cfg := defaults()
	secretHex := ""

	if path, ok := os.LookupEnv("DESKBOOK_CONFIG_FILE"); ok && path != "" {
		fileSecret, err := applyFile(cfg, path)
		if err != nil {
			return nil, err
		}
		secretHex = fileSecret
	}

	if v, ok := os.LookupEnv("DESKBOOK_API_URL"); ok {
		cfg.APIBaseURL = v
	}
	if v, ok := os.LookupEnv("DESKBOOK_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("DESKBOOK_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("DESKBOOK_FALLBACK_PATH"); ok {
		cfg.FallbackPath = v
	}
	if v, ok := os.LookupEnv("DESKBOOK_SECRET_KEY"); ok {
		secretHex = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"DESKBOOK_REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"DESKBOOK_EXPIRY_LEEWAY", &cfg.ExpiryLeeway},
		{"DESKBOOK_USER_INFO_TTL", &cfg.UserInfoTTL},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.name)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", d.name, v, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"DESKBOOK_READ_RETRIES", &cfg.ReadRetries},
		{"DESKBOOK_DIFF_MAX_DEPTH", &cfg.DiffMaxDepth},
	}
	for _, i := range ints {
		v, ok := os.LookupEnv(i.name)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid integer %q: %w", i.name, v, err)
		}
		*i.dst = parsed
	}

	if secretHex != "" {
		key, err := hex.DecodeString(secretHex)
		if err != nil {
			return nil, fmt.Errorf("DESKBOOK_SECRET_KEY must be hex encoded: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("DESKBOOK_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("DESKBOOK_API_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("DESKBOOK_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.ReadRetries < 0 {
		return fmt.Errorf("DESKBOOK_READ_RETRIES must not be negative, got %d", c.ReadRetries)
	}
	if c.ExpiryLeeway < 0 {
		return fmt.Errorf("DESKBOOK_EXPIRY_LEEWAY must not be negative, got %s", c.ExpiryLeeway)
	}
	if c.DiffMaxDepth < 0 {
		return fmt.Errorf("DESKBOOK_DIFF_MAX_DEPTH must not be negative, got %d", c.DiffMaxDepth)
	}
	if c.FallbackPath == "" || c.FallbackPath[0] != '/' {
		return fmt.Errorf("DESKBOOK_FALLBACK_PATH must be an absolute path, got %q", c.FallbackPath)
	}
	return nil
}

// applyFile overlays the YAML file at path onto cfg and returns its secret key, if any.
func applyFile(cfg *Config, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read DESKBOOK_CONFIG_FILE %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return "", fmt.Errorf("parse DESKBOOK_CONFIG_FILE %q: %w", path, err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&cfg.APIBaseURL, fc.APIBaseURL)
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.FallbackPath, fc.FallbackPath)

	fileDurations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"request_timeout", fc.RequestTimeout, &cfg.RequestTimeout},
		{"expiry_leeway", fc.ExpiryLeeway, &cfg.ExpiryLeeway},
		{"user_info_ttl", fc.UserInfoTTL, &cfg.UserInfoTTL},
	}
	for _, d := range fileDurations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return "", fmt.Errorf("%s in %q has invalid duration %q: %w", d.field, path, d.raw, err)
		}
		*d.dst = parsed
	}

	if fc.ReadRetries != nil {
		cfg.ReadRetries = *fc.ReadRetries
	}
	if fc.DiffMaxDepth != nil {
		cfg.DiffMaxDepth = *fc.DiffMaxDepth
	}

	return fc.SecretKey, nil
}
