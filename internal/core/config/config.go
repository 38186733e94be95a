// Package config provides configuration management for tradepromo services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Rule sources for the promotion service.
const (
	RuleSourceDir = "dir"
	RuleSourceDB  = "db"
)

// Config is the complete tradepromo configuration.
type Config struct {
	Engine   EngineConfig
	Server   ServerConfig
	Database DatabaseConfig
}

// EngineConfig controls rule loading and evaluation.
type EngineConfig struct {
	RulesDir           string
	StopOnFirstTrigger bool
	StrictActions      bool
}

// ServerConfig holds configuration for the gRPC promotion service.
type ServerConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MetricsAddr    string
	DataDir        string
	RuleSource     string
}

// DatabaseConfig holds the connection URL (sqlite://path or postgres://...).
type DatabaseConfig struct {
	URL string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			RulesDir: "./rules",
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
			MetricsAddr:    ":9090",
			DataDir:        "./data",
			RuleSource:     RuleSourceDir,
		},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports TP_HMAC_SECRET (single) and TP_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("TP_HMAC_SECRET"); val != "" {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("TP_HMAC_SECRET: %w", err)
		}
		secrets[secretID] = decoded
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("TP_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return nil, fmt.Errorf("duplicate secret_id '%s' found in environment variables (check TP_HMAC_SECRET and TP_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
	}

	return secrets, nil
}

// ParseHMACSecret decodes a base64-encoded HMAC secret.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lower-case hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
