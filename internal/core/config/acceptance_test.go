package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestAcceptanceCriteria verifies the secret handling and precedence rules.
func TestAcceptanceCriteria(t *testing.T) {
	t.Run("AC1: Environment variable TP_HMAC_SECRET accessible via HMACSecrets", func(t *testing.T) {
		t.Setenv("TP_HMAC_SECRET", testSecretA)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("AC1 FAIL: HMACSecrets error: %v", err)
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Fatal("AC1 FAIL: Secret not accessible")
		}
	})

	t.Run("AC2: Config file with hmac_secret rejected with clear error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `server:
  host: "localhost"
  port: 8080
  hmac_secret: "should_be_rejected"
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		_, err := LoadConfig(path, nil)
		if err == nil {
			t.Fatal("AC2 FAIL: Expected error for secret in config file")
		}
		if err.Error() != "HMAC secrets not allowed in config files (use TP_HMAC_SECRET environment variable)" {
			t.Fatalf("AC2 FAIL: Wrong error message: %v", err)
		}
	})

	t.Run("AC3: Environment overrides config file", func(t *testing.T) {
		t.Setenv("TP_SERVER_PORT", "8080")

		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig(path, nil)
		if err != nil {
			t.Fatalf("AC3 FAIL: LoadConfig error: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Fatalf("AC3 FAIL: Environment should override config file. Expected 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("AC4: Missing config file is an error", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Fatal("AC4 FAIL: Expected error for missing config file")
		}
	})
}
