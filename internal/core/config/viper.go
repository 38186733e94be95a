package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to configuration keys. Flags that
// are bound override environment, file and defaults.
var flagKeys = map[string]string{
	"db-url":                "database.url",
	"rules-dir":             "engine.rules_dir",
	"stop-on-first-trigger": "engine.stop_on_first_trigger",
	"strict":                "engine.strict_actions",
	"host":                  "server.host",
	"port":                  "server.port",
	"metrics-addr":          "server.metrics_addr",
	"data-dir":              "server.data_dir",
	"rule-source":           "server.rule_source",
}

// LoadConfig loads configuration using viper.
// CLI flags > environment (TP_ prefix) > config file > defaults precedence.
// flags may be nil; only flags named in flagKeys are bound.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("engine.rules_dir", def.Engine.RulesDir)
	v.SetDefault("engine.stop_on_first_trigger", def.Engine.StopOnFirstTrigger)
	v.SetDefault("engine.strict_actions", def.Engine.StrictActions)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.max_connections", def.Server.MaxConnections)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("server.metrics_addr", def.Server.MetricsAddr)
	v.SetDefault("server.data_dir", def.Server.DataDir)
	v.SetDefault("server.rule_source", def.Server.RuleSource)
	v.SetDefault("database.url", "")

	v.SetEnvPrefix("TP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Engine: EngineConfig{
			RulesDir:           v.GetString("engine.rules_dir"),
			StopOnFirstTrigger: v.GetBool("engine.stop_on_first_trigger"),
			StrictActions:      v.GetBool("engine.strict_actions"),
		},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MaxConnections: v.GetInt("server.max_connections"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MetricsAddr:    v.GetString("server.metrics_addr"),
			DataDir:        v.GetString("server.data_dir"),
			RuleSource:     v.GetString("server.rule_source"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive limits and the rule source.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	switch cfg.Server.RuleSource {
	case RuleSourceDir:
		if cfg.Engine.RulesDir == "" {
			return fmt.Errorf("rules_dir required when rule_source is %q", RuleSourceDir)
		}
	case RuleSourceDB:
	default:
		return fmt.Errorf("rule_source must be %q or %q, got %q", RuleSourceDir, RuleSourceDB, cfg.Server.RuleSource)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
// InConfig inspects the file only, so TP_HMAC_SECRET in the environment is
// not mistaken for a file entry.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use TP_HMAC_SECRET environment variable)")
	}
	return nil
}
