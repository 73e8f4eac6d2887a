// Package config loads chanlink configuration from a JSON5 file with
// environment-variable overrides, and watches it for changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the full runtime configuration.
type Config struct {
	// Gateway is the external channel gateway.
	Gateway GatewayConfig `json:"gateway"`

	// HTTP is the API server.
	HTTP HTTPConfig `json:"http"`

	// Store selects and configures the persistence backend.
	Store StoreFileConfig `json:"store"`

	// CallbackBaseURL is the public base URL the gateway delivers webhook
	// events to (e.g. "https://api.example.com").
	CallbackBaseURL string `json:"callbackBaseUrl"`
}

// GatewayConfig configures the external gateway client.
type GatewayConfig struct {
	BaseURL string `json:"baseUrl"`
	// RPM caps outbound gateway calls per minute. 0 disables the cap.
	RPM int `json:"rpm"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// AuthToken protects the API. Empty disables auth (local development).
	AuthToken string `json:"authToken"`
	// UserRPM is the per-user API rate limit (requests per minute).
	UserRPM int `json:"userRpm"`
}

// StoreFileConfig selects the persistence backend.
type StoreFileConfig struct {
	// PostgresDSN enables managed (Postgres) mode when set together with
	// Mode="managed".
	PostgresDSN string `json:"postgresDsn"`
	Mode        string `json:"mode"`
	SQLitePath  string `json:"sqlitePath"`
}

// DefaultPath returns the default config file location (~/.chanlink/config.json5).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json5"
	}
	return filepath.Join(home, ".chanlink", "config.json5")
}

// Load reads the config file (missing file yields defaults) and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Gateway: GatewayConfig{RPM: 120},
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8321", UserRPM: 60},
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults + env only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Store.SQLitePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.Store.SQLitePath = filepath.Join(home, ".chanlink", "data", "connections.db")
		} else {
			cfg.Store.SQLitePath = "connections.db"
		}
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.Gateway.BaseURL, "CHANLINK_GATEWAY_URL")
	setStr(&cfg.HTTP.Addr, "CHANLINK_HTTP_ADDR")
	setStr(&cfg.HTTP.AuthToken, "CHANLINK_AUTH_TOKEN")
	setStr(&cfg.Store.PostgresDSN, "CHANLINK_POSTGRES_DSN")
	setStr(&cfg.Store.Mode, "CHANLINK_STORE_MODE")
	setStr(&cfg.Store.SQLitePath, "CHANLINK_SQLITE_PATH")
	setStr(&cfg.CallbackBaseURL, "CHANLINK_CALLBACK_BASE_URL")

	if v := os.Getenv("CHANLINK_GATEWAY_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.RPM = n
		}
	}
}

// Validate checks the fields the serve command cannot run without.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.baseUrl is required (or CHANLINK_GATEWAY_URL)")
	}
	if c.CallbackBaseURL == "" {
		return fmt.Errorf("callbackBaseUrl is required (or CHANLINK_CALLBACK_BASE_URL)")
	}
	return nil
}
