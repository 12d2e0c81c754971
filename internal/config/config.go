// Package config loads beaconobs's configuration: a JSON5 file on disk
// overlaid with environment variables for secrets that must never be
// checked in (provider API keys).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the root configuration for the beaconobs server.
type Config struct {
	Store     StoreConfig     `json:"store"`
	HTTP      HTTPConfig      `json:"http"`
	Providers ProvidersConfig `json:"providers,omitempty"`
	Bus       BusConfig       `json:"bus,omitempty"`
}

// StoreConfig points at the embedded database file.
type StoreConfig struct {
	Path string `json:"path"` // sqlite file path, default "./beacon.db"
}

// HTTPConfig configures the listening address and WS origin allow-list.
type HTTPConfig struct {
	Addr           string   `json:"addr"`                      // default ":8420"
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // empty = no CORS headers sent; the /ws/live origin check then accepts any origin
	AuthToken      string   `json:"-"`                         // from env BEACON_AUTH_TOKEN only, never persisted
}

// ProvidersConfig holds LLM provider API keys. Keys are never read from the
// config file (only from env), so the JSON tags are "-".
type ProvidersConfig struct {
	OpenAIAPIKey    string `json:"-"`
	AnthropicAPIKey string `json:"-"`
	GoogleAPIKey    string `json:"-"`
}

// BusConfig configures the optional secondary fanout sink.
type BusConfig struct {
	RedisAddr    string `json:"redis_addr,omitempty"`    // e.g. "localhost:6379"; empty disables
	RedisChannel string `json:"redis_channel,omitempty"` // default "beaconobs:events"
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: "./beacon.db"},
		HTTP: HTTPConfig{
			Addr: ":8420",
		},
		Bus: BusConfig{
			RedisChannel: "beaconobs:events",
		},
	}
}

// Load reads a JSON5 config file at path, falling back to Default() if the
// file does not exist, then overlays secrets and a handful of operational
// knobs from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %q: %w", path, err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BEACON_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BEACON_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("BEACON_AUTH_TOKEN"); v != "" {
		cfg.HTTP.AuthToken = v
	}
	if v := os.Getenv("BEACON_OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAIAPIKey = v
	}
	if v := os.Getenv("BEACON_ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.AnthropicAPIKey = v
	}
	if v := os.Getenv("BEACON_GOOGLE_API_KEY"); v != "" {
		cfg.Providers.GoogleAPIKey = v
	}
	if v := os.Getenv("BEACON_REDIS_ADDR"); v != "" {
		cfg.Bus.RedisAddr = v
	}
	if v := os.Getenv("BEACON_REDIS_CHANNEL"); v != "" {
		cfg.Bus.RedisChannel = v
	}
}

// parseBool mirrors the teacher's permissive env-bool parsing ("1", "true",
// "yes" all count as true).
func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "yes" || v == "on"
	}
	return b
}
