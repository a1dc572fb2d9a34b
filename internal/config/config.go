package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the AgriMitra advisory gateway.
type Config struct {
	Port      int             `yaml:"port"`
	Version   string          `yaml:"version"`
	Backend   BackendConfig   `yaml:"backend"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// BackendConfig selects the generation backend and the credential pool.
type BackendConfig struct {
	Driver   string        `yaml:"driver"`
	Model    string        `yaml:"model"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`

	// APIKeys is the filtered credential list. Populated from the yaml file
	// and from GOOGLE_API_KEY_<n> / AGRIMITRA_API_KEYS.
	APIKeys []string `yaml:"api_keys"`
}

// GatewayConfig tunes the attempt loop and the HTTP-facing request bounds.
type GatewayConfig struct {
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MaxInFlight    int           `yaml:"max_in_flight"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HistoryLimit   int           `yaml:"history_limit"`
}

// SessionConfig controls expiry of idle conversation sessions. A zero TTL
// keeps sessions for the process lifetime.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// placeholderPrefixes mark template values copied from .env examples.
var placeholderPrefixes = []string{"your_", "PASTE_"}

// maxNumberedKeys bounds the GOOGLE_API_KEY_<n> scan.
const maxNumberedKeys = 16

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:    5004,
		Version: "0.1.0",
		Backend: BackendConfig{
			Driver:   "gemini",
			Model:    "gemini-2.5-flash",
			Endpoint: "",
			Timeout:  120 * time.Second,
		},
		Gateway: GatewayConfig{
			RetryDelay:     0,
			MaxInFlight:    0,
			RequestTimeout: 60 * time.Second,
			HistoryLimit:   20,
		},
		Sessions: SessionConfig{
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "agrimitra-advisor",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from an optional yaml file named by
// AGRIMITRA_CONFIG, then applies environment variables on top.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("AGRIMITRA_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = envInt("AGRIMITRA_PORT", cfg.Port)
	cfg.Version = envStr("AGRIMITRA_VERSION", cfg.Version)

	cfg.Backend.Driver = envStr("AGRIMITRA_BACKEND", cfg.Backend.Driver)
	cfg.Backend.Model = envStr("AGRIMITRA_MODEL", cfg.Backend.Model)
	cfg.Backend.Endpoint = envStr("AGRIMITRA_BACKEND_ENDPOINT", cfg.Backend.Endpoint)
	cfg.Backend.Timeout = envDuration("AGRIMITRA_BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.APIKeys = FilterCredentials(append(cfg.Backend.APIKeys, envCredentials()...))

	cfg.Gateway.RetryDelay = envDuration("AGRIMITRA_RETRY_DELAY", cfg.Gateway.RetryDelay)
	cfg.Gateway.MaxInFlight = envInt("AGRIMITRA_MAX_IN_FLIGHT", cfg.Gateway.MaxInFlight)
	cfg.Gateway.RequestTimeout = envDuration("AGRIMITRA_REQUEST_TIMEOUT", cfg.Gateway.RequestTimeout)
	cfg.Gateway.HistoryLimit = envInt("AGRIMITRA_HISTORY_LIMIT", cfg.Gateway.HistoryLimit)

	cfg.Sessions.TTL = envDuration("AGRIMITRA_SESSION_TTL", cfg.Sessions.TTL)
	cfg.Sessions.SweepInterval = envDuration("AGRIMITRA_SESSION_SWEEP", cfg.Sessions.SweepInterval)

	cfg.Telemetry.Enabled = envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)

	cfg.Log.Level = envStr("AGRIMITRA_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envStr("AGRIMITRA_LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// FilterCredentials drops empty, placeholder and duplicate values while
// preserving order.
func FilterCredentials(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || isPlaceholder(k) || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func isPlaceholder(key string) bool {
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// envCredentials collects GOOGLE_API_KEY_1..N followed by the comma
// separated AGRIMITRA_API_KEYS list.
func envCredentials() []string {
	var keys []string
	for i := 1; i <= maxNumberedKeys; i++ {
		if v := os.Getenv(fmt.Sprintf("GOOGLE_API_KEY_%d", i)); v != "" {
			keys = append(keys, v)
		}
	}
	if v := os.Getenv("AGRIMITRA_API_KEYS"); v != "" {
		keys = append(keys, strings.Split(v, ",")...)
	}
	return keys
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
