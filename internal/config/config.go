// Package config loads settings for the binaries from the environment and,
// for the demo, an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store backends accepted by SDK.StoreBackend.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Collector contains runtime configuration required by the dev collector.
type Collector struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	DBDriver  string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBURL     string `env:"DB_URL" envDefault:"collector.db"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// API_KEYS format: "tenant1:key1,tenant2:key2"
	APIKeysRaw string `env:"API_KEYS"`

	APIKeys map[string]string // apiKey -> tenantID, parsed from APIKeysRaw
}

// SDK is the tracker configuration used by the demo binary.
type SDK struct {
	APIKey        string `env:"ANALYTICS_API_KEY" yaml:"api_key"`
	Endpoint      string `env:"ANALYTICS_ENDPOINT" yaml:"endpoint"`
	FlushAtLaunch bool   `env:"ANALYTICS_FLUSH_AT_LAUNCH" envDefault:"true" yaml:"flush_at_launch"`
	MaxRetryCount int    `env:"ANALYTICS_MAX_RETRY_COUNT" envDefault:"3" yaml:"max_retry_count"`
	StorePath     string `env:"ANALYTICS_STORE_PATH" yaml:"store_path"`
	StoreBackend  string `env:"ANALYTICS_STORE_BACKEND" envDefault:"file" yaml:"store_backend"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"console" yaml:"log_format"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadCollector reads the collector settings from the environment.
func LoadCollector() (Collector, error) {
	var cfg Collector
	if err := ParseEnv(&cfg); err != nil {
		return Collector{}, err
	}

	cfg.DBURL = strings.TrimSpace(cfg.DBURL)
	if cfg.DBURL == "" {
		return Collector{}, errors.New("DB_URL required")
	}

	keys, err := parseAPIKeys(cfg.APIKeysRaw)
	if err != nil {
		return Collector{}, err
	}
	cfg.APIKeys = keys
	return cfg, nil
}

// LoadSDK reads the SDK settings from the environment, then overlays the YAML
// file at path when path is not empty. Keys present in the file win.
func LoadSDK(path string) (SDK, error) {
	var cfg SDK
	if err := ParseEnv(&cfg); err != nil {
		return SDK{}, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return SDK{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return SDK{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	switch cfg.StoreBackend {
	case BackendFile, BackendBadger:
	default:
		return SDK{}, fmt.Errorf("store_backend must be %q or %q, got %q", BackendFile, BackendBadger, cfg.StoreBackend)
	}
	if cfg.StoreBackend == BackendBadger && cfg.StorePath == "" {
		return SDK{}, errors.New("store_path required for the badger backend")
	}
	return cfg, nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	apiKeys := map[string]string{}

	for _, p := range strings.Split(strings.TrimSpace(raw), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "tenant:key,tenant:key"`)
		}
		tenant := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if tenant == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "tenant:key,tenant:key"`)
		}
		apiKeys[key] = tenant
	}

	// Local dev fallback so the collector runs out-of-the-box.
	if len(apiKeys) == 0 {
		apiKeys["tenant-key-123"] = "tenant1"
	}
	return apiKeys, nil
}
