package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"lunchmind/engine"
)

type Config struct {
	AppPort        int           `yaml:"app_port"`
	PprofAddr      string        `yaml:"pprof_addr"`
	LogLevel       string        `yaml:"log_level"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Engine engine.Config `yaml:"engine"`
}

// Default returns the configuration used when no file or environment
// override says otherwise.
func Default() *Config {
	return &Config{
		AppPort:        8080,
		PprofAddr:      ":6060",
		LogLevel:       "info",
		RequestTimeout: 60 * time.Second,
		Engine:         engine.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path or a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := getEnv("APP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("APP_PORT: %w", err)
		}
		c.AppPort = port
	}
	if v, ok := getEnv("PROXY_URL"); ok {
		c.Engine.Chrome.ProxyURL = v
		c.Engine.Nominatim.ProxyURL = v
	}
	if v, ok := getEnv("POOL_SIZE"); ok {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POOL_SIZE: %w", err)
		}
		c.Engine.Pool.Size = size
	}
	if v, ok := getEnv("CACHE_PATH"); ok {
		c.Engine.Cache.Path = v
	}
	if v, ok := getEnv("CACHE_BACKEND"); ok {
		c.Engine.Cache.Backend = v
	}
	if v, ok := getEnv("SEARCH_BASE_URL"); ok {
		c.Engine.Search.BaseURL = v
	}
	if v, ok := getEnv("ROUTE_BASE_URL"); ok {
		c.Engine.Geo.RouteBaseURL = v
	}
	if v, ok := getEnv("GEOCODE_URL"); ok {
		c.Engine.Nominatim.URL = v
	}
	if v, ok := getEnv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	return nil
}

func getEnv(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}
