package engine

import (
	"lunchmind/browser"
	"lunchmind/cache"
	"lunchmind/geo"
	"lunchmind/probe"
	"lunchmind/reconcile"
	"lunchmind/search"
	"lunchmind/weather"
)

const (
	DefaultLimit = 10
	MaxLimit     = 20
)

type WeatherConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Source  weather.OpenMeteoConfig `yaml:"source"`
}

// Config gathers the configuration of every component Open builds.
type Config struct {
	DefaultKeyword string `yaml:"default_keyword"`

	Pool      browser.PoolConfig   `yaml:"pool"`
	Chrome    browser.ChromeConfig `yaml:"chrome"`
	Probe     probe.Config         `yaml:"probe"`
	Search    search.Config        `yaml:"search"`
	Geo       geo.Config           `yaml:"geo"`
	Nominatim geo.NominatimConfig  `yaml:"nominatim"`
	Reconcile reconcile.Config     `yaml:"reconcile"`
	Cache     cache.Config         `yaml:"cache"`
	Weather   WeatherConfig        `yaml:"weather"`
}

// DefaultConfig returns a default engine configuration
func DefaultConfig() Config {
	return Config{
		DefaultKeyword: "美食",
		Pool:           browser.DefaultPoolConfig(),
		Chrome:         browser.DefaultChromeConfig(),
		Probe:          probe.DefaultConfig(),
		Search:         search.DefaultConfig(),
		Geo:            geo.DefaultConfig(),
		Nominatim:      geo.DefaultNominatimConfig(),
		Reconcile:      reconcile.DefaultConfig(),
		Cache:          cache.DefaultConfig(),
		Weather: WeatherConfig{
			Source: weather.DefaultOpenMeteoConfig(),
		},
	}
}

// ClampLimit maps a requested result count into [1, MaxLimit]; zero or
// negative means DefaultLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
