package search

import "time"

type Config struct {
	BaseURL    string     `yaml:"base_url"`
	Strategies []Strategy `yaml:"strategies"`
	// Workers caps concurrent tasks; the pool size caps it further.
	Workers         int           `yaml:"workers"`
	MaxFormulations int           `yaml:"max_formulations"`
	Category        string        `yaml:"category"`
	TaskTimeout     time.Duration `yaml:"task_timeout"`
	// NavigationsPerSecond throttles page loads across all tasks.
	NavigationsPerSecond float64 `yaml:"navigations_per_second"`
	NavigationBurst      int     `yaml:"navigation_burst"`
}

// DefaultConfig returns a default search configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:              "https://www.google.com",
		Workers:              3,
		MaxFormulations:      2,
		Category:             "餐廳",
		TaskTimeout:          45 * time.Second,
		NavigationsPerSecond: 2,
		NavigationBurst:      2,
	}
}
