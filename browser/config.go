package browser

import "time"

type PoolConfig struct {
	Size           int           `yaml:"size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	ResetTimeout   time.Duration `yaml:"reset_timeout"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	MaxIdle        time.Duration `yaml:"max_idle"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	AllowOverflow  bool          `yaml:"allow_overflow"`
}

// DefaultPoolConfig returns a default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:           2,
		AcquireTimeout: 3 * time.Second,
		ResetTimeout:   5 * time.Second,
		PingTimeout:    3 * time.Second,
		MaxIdle:        5 * time.Minute,
		SweepInterval:  30 * time.Second,
		AllowOverflow:  true,
	}
}

type ChromeConfig struct {
	Headless        bool          `yaml:"headless"`
	UserAgent       string        `yaml:"user_agent"`
	ProxyURL        string        `yaml:"proxy_url"`
	LaunchTimeout   time.Duration `yaml:"launch_timeout"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	WaitSelector    string        `yaml:"wait_selector"`
}

// DefaultChromeConfig returns a default chrome configuration
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		Headless:        true,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		LaunchTimeout:   30 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		SettleDelay:     2 * time.Second,
		WaitSelector:    "body",
	}
}
