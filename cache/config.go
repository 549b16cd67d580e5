package cache

import "time"

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendNone   = "none"
)

type Policy struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

type Config struct {
	Backend       string          `yaml:"backend"`
	Path          string          `yaml:"path"`
	PurgeInterval time.Duration   `yaml:"purge_interval"`
	Policies      map[Kind]Policy `yaml:"policies"`
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		Backend:       BackendMemory,
		Path:          "data/cache.db",
		PurgeInterval: 10 * time.Minute,
		Policies:      DefaultPolicies(),
	}
}

func DefaultPolicies() map[Kind]Policy {
	return map[Kind]Policy{
		KindSearch:   {TTL: 30 * time.Minute, Capacity: 300},
		KindGeocode:  {TTL: 30 * 24 * time.Hour, Capacity: 5000},
		KindAnalysis: {TTL: 10 * time.Minute, Capacity: 500},
	}
}

// policyFor falls back to the built-in policy for kinds the config does not
// mention.
func policyFor(policies map[Kind]Policy, kind Kind) Policy {
	if p, ok := policies[kind]; ok && p.TTL > 0 && p.Capacity > 0 {
		return p
	}
	if p, ok := DefaultPolicies()[kind]; ok {
		return p
	}
	return Policy{TTL: 10 * time.Minute, Capacity: 500}
}
