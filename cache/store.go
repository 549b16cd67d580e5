package cache

import (
	"errors"
	"time"
)

type Kind string

const (
	KindSearch   Kind = "search-results"
	KindGeocode  Kind = "geocode"
	KindAnalysis Kind = "external-analysis"
)

var ErrCacheUnavailable = errors.New("cache: unavailable")

// Entry is one cached payload. Timestamps are owned by the Layer so stores
// stay clock-agnostic.
type Entry struct {
	Kind           Kind      `json:"kind"`
	Key            string    `json:"key"`
	Payload        []byte    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
}

func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store persists entries. Get never returns an entry expired at now and
// records the access on the entries it returns.
type Store interface {
	Get(kind Kind, key string, now time.Time) (Entry, bool, error)
	Put(e Entry) error
	Delete(kind Kind, key string) error
	PurgeExpired(now time.Time) (int, error)
	// EnforceCapacity evicts the least used entries of kind until at most
	// capacity remain. The entry under keep, just written, is never evicted.
	EnforceCapacity(kind Kind, capacity int, keep string) (int, error)
	Close() error
}
