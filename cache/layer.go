package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"lunchmind/metrics"
)

// Layer applies per-kind TTL and capacity policies over a Store. Store
// failures degrade to misses: callers never see a cache error. A nil *Layer
// caches nothing.
type Layer struct {
	store    Store
	policies map[Kind]Policy
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

type Option func(*Layer)

func WithClock(c clock.Clock) Option {
	return func(l *Layer) { l.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Layer) { l.metrics = m }
}

// Open builds the store named by cfg.Backend. The "none" backend returns a
// nil Layer.
func Open(cfg Config, logger *zap.Logger, opts ...Option) (*Layer, error) {
	var store Store
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendBolt:
		s, err := OpenBoltStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		store = s
	case BackendMemory, "":
		store = NewMemoryStore(cfg.Policies)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return NewLayer(store, cfg, logger, opts...), nil
}

func NewLayer(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Layer{
		store:    store,
		policies: cfg.Policies,
		clock:    clock.New(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if cfg.PurgeInterval > 0 {
		l.stop = make(chan struct{})
		l.done = make(chan struct{})
		go l.janitor(cfg.PurgeInterval)
	}
	return l
}

func (l *Layer) Policy(kind Kind) Policy {
	return policyFor(l.policies, kind)
}

// GetBytes returns the payload stored under key if it has not expired.
func (l *Layer) GetBytes(kind Kind, key string) ([]byte, bool) {
	if l == nil {
		return nil, false
	}
	now := l.clock.Now()
	e, ok, err := l.store.Get(kind, key, now)
	if err != nil {
		l.logger.Warn("cache read failed",
			zap.String("kind", string(kind)),
			zap.Error(fmt.Errorf("%w: %w", ErrCacheUnavailable, err)))
		l.metrics.CacheRequest(string(kind), "error")
		return nil, false
	}
	if !ok || e.Expired(now) {
		l.metrics.CacheRequest(string(kind), "miss")
		return nil, false
	}
	l.metrics.CacheRequest(string(kind), "hit")
	return e.Payload, true
}

// PutBytes stores payload under key with the kind's TTL.
func (l *Layer) PutBytes(kind Kind, key string, payload []byte) {
	if l == nil {
		return
	}
	now := l.clock.Now()
	policy := l.Policy(kind)
	e := Entry{
		Kind:           kind,
		Key:            key,
		Payload:        payload,
		CreatedAt:      now,
		ExpiresAt:      now.Add(policy.TTL),
		LastAccessedAt: now,
	}
	if err := l.store.Put(e); err != nil {
		l.logger.Warn("cache write failed",
			zap.String("kind", string(kind)),
			zap.Error(fmt.Errorf("%w: %w", ErrCacheUnavailable, err)))
		l.metrics.CacheRequest(string(kind), "error")
		return
	}
	if n, err := l.store.EnforceCapacity(kind, policy.Capacity, key); err != nil {
		l.logger.Warn("cache eviction failed", zap.String("kind", string(kind)), zap.Error(err))
	} else if n > 0 {
		l.logger.Debug("cache evicted entries", zap.String("kind", string(kind)), zap.Int("count", n))
	}
}

func (l *Layer) Delete(kind Kind, key string) {
	if l == nil {
		return
	}
	if err := l.store.Delete(kind, key); err != nil {
		l.logger.Warn("cache delete failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Purge removes every expired entry now.
func (l *Layer) Purge() int {
	if l == nil {
		return 0
	}
	n, err := l.store.PurgeExpired(l.clock.Now())
	if err != nil {
		l.logger.Warn("cache purge failed", zap.Error(err))
	}
	return n
}

func (l *Layer) janitor(interval time.Duration) {
	defer close(l.done)
	ticker := l.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if n := l.Purge(); n > 0 {
				l.logger.Debug("purged expired cache entries", zap.Int("count", n))
			}
		}
	}
}

func (l *Layer) Close() error {
	if l == nil {
		return nil
	}
	if l.stop != nil {
		close(l.stop)
		<-l.done
	}
	return l.store.Close()
}

// Get decodes the JSON payload stored under key into T.
func Get[T any](l *Layer, kind Kind, key string) (T, bool) {
	var v T
	raw, ok := l.GetBytes(kind, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		l.logger.Warn("dropping undecodable cache entry", zap.String("kind", string(kind)), zap.Error(err))
		l.Delete(kind, key)
		var zero T
		return zero, false
	}
	return v, true
}

// Put stores v as JSON under key.
func Put[T any](l *Layer, kind Kind, key string, v T) {
	if l == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("failed to encode cache value", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	l.PutBytes(kind, key, raw)
}
