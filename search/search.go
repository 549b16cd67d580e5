package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"lunchmind/browser"
	"lunchmind/cache"
	"lunchmind/metrics"
	"lunchmind/pkg/logctx"
	"lunchmind/place"
	"lunchmind/probe"
)

var ErrEngineUnavailable = errors.New("search: engine unavailable")

// SessionPool is the part of browser.Pool the orchestrator needs.
type SessionPool interface {
	With(ctx context.Context, fn func(*browser.Session) error) error
	Size() int
}

// Orchestrator fans one request out over strategies and formulations and
// merges whatever succeeded.
type Orchestrator struct {
	cfg        Config
	strategies []Strategy
	pool       SessionPool
	prober     probe.Prober
	cache      *cache.Layer
	limiter    *rate.Limiter
	group      singleflight.Group
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func New(cfg Config, pool SessionPool, prober probe.Prober, layer *cache.Layer, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies(cfg.BaseURL)
	}
	limit := rate.Inf
	if cfg.NavigationsPerSecond > 0 {
		limit = rate.Limit(cfg.NavigationsPerSecond)
	}
	burst := cfg.NavigationBurst
	if burst < 1 {
		burst = 1
	}
	return &Orchestrator{
		cfg:        cfg,
		strategies: strategies,
		pool:       pool,
		prober:     prober,
		cache:      layer,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		metrics:    m,
	}
}

// Search returns raw candidates for keyword near hint. Identical concurrent
// requests share one fan-out. If ctx ends first the caller gets ctx.Err()
// while the fan-out runs to completion on its own timeouts, releasing every
// session and filling the cache for the next caller.
//
// An empty result with a nil error means the surface answered and had
// nothing. ErrEngineUnavailable means no task got an answer at all.
func (o *Orchestrator) Search(ctx context.Context, keyword, hint string, limit int) ([]place.RawCandidate, error) {
	key := cache.Fingerprint("search", cache.Args{
		"keyword": cache.Terms(keyword),
		"hint":    hint,
		"limit":   strconv.Itoa(limit),
	})
	if hit, ok := cache.Get[[]place.RawCandidate](o.cache, cache.KindSearch, key); ok {
		logctx.Logger(ctx, o.logger).Debug("search served from cache", zap.String("keyword", keyword))
		return hit, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := o.group.DoChan(key, func() (any, error) {
		return o.run(detached, keyword, hint, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]place.RawCandidate), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, keyword, hint, key string) ([]place.RawCandidate, error) {
	logger := logctx.Logger(ctx, o.logger)

	queries := Formulations(keyword, hint, o.cfg.Category, o.cfg.MaxFormulations)
	found, answered, causes := o.fanOut(ctx, queries)

	if len(found) == 0 {
		broad := Broadened(hint, o.cfg.Category)
		if broad != "" && !slices.Contains(queries, broad) {
			logger.Info("no candidates, trying broadened query", zap.String("query", broad))
			var more []error
			var ok bool
			found, ok, more = o.fanOut(ctx, []string{broad})
			answered = answered || ok
			causes = append(causes, more...)
		}
	}

	if len(found) > 0 {
		cache.Put(o.cache, cache.KindSearch, key, found)
		return found, nil
	}
	if answered {
		return []place.RawCandidate{}, nil
	}
	if len(causes) == 0 {
		return nil, ErrEngineUnavailable
	}
	return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, multierr.Combine(causes...))
}

type task struct {
	strategy Strategy
	query    string
}

// fanOut runs every strategy x query pair and concatenates successes in task
// order. answered reports whether any task got an authoritative empty page.
func (o *Orchestrator) fanOut(ctx context.Context, queries []string) (found []place.RawCandidate, answered bool, causes []error) {
	var tasks []task
	for _, s := range o.strategies {
		for _, q := range queries {
			tasks = append(tasks, task{strategy: s, query: q})
		}
	}

	results := make([][]place.RawCandidate, len(tasks))
	errs := make([]error, len(tasks))

	// a failing task never cancels its siblings, so no WithContext
	var g errgroup.Group
	g.SetLimit(o.workers())
	for i, t := range tasks {
		g.Go(func() error {
			results[i], errs[i] = o.runTask(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	for i := range tasks {
		switch {
		case errs[i] == nil:
			found = append(found, results[i]...)
			if len(results[i]) == 0 {
				answered = true
			}
		case errors.Is(errs[i], probe.ErrNoResults):
			answered = true
		default:
			causes = append(causes, errs[i])
		}
	}
	return found, answered, causes
}

func (o *Orchestrator) workers() int {
	n := o.cfg.Workers
	if size := o.pool.Size(); n < 1 || n > size {
		n = size
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (o *Orchestrator) runTask(ctx context.Context, t task) ([]place.RawCandidate, error) {
	logger := logctx.Logger(ctx, o.logger).With(
		zap.String("strategy", t.strategy.Name),
		zap.String("query", t.query))

	timeout := o.cfg.TaskTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().TaskTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var found []place.RawCandidate
	err := o.limiter.Wait(tctx)
	if err == nil {
		err = o.pool.With(tctx, func(s *browser.Session) error {
			q := probe.Query{Text: t.query, Strategy: t.strategy.Name, URL: t.strategy.URL(t.query)}
			var perr error
			found, perr = o.prober.Probe(tctx, s, q)
			if errors.Is(perr, probe.ErrBlocked) {
				s.MarkUnhealthy()
			}
			return perr
		})
	}

	outcome := outcomeOf(err)
	o.metrics.ProbeOutcome(t.strategy.Name, outcome)
	if err != nil {
		logger.Warn("search task failed",
			zap.String("outcome", outcome),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%s %q: %w", t.strategy.Name, t.query, err)
	}
	logger.Debug("search task done",
		zap.Int("candidates", len(found)),
		zap.Duration("elapsed", time.Since(start)))
	return found, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, probe.ErrBlocked):
		return "blocked"
	case errors.Is(err, probe.ErrNoResults):
		return "no_results"
	case errors.Is(err, probe.ErrParseMiss):
		return "parse_miss"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, browser.ErrAcquireTimeout):
		return "timeout"
	default:
		return "error"
	}
}
