// Package engine composes the session pool, search, geo resolution,
// reconciliation and caching into one Discover call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lunchmind/browser"
	"lunchmind/cache"
	"lunchmind/geo"
	"lunchmind/interpret"
	"lunchmind/metrics"
	"lunchmind/pkg/logctx"
	"lunchmind/place"
	"lunchmind/probe"
	"lunchmind/reconcile"
	"lunchmind/search"
	"lunchmind/weather"
)

var (
	ErrInvalidInput = errors.New("engine: keyword and location hint are both empty")
	ErrClosed       = errors.New("engine: closed")
)

// Reason explains an empty result.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoResults         Reason = "NoResults"
	ReasonEngineUnavailable Reason = "EngineUnavailable"
)

type Result struct {
	Candidates []place.ResolvedCandidate `json:"candidates"`
	TotalFound int                       `json:"total_found"`
	Reason     Reason                    `json:"reason,omitempty"`
	Origin     geo.Origin                `json:"origin"`
	// Weather and RadiusKm are advisory and only set when a weather source
	// is configured and the origin has coordinates.
	Weather  *weather.Reading `json:"weather,omitempty"`
	RadiusKm float64          `json:"radius_km,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, keyword, hint string, limit int) ([]place.RawCandidate, error)
}

type Locator interface {
	ResolveOrigin(ctx context.Context, text string) (geo.Origin, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, candidates []place.ResolvedCandidate, origin geo.Origin, keyword string, limit int) ([]place.ResolvedCandidate, int)
}

// Deps are the collaborators of an Engine. Searcher, Locator and Reconciler
// are required.
type Deps struct {
	Searcher    Searcher
	Locator     Locator
	Reconciler  Reconciler
	Interpreter interpret.Interpreter
	Weather     weather.Source
	Pool        *browser.Pool
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	// Closers run in order on Close.
	Closers []func() error
}

type Engine struct {
	cfg  Config
	deps Deps

	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

func New(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Interpreter == nil {
		deps.Interpreter = interpret.WithFallback(interpret.NewKeywordInterpreter(), logger)
	}
	return &Engine{cfg: cfg, deps: deps, logger: logger, metrics: deps.Metrics}
}

// Open builds the whole production stack: headless Chrome behind the
// session pool, the maps prober, Nominatim geocoding and browser routing,
// all over the configured cache. reg receives the metrics; nil keeps them
// private.
func Open(cfg Config, logger *zap.Logger, reg prometheus.Registerer) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New(reg)

	layer, err := cache.Open(cfg.Cache, logger.Named("cache"), cache.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	geocoder, err := geo.NewNominatimGeocoder(cfg.Nominatim, logger.Named("geocode"))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create geocoder: %w", err), layer.Close())
	}

	launcher := browser.NewChromeLauncher(cfg.Chrome, logger.Named("chrome"))
	pool := browser.NewPool(cfg.Pool, launcher, logger.Named("pool"), browser.WithMetrics(m))

	prober := probe.NewPageProber(cfg.Probe, probe.DefaultTables(), probe.DefaultSignatures(), logger.Named("probe"))
	orchestrator := search.New(cfg.Search, pool, prober, layer, logger.Named("search"), m)

	router := geo.NewBrowserRouter(pool, cfg.Geo.RouteBaseURL, logger.Named("route"))
	expander := geo.NewRedirectExpander(cfg.Geo.LinkExpander, logger.Named("link"))
	resolver := geo.NewResolver(cfg.Geo, geocoder, router, layer, logger.Named("geo"), m, geo.WithExpander(expander))

	interpreter := interpret.WithFallback(
		interpret.Cached(interpret.NewKeywordInterpreter(), layer),
		logger.Named("interpret"))

	var ws weather.Source
	if cfg.Weather.Enabled {
		ws = weather.Cached(weather.NewOpenMeteo(cfg.Weather.Source, logger.Named("weather")), layer)
	}

	return New(cfg, Deps{
		Searcher:    orchestrator,
		Locator:     resolver,
		Reconciler:  reconcile.New(cfg.Reconcile, resolver, logger.Named("reconcile")),
		Interpreter: interpreter,
		Weather:     ws,
		Pool:        pool,
		Metrics:     m,
		Logger:      logger,
		// pool before launcher: sessions close before their allocator
		Closers: []func() error{pool.Close, launcher.Close, layer.Close},
	}), nil
}

// Discover finds up to limit places matching keyword near hint, nearest
// first. An empty keyword falls back to the configured default. Failures of
// the search surface are reported through Result.Reason; the error is
// non-nil only for invalid input, a closed engine, or a done ctx.
func (e *Engine) Discover(ctx context.Context, keyword, hint string, limit int) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Result{}, ErrClosed
	}

	keyword, hint = strings.TrimSpace(keyword), strings.TrimSpace(hint)
	if keyword == "" && hint == "" {
		return Result{}, ErrInvalidInput
	}
	if keyword == "" {
		keyword = e.cfg.DefaultKeyword
	}
	limit = ClampLimit(limit)

	ctx, _ = logctx.EnsureRequestID(ctx)
	logger := logctx.Logger(ctx, e.logger).With(
		zap.String("keyword", keyword),
		zap.String("hint", hint),
		zap.Int("limit", limit))
	start := time.Now()
	defer func() { e.metrics.ObserveDiscover(time.Since(start)) }()

	var (
		origin    geo.Origin
		originErr error
		raw       []place.RawCandidate
		searchErr error
	)
	if geo.IsMapLink(hint) {
		// the search needs the place the link points at, not the link
		origin, originErr = e.deps.Locator.ResolveOrigin(ctx, hint)
		searchHint := origin.Text
		if geo.IsMapLink(searchHint) {
			searchHint = ""
		}
		if ctx.Err() == nil {
			raw, searchErr = e.deps.Searcher.Search(ctx, keyword, searchHint, limit)
		}
	} else {
		var g errgroup.Group
		g.Go(func() error {
			origin, originErr = e.deps.Locator.ResolveOrigin(ctx, hint)
			return nil
		})
		g.Go(func() error {
			raw, searchErr = e.deps.Searcher.Search(ctx, keyword, hint, limit)
			return nil
		})
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if originErr != nil {
		logger.Warn("origin lookup failed", zap.Error(originErr))
	}

	res := Result{Origin: origin}
	e.advise(ctx, &res)

	if searchErr != nil {
		logger.Warn("search failed", zap.Error(searchErr))
		res.Reason = ReasonEngineUnavailable
		return res, nil
	}
	if len(raw) == 0 {
		logger.Info("search found nothing")
		res.Reason = ReasonNoResults
		return res, nil
	}

	res.Candidates, res.TotalFound = e.deps.Reconciler.Reconcile(ctx, place.Lift(raw), origin, keyword, limit)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	logger.Info("discover done",
		zap.Int("raw", len(raw)),
		zap.Int("total_found", res.TotalFound),
		zap.Int("returned", len(res.Candidates)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// DiscoverText interprets a free-text request, then discovers. An explicit
// hint overrides the one found in text.
func (e *Engine) DiscoverText(ctx context.Context, text, hint string, limit int) (Result, error) {
	in, err := e.deps.Interpreter.Interpret(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		logctx.Logger(ctx, e.logger).Info("could not interpret request", zap.String("text", text), zap.Error(err))
	}
	if strings.TrimSpace(hint) == "" {
		hint = in.LocationHint
	}
	return e.Discover(ctx, in.Keyword(), hint, limit)
}

// advise attaches the weather at the origin and the walking radius it
// suggests. Failures only cost the advice.
func (e *Engine) advise(ctx context.Context, res *Result) {
	if e.deps.Weather == nil || res.Origin.Coords == nil {
		return
	}
	reading, err := e.deps.Weather.WeatherAt(ctx, *res.Origin.Coords)
	if err != nil {
		logctx.Logger(ctx, e.logger).Debug("weather unavailable", zap.Error(err))
		return
	}
	res.Weather = &reading
	res.RadiusKm = weather.DefaultRadiusKm(reading)
}

// PoolStats reports the session pool, or false when the engine has none.
func (e *Engine) PoolStats() (browser.Stats, bool) {
	if e.deps.Pool == nil {
		return browser.Stats{}, false
	}
	return e.deps.Pool.Stats(), true
}

// Close waits for in-flight Discover calls and releases every resource.
// Closing twice is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	for _, c := range e.deps.Closers {
		err = multierr.Append(err, c())
	}
	return err
}
