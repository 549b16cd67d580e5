package geo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"lunchmind/cache"
	"lunchmind/metrics"
	"lunchmind/pkg/logctx"
	"lunchmind/place"
)

// Resolver turns place text into coordinates and distances. Every step
// degrades: a failed geocode or route is a soft result, never an error, and
// only a dead caller context stops the chain.
type Resolver struct {
	cfg      Config
	geocoder Geocoder
	router   Router
	expander LinkExpander
	cache    *cache.Layer
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type ResolverOption func(*Resolver)

// WithExpander lets ResolveOrigin follow short map links.
func WithExpander(e LinkExpander) ResolverOption {
	return func(r *Resolver) { r.expander = e }
}

// NewResolver wires the resolver. geocoder and router may be nil, which
// skips the steps that need them.
func NewResolver(cfg Config, geocoder Geocoder, router Router, layer *cache.Layer, logger *zap.Logger, m *metrics.Metrics, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		cfg:      cfg,
		geocoder: geocoder,
		router:   router,
		cache:    layer,
		logger:   logger,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveCoordinates geocodes address, walking Refinements until one answer
// falls inside the configured bounding box.
func (r *Resolver) ResolveCoordinates(ctx context.Context, address string) Result[place.Coordinates] {
	address = strings.TrimSpace(address)
	if len([]rune(address)) < 3 {
		return Soft[place.Coordinates](ErrGeocodeFailed)
	}
	if c := CoordinatesIn(address); c != nil && r.cfg.Box.Contains(*c) {
		return Ok(*c)
	}

	key := cache.Fingerprint("geocode", cache.Args{"address": NormalizeAddress(address)})
	if hit, ok := cache.Get[place.Coordinates](r.cache, cache.KindGeocode, key); ok {
		return Ok(hit)
	}
	if r.geocoder == nil {
		return Soft[place.Coordinates](ErrGeocodeFailed)
	}

	logger := logctx.Logger(ctx, r.logger)
	for _, q := range Refinements(address) {
		if err := ctx.Err(); err != nil {
			return Hard[place.Coordinates](err)
		}
		matches, err := r.geocoder.Geocode(ctx, q+r.cfg.RegionSuffix)
		if err != nil {
			res := failed[place.Coordinates](ctx, err)
			if res.Status == StatusHard {
				return res
			}
			logger.Debug("geocode attempt failed", zap.String("query", q), zap.Error(err))
			continue
		}
		for _, m := range matches {
			if r.cfg.Box.Contains(m.Coordinates) {
				cache.Put(r.cache, cache.KindGeocode, key, m.Coordinates)
				return Ok(m.Coordinates)
			}
		}
	}

	logger.Info("address could not be geocoded", zap.String("address", address))
	return Soft[place.Coordinates](fmt.Errorf("%w: %s", ErrGeocodeFailed, address))
}

// ResolveChoices returns ranked coordinate candidates for name. Addresses
// give a single choice; ambiguous landmark names may give several, with
// matches within CollapseMeters of a better one merged away. Both are
// cached under KindGeocode.
func (r *Resolver) ResolveChoices(ctx context.Context, name string) Result[[]Match] {
	if !Ambiguous(name) {
		res := r.ResolveCoordinates(ctx, name)
		if !res.OK() {
			return Result[[]Match]{Status: res.Status, Err: res.Err}
		}
		return Ok([]Match{{Coordinates: res.Value, DisplayName: name}})
	}
	key := cache.Fingerprint("geocode-choices", cache.Args{"name": NormalizeAddress(name)})
	if hit, ok := cache.Get[[]Match](r.cache, cache.KindGeocode, key); ok && len(hit) > 0 {
		return Ok(hit)
	}
	if r.geocoder == nil {
		return Soft[[]Match](ErrGeocodeFailed)
	}

	matches, err := r.geocoder.Geocode(ctx, strings.TrimSpace(name)+r.cfg.RegionSuffix)
	if err != nil {
		return failed[[]Match](ctx, err)
	}

	var inBox []Match
	for _, m := range matches {
		if r.cfg.Box.Contains(m.Coordinates) {
			inBox = append(inBox, m)
		}
	}
	sort.SliceStable(inBox, func(i, j int) bool { return inBox[i].Importance > inBox[j].Importance })

	var choices []Match
	for _, m := range inBox {
		if r.near(choices, m) {
			continue
		}
		choices = append(choices, m)
		if r.cfg.MaxChoices > 0 && len(choices) == r.cfg.MaxChoices {
			break
		}
	}
	if len(choices) == 0 {
		return Soft[[]Match](fmt.Errorf("%w: %s", ErrGeocodeFailed, name))
	}
	cache.Put(r.cache, cache.KindGeocode, key, choices)
	return Ok(choices)
}

func (r *Resolver) near(kept []Match, m Match) bool {
	for _, k := range kept {
		if HaversineKm(k.Coordinates, m.Coordinates)*1000 < r.cfg.CollapseMeters {
			return true
		}
	}
	return false
}

// ResolveOrigin picks the first choice for text. A hint that cannot be
// geocoded still yields an Origin usable for routing. A maps link, short or
// full, is read for its coordinates and place name instead.
func (r *Resolver) ResolveOrigin(ctx context.Context, text string) (Origin, error) {
	origin := Origin{Text: strings.TrimSpace(text)}
	if origin.Text == "" {
		return origin, nil
	}
	if IsMapLink(origin.Text) {
		return r.originFromLink(ctx, origin.Text)
	}
	res := r.ResolveChoices(ctx, origin.Text)
	switch res.Status {
	case StatusOk:
		c := res.Value[0].Coordinates
		origin.Coords = &c
	case StatusHard:
		return origin, res.Err
	default:
		logctx.Logger(ctx, r.logger).Info("origin has no coordinates, routing by text only",
			zap.String("origin", origin.Text), zap.Error(res.Err))
	}
	return origin, nil
}

func (r *Resolver) originFromLink(ctx context.Context, link string) (Origin, error) {
	logger := logctx.Logger(ctx, r.logger).With(zap.String("link", link))
	full := link
	if IsShortLink(link) && r.expander != nil {
		expanded, err := r.expander.Expand(ctx, link)
		switch {
		case err == nil:
			full = expanded
		case ctx.Err() != nil:
			return Origin{Text: link}, ctx.Err()
		default:
			logger.Info("short link could not be expanded", zap.Error(err))
		}
	}

	coords, name := LinkLocation(full)
	if coords != nil && !r.cfg.Box.Contains(*coords) {
		logger.Info("link points outside the search area", zap.Stringer("at", *coords))
		coords = nil
	}
	switch {
	case coords != nil:
		origin := Origin{Text: name, Coords: coords}
		if origin.Text == "" {
			origin.Text = coords.String()
		}
		return origin, nil
	case name != "" && !IsMapLink(name):
		return r.ResolveOrigin(ctx, name)
	default:
		logger.Info("link carries no location")
		return Origin{Text: link}, nil
	}
}

// DistanceBetween measures from origin to destination: a routed distance
// first, then straight-line distance to the geocoded destination, then
// unknown. The error is non-nil only when ctx is done.
func (r *Resolver) DistanceBetween(ctx context.Context, origin Origin, destination string) (Distance, error) {
	unknown := Distance{Source: place.DistanceUnknown}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		r.metrics.DistanceSource(string(place.DistanceUnknown))
		return unknown, nil
	}

	from := origin.Text
	if from == "" && origin.Coords != nil {
		from = origin.Coords.String()
	}
	if r.router != nil && from != "" {
		res := r.routed(ctx, from, destination)
		switch res.Status {
		case StatusOk:
			r.metrics.DistanceSource(string(place.DistanceRouted))
			return res.Value, nil
		case StatusHard:
			return unknown, res.Err
		}
		logctx.Logger(ctx, r.logger).Debug("routing failed, trying straight line",
			zap.String("destination", destination), zap.Error(res.Err))
	}

	if origin.Coords != nil {
		res := r.ResolveCoordinates(ctx, destination)
		switch res.Status {
		case StatusOk:
			c := res.Value
			r.metrics.DistanceSource(string(place.DistanceGeocoded))
			return Distance{
				Km:          RoundKm(HaversineKm(*origin.Coords, c)),
				Source:      place.DistanceGeocoded,
				Destination: &c,
			}, nil
		case StatusHard:
			return unknown, res.Err
		}
	}

	r.metrics.DistanceSource(string(place.DistanceUnknown))
	return unknown, nil
}

func (r *Resolver) routed(ctx context.Context, from, to string) Result[Distance] {
	rctx := ctx
	if r.cfg.RouteTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, r.cfg.RouteTimeout)
		defer cancel()
	}

	route, err := r.router.Route(rctx, from, to)
	if err != nil {
		// classified against ctx so a route timeout stays soft
		return failed[Distance](ctx, err)
	}
	if route.Km <= 0 {
		return Soft[Distance](ErrRouteUnavailable)
	}
	return Ok(Distance{Km: RoundKm(route.Km), Source: place.DistanceRouted})
}
