// Package reconcile turns raw search output into the final ranked list:
// distances are resolved, closed businesses dropped, duplicates merged and
// the rest sorted nearest first.
package reconcile

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lunchmind/geo"
	"lunchmind/pkg/logctx"
	"lunchmind/place"
)

// prefixRunes is how much of the normalized address goes into a dedup key.
const prefixRunes = 20

type DistanceResolver interface {
	DistanceBetween(ctx context.Context, origin geo.Origin, destination string) (geo.Distance, error)
}

type Config struct {
	// Workers bounds concurrent distance lookups.
	Workers       int      `yaml:"workers"`
	ClosedPhrases []string `yaml:"closed_phrases"`
	ExcludeTerms  []string `yaml:"exclude_terms"`
	FoodTerms     []string `yaml:"food_terms"`
}

// DefaultConfig returns a default reconciler configuration
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		ClosedPhrases: DefaultClosedPhrases,
		ExcludeTerms:  DefaultExcludeTerms,
		FoodTerms:     DefaultFoodTerms,
	}
}

type Reconciler struct {
	resolver DistanceResolver
	workers  int
	closed   []string
	exclude  []string
	food     []string
	logger   *zap.Logger
}

// New builds a Reconciler. A nil resolver leaves every distance unknown.
func New(cfg Config, resolver DistanceResolver, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		resolver: resolver,
		workers:  max(1, cfg.Workers),
		closed:   lowered(cfg.ClosedPhrases, DefaultClosedPhrases),
		exclude:  lowered(cfg.ExcludeTerms, DefaultExcludeTerms),
		food:     lowered(cfg.FoodTerms, DefaultFoodTerms),
		logger:   logger,
	}
}

// Reconcile resolves, filters, deduplicates, ranks and truncates candidates.
// Closed businesses and places irrelevant to keyword are filtered. It returns at most limit candidates and the number of unique candidates
// that survived filtering. Running it on its own output changes nothing.
//
// When filtering would leave nothing, the unfiltered list is deduplicated
// and ranked instead so callers still get something to show.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []place.ResolvedCandidate, origin geo.Origin, keyword string, limit int) ([]place.ResolvedCandidate, int) {
	if len(candidates) == 0 {
		return nil, 0
	}
	resolved := r.resolve(ctx, candidates, origin)

	open := make([]place.ResolvedCandidate, 0, len(resolved))
	for _, c := range resolved {
		if r.isClosed(c) || !r.relevant(c, keyword) {
			continue
		}
		open = append(open, c)
	}

	out := dedup(open)
	if len(out) == 0 {
		logctx.Logger(ctx, r.logger).Info("every candidate was filtered, returning unfiltered list",
			zap.Int("candidates", len(resolved)))
		out = dedup(resolved)
	}
	rank(out)

	total := len(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total
}

// resolve fills in distances and open state on a copy of candidates.
func (r *Reconciler) resolve(ctx context.Context, candidates []place.ResolvedCandidate, origin geo.Origin) []place.ResolvedCandidate {
	out := slices.Clone(candidates)
	logger := logctx.Logger(ctx, r.logger)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := range out {
		c := &out[i]
		if c.OpenNow == nil {
			c.OpenNow = openNow(c.HoursText)
		}
		if c.DistanceSource == "" {
			c.DistanceSource = place.DistanceUnknown
		}
		if c.HasDistance() || r.resolver == nil {
			continue
		}
		destination := c.AddressText
		if destination == "" {
			destination = c.Name
		}
		g.Go(func() error {
			d, err := r.resolver.DistanceBetween(ctx, origin, destination)
			if err != nil {
				logger.Debug("distance lookup abandoned", zap.String("name", c.Name), zap.Error(err))
				return nil
			}
			c.DistanceSource = d.Source
			if d.Source != place.DistanceUnknown {
				km := d.Km
				c.DistanceKm = &km
			}
			if d.Destination != nil && c.Coordinates == nil {
				dest := *d.Destination
				c.Coordinates = &dest
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Key is the dedup key of c: its normalized name plus the first twenty
// runes of its normalized address.
func Key(c place.RawCandidate) string {
	addr := []rune(squash(geo.NormalizeAddress(c.AddressText)))
	if len(addr) > prefixRunes {
		addr = addr[:prefixRunes]
	}
	return squash(c.Name) + "|" + string(addr)
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dedup keeps the first candidate per key, filling its empty fields from
// later duplicates.
func dedup(candidates []place.ResolvedCandidate) []place.ResolvedCandidate {
	index := make(map[string]int, len(candidates))
	out := make([]place.ResolvedCandidate, 0, len(candidates))
	for _, c := range candidates {
		k := Key(c.RawCandidate)
		if i, ok := index[k]; ok {
			merge(&out[i], c)
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}
	return out
}

func merge(dst *place.ResolvedCandidate, src place.ResolvedCandidate) {
	if dst.AddressText == "" {
		dst.AddressText = src.AddressText
	}
	if dst.Rating == nil {
		dst.Rating = src.Rating
	}
	if dst.PriceText == "" {
		dst.PriceText = src.PriceText
	}
	if dst.HoursText == "" {
		dst.HoursText = src.HoursText
	}
	if dst.SourceURL == "" {
		dst.SourceURL = src.SourceURL
	}
	if dst.OpenNow == nil {
		dst.OpenNow = src.OpenNow
	}
	if dst.Coordinates == nil {
		dst.Coordinates = src.Coordinates
	}
	if !dst.HasDistance() && src.HasDistance() {
		dst.DistanceKm = src.DistanceKm
		dst.DistanceSource = src.DistanceSource
	}
}

// rank sorts nearest first with unknown distances last. Equal distances keep
// input order.
func rank(candidates []place.ResolvedCandidate) {
	slices.SortStableFunc(candidates, func(a, b place.ResolvedCandidate) int {
		ak, bk := a.HasDistance(), b.HasDistance()
		switch {
		case ak && bk:
			return cmp.Compare(*a.DistanceKm, *b.DistanceKm)
		case ak:
			return -1
		case bk:
			return 1
		}
		return 0
	})
}
