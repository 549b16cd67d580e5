package probe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"lunchmind/browser"
	"lunchmind/place"
)

var (
	ErrBlocked   = errors.New("probe: blocked by automation detection")
	ErrNoResults = errors.New("probe: page reported no results")
	ErrParseMiss = errors.New("probe: no known result structure matched")
)

// Query is one search formulation aimed at one strategy.
type Query struct {
	Text     string
	Strategy string
	URL      string
}

// Prober turns a loaded search page into raw candidates.
type Prober interface {
	Probe(ctx context.Context, s *browser.Session, q Query) ([]place.RawCandidate, error)
}

// ParsePage extracts candidates from a rendered page. It never touches the
// network.
func ParsePage(page browser.Page, t Table, sig Signatures) ([]place.RawCandidate, error) {
	if sig.Blocked(page) {
		return nil, ErrBlocked
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseMiss, err)
	}

	var containers *goquery.Selection
	for _, selector := range t.Containers {
		if found := doc.Find(selector); found.Length() > 0 {
			containers = found
			break
		}
	}
	if containers == nil {
		if sig.SaysEmpty(doc.Find("body").Text()) {
			return nil, ErrNoResults
		}
		return nil, ErrParseMiss
	}

	base, _ := url.Parse(page.URL)
	var out []place.RawCandidate
	containers.Each(func(_ int, el *goquery.Selection) {
		name := first(t.Title, el)
		if name == "" {
			return
		}
		c := place.RawCandidate{
			Name:        name,
			AddressText: first(t.Address, el),
			PriceText:   first(t.Price, el),
			HoursText:   first(t.Hours, el),
			SourceURL:   absolute(base, first(t.Link, el)),
		}
		if r, ok := ParseRating(first(t.Rating, el)); ok {
			c.Rating = &r
		}
		out = append(out, c)
	})

	if len(out) == 0 {
		return nil, ErrParseMiss
	}
	return out, nil
}

func absolute(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// PageProber loads the query URL in the borrowed session and parses it with
// the table registered for the query's strategy.
type PageProber struct {
	tables      map[string]Table
	fallback    Table
	signatures  Signatures
	mapsBaseURL string
	logger      *zap.Logger
}

type Config struct {
	// MapsBaseURL builds a search link for candidates without one.
	MapsBaseURL string `yaml:"maps_base_url"`
}

// DefaultConfig returns a default probe configuration
func DefaultConfig() Config {
	return Config{MapsBaseURL: "https://www.google.com/maps/search/"}
}

func NewPageProber(cfg Config, tables []Table, sig Signatures, logger *zap.Logger) *PageProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PageProber{
		tables:      make(map[string]Table, len(tables)),
		signatures:  sig,
		mapsBaseURL: cfg.MapsBaseURL,
		logger:      logger,
	}
	for i, t := range tables {
		if i == 0 {
			p.fallback = t
		}
		p.tables[t.Name] = t
	}
	return p
}

func (p *PageProber) Probe(ctx context.Context, s *browser.Session, q Query) ([]place.RawCandidate, error) {
	page, err := s.Load(ctx, q.URL)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", q.Strategy, err)
	}

	t, ok := p.tables[q.Strategy]
	if !ok {
		t = p.fallback
	}

	candidates, err := ParsePage(page, t, p.signatures)
	if err != nil {
		p.logger.Debug("probe failed",
			zap.String("strategy", q.Strategy),
			zap.String("query", q.Text),
			zap.String("current_url", page.URL),
			zap.Int("dom_length", len(page.HTML)),
			zap.Error(err))
		return nil, err
	}

	for i := range candidates {
		if candidates[i].SourceURL == "" {
			candidates[i].SourceURL = MapsSearchURL(p.mapsBaseURL, candidates[i].Name, candidates[i].AddressText)
		}
	}
	return candidates, nil
}

// MapsSearchURL builds a search link from the name and the first segment of
// the address, which is enough to land on the right listing.
func MapsSearchURL(base, name, address string) string {
	if base == "" {
		return ""
	}
	q := name
	if seg := firstSegment(address); seg != "" {
		q += " " + seg
	}
	return base + url.PathEscape(q)
}

func firstSegment(address string) string {
	cut := strings.IndexAny(address, ",，·")
	if cut >= 0 {
		address = address[:cut]
	}
	return strings.TrimSpace(address)
}
