package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"lunchmind/place"
)

// Match is one geocoder answer.
type Match struct {
	Coordinates place.Coordinates `json:"coordinates"`
	DisplayName string            `json:"display_name"`
	Importance  float64           `json:"importance"`
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]Match, error)
}

type NominatimConfig struct {
	URL            string        `yaml:"url"`
	UserAgent      string        `yaml:"user_agent"`
	CountryCodes   string        `yaml:"country_codes"`
	Language       string        `yaml:"language"`
	Limit          int           `yaml:"limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Delay between requests; the public instance allows one per second.
	Delay time.Duration `yaml:"delay"`
	// ProxyURL is a SOCKS5 proxy, host:port or socks5://host:port. Empty
	// connects directly.
	ProxyURL string `yaml:"proxy_url"`
}

// DefaultNominatimConfig returns a default geocoder configuration
func DefaultNominatimConfig() NominatimConfig {
	return NominatimConfig{
		URL:            "https://nominatim.openstreetmap.org/search",
		UserAgent:      "lunchmind/1.0",
		CountryCodes:   "tw",
		Language:       "zh-TW,en",
		Limit:          5,
		RequestTimeout: 10 * time.Second,
		Delay:          time.Second,
	}
}

// NominatimGeocoder queries an OpenStreetMap Nominatim instance.
type NominatimGeocoder struct {
	cfg       NominatimConfig
	collector *colly.Collector
	logger    *zap.Logger

	// one request in flight, started no more often than Delay
	inFlight *semaphore.Weighted
	limiter  *rate.Limiter
}

func NewNominatimGeocoder(cfg NominatimConfig, logger *zap.Logger) (*NominatimGeocoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)

	if cfg.ProxyURL != "" {
		addr := cfg.ProxyURL
		if u, err := url.Parse(addr); err == nil && u.Host != "" {
			addr = u.Host
		}
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		c.WithTransport(&http.Transport{
			DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		})
	}
	c.SetRequestTimeout(cfg.RequestTimeout)

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &NominatimGeocoder{
		cfg:       cfg,
		collector: c,
		logger:    logger,
		inFlight:  semaphore.NewWeighted(1),
		limiter:   rate.NewLimiter(limit, 1),
	}, nil
}

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (g *NominatimGeocoder) searchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(g.cfg.Limit))
	if g.cfg.CountryCodes != "" {
		params.Set("countrycodes", g.cfg.CountryCodes)
	}
	if g.cfg.Language != "" {
		params.Set("accept-language", g.cfg.Language)
	}
	return g.cfg.URL + "?" + params.Encode()
}

// Geocode waits for its turn and the request itself under ctx; a caller
// that gives up while queued never reaches the server.
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) ([]Match, error) {
	if err := g.inFlight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.inFlight.Release(1)
	if err := g.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// the next slot is past ctx's deadline
		return nil, fmt.Errorf("geocode %q: %w: %w", query, context.DeadlineExceeded, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		matches []Match
		cbErr   error
	)
	c := g.collector.Clone()
	c.Context = ctx
	c.OnResponse(func(r *colly.Response) {
		var places []nominatimPlace
		if err := json.Unmarshal(r.Body, &places); err != nil {
			cbErr = fmt.Errorf("failed to decode geocoder response: %w", err)
			return
		}
		for _, p := range places {
			lat, err1 := strconv.ParseFloat(p.Lat, 64)
			lon, err2 := strconv.ParseFloat(p.Lon, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			matches = append(matches, Match{
				Coordinates: place.Coordinates{Lat: lat, Lon: lon},
				DisplayName: p.DisplayName,
				Importance:  p.Importance,
			})
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		cbErr = fmt.Errorf("geocoder returned %d: %w", r.StatusCode, err)
	})

	err := c.Visit(g.searchURL(query))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	if cbErr != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, cbErr)
	}

	g.logger.Debug("geocoded", zap.String("query", query), zap.Int("matches", len(matches)))
	return matches, nil
}
