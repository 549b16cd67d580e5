package geo

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"lunchmind/place"
)

// shortLinkHosts serve redirects to a full maps URL.
var shortLinkHosts = []string{"maps.app.goo.gl", "goo.gl", "g.co"}

var (
	dataCoordsRe = regexp.MustCompile(`!3d(-?\d+\.\d+)!4d(-?\d+\.\d+)`)
	placePathRe  = regexp.MustCompile(`/(?:place|search)/([^/@?]+)`)
)

// LinkExpander resolves a short link to the URL it redirects to.
type LinkExpander interface {
	Expand(ctx context.Context, link string) (string, error)
}

// IsMapLink reports whether text is an http(s) link rather than a place name.
func IsMapLink(text string) bool {
	u, err := url.Parse(strings.TrimSpace(text))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsShortLink reports whether link needs expanding before it says where it
// points.
func IsShortLink(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range shortLinkHosts {
		if host == h {
			return true
		}
	}
	return false
}

// LinkLocation reads a place out of a full maps URL: the coordinates, from
// "@lat,lon", "!3dlat!4dlon" or a lat,lon query value, and the place name
// from a /place/ or /search/ path segment or the q/query parameter.
func LinkLocation(link string) (*place.Coordinates, string) {
	coords := dataCoords(link)
	if coords == nil {
		coords = CoordinatesIn(link)
	}

	var name string
	u, err := url.Parse(link)
	if err != nil {
		return coords, ""
	}
	if m := placePathRe.FindStringSubmatch(u.EscapedPath()); m != nil {
		name = unescapeName(m[1])
	}
	if name == "" {
		q := u.Query()
		for _, p := range []string{"q", "query"} {
			if v := strings.TrimSpace(q.Get(p)); v != "" && CoordinatesIn(v) == nil {
				name = v
				break
			}
		}
	}
	if len([]rune(name)) < 2 {
		name = ""
	}
	return coords, name
}

func dataCoords(link string) *place.Coordinates {
	m := dataCoordsRe.FindStringSubmatch(link)
	if m == nil {
		return nil
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &place.Coordinates{Lat: lat, Lon: lon}
}

func unescapeName(segment string) string {
	s, err := url.PathUnescape(segment)
	if err != nil {
		s = segment
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "+", " "))
}

type RedirectExpanderConfig struct {
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultRedirectExpanderConfig returns a default link expander configuration
func DefaultRedirectExpanderConfig() RedirectExpanderConfig {
	return RedirectExpanderConfig{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		RequestTimeout: 15 * time.Second,
	}
}

// RedirectExpander follows a link's redirects and reports where they end.
type RedirectExpander struct {
	collector *colly.Collector
	logger    *zap.Logger
}

func NewRedirectExpander(cfg RedirectExpanderConfig, logger *zap.Logger) *RedirectExpander {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(cfg.RequestTimeout)
	return &RedirectExpander{collector: c, logger: logger}
}

// Expand returns the final URL after redirects. A landing page that answers
// with an error status still counts once a redirect was followed.
func (e *RedirectExpander) Expand(ctx context.Context, link string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var final string
	c := e.collector.Clone()
	c.Context = ctx
	c.OnResponseHeaders(func(r *colly.Response) {
		final = r.Request.URL.String()
	})

	err := c.Visit(link)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if final != "" && final != link {
		e.logger.Debug("link expanded", zap.String("link", link), zap.String("to", final))
		return final, nil
	}
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", link, err)
	}
	return final, nil
}
