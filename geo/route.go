package geo

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"lunchmind/browser"
)

// Route is one distance and duration pair offered by a routing surface.
type Route struct {
	Km       float64       `json:"km"`
	Duration time.Duration `json:"duration"`
}

type Router interface {
	Route(ctx context.Context, origin, destination string) (Route, error)
}

// SessionPool is the part of browser.Pool the router needs.
type SessionPool interface {
	With(ctx context.Context, fn func(*browser.Session) error) error
}

// BrowserRouter reads driving directions off the map web UI through a pooled
// session.
type BrowserRouter struct {
	pool    SessionPool
	baseURL string
	logger  *zap.Logger
}

func NewBrowserRouter(pool SessionPool, baseURL string, logger *zap.Logger) *BrowserRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &BrowserRouter{pool: pool, baseURL: baseURL, logger: logger}
}

func (r *BrowserRouter) DirectionsURL(origin, destination string) string {
	return r.baseURL + url.PathEscape(origin) + "/" + url.PathEscape(destination) + "?hl=zh-TW"
}

func (r *BrowserRouter) Route(ctx context.Context, origin, destination string) (Route, error) {
	var best Route
	err := r.pool.With(ctx, func(s *browser.Session) error {
		page, err := s.Load(ctx, r.DirectionsURL(origin, destination))
		if err != nil {
			return err
		}
		routes, err := ParseRoutes(page.HTML)
		if err != nil {
			return err
		}
		best = Shortest(routes)
		return nil
	})
	if err != nil {
		return Route{}, fmt.Errorf("route %q -> %q: %w", origin, destination, err)
	}
	r.logger.Debug("routed",
		zap.String("origin", origin),
		zap.String("destination", destination),
		zap.Float64("km", best.Km),
		zap.Duration("duration", best.Duration))
	return best, nil
}

var (
	distanceRe = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(公里|公尺|km|miles?|mi|m)(?:[^a-z]|$)`)
	durationRe = regexp.MustCompile(`(?i)(\d+)\s*(?:小時|hours?|hrs?)(?:\s*(\d+)\s*(?:分鐘|分|minutes?|mins?))?|(\d+)\s*(?:分鐘|分|minutes?|mins?)`)
)

// tripSelectors locate one block per suggested trip. When none match, the
// whole page text is scanned instead.
var tripSelectors = []string{
	"div[data-trip-index]",
	"div[id^='section-directions-trip']",
}

// pairWindow bounds how far from a distance its duration may appear.
const pairWindow = 80

// ParseRoutes extracts every distance and duration pair from a directions
// page. Pages list one pair per trip plus per-step distances, so callers
// normally want Shortest.
func ParseRoutes(html string) ([]Route, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse directions page: %w", err)
	}

	var routes []Route
	for _, selector := range tripSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if r, ok := firstPair(text); ok {
				routes = append(routes, r)
			}
		})
		if len(routes) > 0 {
			return routes, nil
		}
	}

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	locs := distanceRe.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		km, ok := parseKm(text[loc[2]:loc[3]], text[loc[4]:loc[5]])
		if !ok {
			continue
		}
		after := min(len(text), loc[1]+pairWindow)
		if i+1 < len(locs) {
			after = min(after, locs[i+1][0])
		}
		before := max(0, loc[0]-pairWindow)
		if i > 0 {
			before = max(before, locs[i-1][1])
		}

		d, ok := parseDuration(text[loc[1]:after])
		if !ok {
			d, ok = parseDuration(text[before:loc[0]])
		}
		if ok {
			routes = append(routes, Route{Km: km, Duration: d})
		}
	}
	if len(routes) == 0 {
		return nil, ErrRouteUnavailable
	}
	return routes, nil
}

func firstPair(text string) (Route, bool) {
	m := distanceRe.FindStringSubmatch(text)
	if m == nil {
		return Route{}, false
	}
	km, ok := parseKm(m[1], m[2])
	if !ok {
		return Route{}, false
	}
	d, ok := parseDuration(text)
	if !ok {
		return Route{}, false
	}
	return Route{Km: km, Duration: d}, true
}

func parseKm(number, unit string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch strings.ToLower(unit) {
	case "公里", "km":
		return v, true
	case "公尺", "m":
		return v / 1000, true
	case "mi", "mile", "miles":
		return v * 1.609344, true
	}
	return 0, false
}

func parseDuration(text string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	if m[1] != "" {
		return time.Duration(atoi(m[1]))*time.Hour + time.Duration(atoi(m[2]))*time.Minute, true
	}
	return time.Duration(atoi(m[3])) * time.Minute, true
}

// Shortest returns the minimum-distance route, or the zero Route for an
// empty list.
func Shortest(routes []Route) Route {
	var best Route
	for i, r := range routes {
		if i == 0 || r.Km < best.Km {
			best = r
		}
	}
	return best
}
