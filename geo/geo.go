package geo

import (
	"errors"
	"math"
	"time"

	"lunchmind/place"
)

var (
	ErrGeocodeFailed    = errors.New("geo: address could not be geocoded")
	ErrRouteUnavailable = errors.New("geo: no route found")
)

// MinDistanceKm is the floor for reported distances. Anything closer is the
// same place for ranking purposes.
const MinDistanceKm = 0.01

const earthRadiusKm = 6371.0

// BoundingBox rejects geocoder answers on the wrong side of the planet.
type BoundingBox struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// TaiwanBox covers the main island and the outlying islands.
var TaiwanBox = BoundingBox{MinLat: 21.0, MaxLat: 26.0, MinLon: 119.0, MaxLon: 122.5}

func (b BoundingBox) Contains(c place.Coordinates) bool {
	if b == (BoundingBox{}) {
		return true
	}
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

type Config struct {
	Box BoundingBox `yaml:"box"`
	// RegionSuffix is appended to geocoder queries, e.g. ", Taiwan".
	RegionSuffix string `yaml:"region_suffix"`
	// CollapseMeters merges ambiguous-name matches closer than this.
	CollapseMeters float64       `yaml:"collapse_meters"`
	MaxChoices     int           `yaml:"max_choices"`
	RouteTimeout   time.Duration `yaml:"route_timeout"`
	RouteBaseURL   string        `yaml:"route_base_url"`

	LinkExpander RedirectExpanderConfig `yaml:"link_expander"`
}

// DefaultConfig returns a default geo configuration
func DefaultConfig() Config {
	return Config{
		Box:            TaiwanBox,
		RegionSuffix:   ", Taiwan",
		CollapseMeters: 100,
		MaxChoices:     5,
		RouteTimeout:   30 * time.Second,
		RouteBaseURL:   "https://www.google.com/maps/dir/",
		LinkExpander:   DefaultRedirectExpanderConfig(),
	}
}

// Origin is where distances are measured from. Text is used for routing,
// Coords for straight-line distance; either may be missing.
type Origin struct {
	Text   string             `json:"text"`
	Coords *place.Coordinates `json:"coordinates,omitempty"`
}

// Distance is the answer of DistanceBetween. Km is meaningless when Source
// is DistanceUnknown.
type Distance struct {
	Km          float64
	Source      place.DistanceSource
	Destination *place.Coordinates
}

// HaversineKm is the great-circle distance between a and b.
func HaversineKm(a, b place.Coordinates) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// RoundKm rounds to two decimals and applies the MinDistanceKm floor.
func RoundKm(km float64) float64 {
	r := math.Round(km*100) / 100
	if r < MinDistanceKm {
		return MinDistanceKm
	}
	return r
}
