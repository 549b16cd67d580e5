package place

import "fmt"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// RawCandidate is one listing as parsed off a result page. Every field except
// Name may be empty when the page did not expose it.
type RawCandidate struct {
	Name        string   `json:"name"`
	AddressText string   `json:"address,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	PriceText   string   `json:"price,omitempty"`
	HoursText   string   `json:"hours,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
}

type DistanceSource string

const (
	DistanceRouted   DistanceSource = "routed"
	DistanceGeocoded DistanceSource = "geocoded"
	DistanceUnknown  DistanceSource = "unknown"
)

// ResolvedCandidate is a RawCandidate after distance resolution.
type ResolvedCandidate struct {
	RawCandidate
	Coordinates    *Coordinates   `json:"coordinates,omitempty"`
	DistanceKm     *float64       `json:"distance_km,omitempty"`
	DistanceSource DistanceSource `json:"distance_source"`
	OpenNow        *bool          `json:"open_now,omitempty"`
}

// Lift wraps raw candidates as unresolved candidates.
func Lift(raw []RawCandidate) []ResolvedCandidate {
	out := make([]ResolvedCandidate, 0, len(raw))
	for _, r := range raw {
		out = append(out, ResolvedCandidate{RawCandidate: r, DistanceSource: DistanceUnknown})
	}
	return out
}

// HasDistance reports whether the candidate carries a known distance.
func (c ResolvedCandidate) HasDistance() bool {
	return c.DistanceKm != nil && c.DistanceSource != DistanceUnknown && c.DistanceSource != ""
}
