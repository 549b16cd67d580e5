// Package weather reads current conditions at a point and turns them into a
// walking radius for lunch searches.
package weather

import (
	"context"
	"fmt"
	"math"

	"lunchmind/cache"
	"lunchmind/place"
)

// Reading is the weather at one point. ComfortIndex runs from 0 (pleasant)
// to 10 (sweating just standing still).
type Reading struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	WindMps      float64 `json:"wind_mps"`
	ComfortIndex float64 `json:"comfort_index"`
}

type Source interface {
	WeatherAt(ctx context.Context, at place.Coordinates) (Reading, error)
}

// NewReading fills in ComfortIndex from the raw measurements.
func NewReading(tempC, humidityPct, windMps float64) Reading {
	return Reading{
		TemperatureC: tempC,
		HumidityPct:  humidityPct,
		WindMps:      windMps,
		ComfortIndex: SweatIndex(tempC, humidityPct, windMps),
	}
}

// HeatIndexC is the apparent temperature. Below 27°C it is the air
// temperature; above, the NWS Rothfusz regression.
func HeatIndexC(tempC, humidityPct float64) float64 {
	if tempC < 27 {
		return tempC
	}
	f := tempC*9/5 + 32
	rh := humidityPct
	hi := -42.379 +
		2.04901523*f +
		10.14333127*rh -
		0.22475541*f*rh -
		6.83783e-3*f*f -
		5.481717e-2*rh*rh +
		1.22874e-3*f*f*rh +
		8.5282e-4*f*rh*rh -
		1.99e-6*f*f*rh*rh
	return (hi - 32) * 5 / 9
}

// SweatIndex scores how much a walk will make you sweat, 0 to 10, rounded
// to one decimal.
func SweatIndex(tempC, humidityPct, windMps float64) float64 {
	t := HeatIndexC(tempC, humidityPct) - windMps*1.5

	var idx float64
	switch {
	case t <= 20:
		idx = 0
	case t <= 25:
		idx = 1 + (t-20)*0.4
	case t <= 30:
		idx = 3 + (t-25)*0.6
	case t <= 35:
		idx = 6 + (t-30)*0.6
	default:
		idx = min(10, 9+(t-35)*0.2)
	}
	idx += max(0, (humidityPct-60)*0.02)
	return math.Round(min(10, max(0, idx))*10) / 10
}

// DefaultRadiusKm is how far people will walk for lunch in this weather.
func DefaultRadiusKm(r Reading) float64 {
	switch {
	case r.ComfortIndex <= 3:
		return 2.0
	case r.ComfortIndex <= 6:
		return 1.0
	default:
		return 0.5
	}
}

type cached struct {
	inner Source
	layer *cache.Layer
}

// Cached memoizes readings in the analysis cache on a grid of about one
// kilometre.
func Cached(inner Source, layer *cache.Layer) Source {
	if layer == nil {
		return inner
	}
	return &cached{inner: inner, layer: layer}
}

func (c *cached) WeatherAt(ctx context.Context, at place.Coordinates) (Reading, error) {
	key := cache.Fingerprint("weather", cache.Args{
		"lat": fmt.Sprintf("%.2f", at.Lat),
		"lon": fmt.Sprintf("%.2f", at.Lon),
	})
	if hit, ok := cache.Get[Reading](c.layer, cache.KindAnalysis, key); ok {
		return hit, nil
	}
	r, err := c.inner.WeatherAt(ctx, at)
	if err != nil {
		return r, err
	}
	cache.Put(c.layer, cache.KindAnalysis, key, r)
	return r, nil
}
