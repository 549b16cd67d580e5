package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"lunchmind/place"
)

type OpenMeteoConfig struct {
	URL            string        `yaml:"url"`
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultOpenMeteoConfig returns a default weather source configuration
func DefaultOpenMeteoConfig() OpenMeteoConfig {
	return OpenMeteoConfig{
		URL:            "https://api.open-meteo.com/v1/forecast",
		UserAgent:      "lunchmind/1.0",
		RequestTimeout: 10 * time.Second,
	}
}

// OpenMeteo reads current conditions from the Open-Meteo forecast API.
type OpenMeteo struct {
	cfg       OpenMeteoConfig
	collector *colly.Collector
	logger    *zap.Logger
}

func NewOpenMeteo(cfg OpenMeteoConfig, logger *zap.Logger) *OpenMeteo {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(cfg.RequestTimeout)
	return &OpenMeteo{cfg: cfg, collector: c, logger: logger}
}

type forecast struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		Wind        float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

func (o *OpenMeteo) forecastURL(at place.Coordinates) string {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(at.Lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(at.Lon, 'f', 4, 64))
	params.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m")
	params.Set("wind_speed_unit", "ms")
	return o.cfg.URL + "?" + params.Encode()
}

func (o *OpenMeteo) WeatherAt(ctx context.Context, at place.Coordinates) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	var (
		reading Reading
		cbErr   error
	)
	c := o.collector.Clone()
	c.Context = ctx
	c.OnResponse(func(r *colly.Response) {
		var f forecast
		if err := json.Unmarshal(r.Body, &f); err != nil {
			cbErr = fmt.Errorf("failed to decode forecast: %w", err)
			return
		}
		reading = NewReading(f.Current.Temperature, f.Current.Humidity, f.Current.Wind)
	})
	c.OnError(func(r *colly.Response, err error) {
		cbErr = fmt.Errorf("weather source returned %d: %w", r.StatusCode, err)
	})

	err := c.Visit(o.forecastURL(at))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Reading{}, ctxErr
	}
	if err != nil {
		return Reading{}, fmt.Errorf("weather at %s: %w", at, err)
	}
	if cbErr != nil {
		return Reading{}, fmt.Errorf("weather at %s: %w", at, cbErr)
	}

	o.logger.Debug("weather read",
		zap.Stringer("at", at),
		zap.Float64("temperature_c", reading.TemperatureC),
		zap.Float64("comfort_index", reading.ComfortIndex))
	return reading, nil
}
