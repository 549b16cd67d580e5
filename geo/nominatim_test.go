package geo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchmind/geo"
	"lunchmind/place"
)

func newNominatim(t *testing.T, handler http.HandlerFunc) *geo.NominatimGeocoder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := geo.DefaultNominatimConfig()
	cfg.URL = srv.URL + "/search"
	cfg.Delay = 0
	g, err := geo.NewNominatimGeocoder(cfg, nil)
	require.NoError(t, err)
	return g
}

func TestNominatimGeocoder(t *testing.T) {
	t.Parallel()
	var got http.Header
	g := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		q := r.URL.Query()
		assert.Equal(t, "台北車站, Taiwan", q.Get("q"))
		assert.Equal(t, "jsonv2", q.Get("format"))
		assert.Equal(t, "tw", q.Get("countrycodes"))
		assert.Equal(t, "5", q.Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"lat":"25.0478","lon":"121.5170","display_name":"臺北車站","importance":0.61},
			{"lat":"oops","lon":"121.5","display_name":"broken","importance":0.2}
		]`))
	})

	matches, err := g.Geocode(context.Background(), "台北車站, Taiwan")
	require.NoError(t, err)
	assert.Equal(t, []geo.Match{{
		Coordinates: place.Coordinates{Lat: 25.0478, Lon: 121.517},
		DisplayName: "臺北車站",
		Importance:  0.61,
	}}, matches)
	assert.Equal(t, "lunchmind/1.0", got.Get("User-Agent"))
}

func TestNominatimGeocoder_Errors(t *testing.T) {
	t.Parallel()

	t.Run("server error", func(t *testing.T) {
		g := newNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		})
		_, err := g.Geocode(context.Background(), "anything")
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		g := newNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
		})
		_, err := g.Geocode(context.Background(), "anything")
		assert.ErrorContains(t, err, "decode")
	})

	t.Run("cancelled", func(t *testing.T) {
		g := newNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := g.Geocode(ctx, "anything")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNominatimGeocoder_DeadlineWhileQueued(t *testing.T) {
	t.Parallel()
	var served atomic.Int32
	g := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		select {
		case <-time.After(300 * time.Millisecond):
			_, _ = w.Write([]byte(`[]`))
		case <-r.Context().Done():
		}
	})

	start := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, errs[i] = g.Geocode(ctx, "台北車站, Taiwan")
		}()
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.LessOrEqual(t, served.Load(), int32(1), "queued callers never reach the server")
}

func TestNominatimGeocoder_SpacesRequests(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	cfg := geo.DefaultNominatimConfig()
	cfg.URL = srv.URL + "/search"
	cfg.Delay = 100 * time.Millisecond
	g, err := geo.NewNominatimGeocoder(cfg, nil)
	require.NoError(t, err)

	start := time.Now()
	for range 3 {
		_, err := g.Geocode(context.Background(), "台北車站")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}
