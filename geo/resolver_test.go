package geo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchmind/cache"
	"lunchmind/geo"
	"lunchmind/place"
)

var (
	mainStation = place.Coordinates{Lat: 25.0478, Lon: 121.5170}
	taipei101   = place.Coordinates{Lat: 25.0340, Lon: 121.5645}
	tokyo       = place.Coordinates{Lat: 35.6812, Lon: 139.7671}
)

type stubGeocoder struct {
	answers map[string][]geo.Match
	err     error

	mu      sync.Mutex
	queries []string
}

func (g *stubGeocoder) Geocode(ctx context.Context, query string) ([]geo.Match, error) {
	g.mu.Lock()
	g.queries = append(g.queries, query)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.answers[query], nil
}

func (g *stubGeocoder) Queries() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

type stubRouter struct {
	route geo.Route
	err   error
	block bool
}

func (r *stubRouter) Route(ctx context.Context, _, _ string) (geo.Route, error) {
	if r.block {
		<-ctx.Done()
		return geo.Route{}, ctx.Err()
	}
	return r.route, r.err
}

func newLayer(t *testing.T) *cache.Layer {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.PurgeInterval = 0
	l := cache.NewLayer(cache.NewMemoryStore(cfg.Policies), cfg, nil)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestResolveCoordinates_Refinements(t *testing.T) {
	t.Parallel()
	g := &stubGeocoder{answers: map[string][]geo.Match{
		"台北市大安區復興南路一段107巷5弄, Taiwan": {{Coordinates: tokyo}},
		"台北市大安區復興南路一段, Taiwan":       {{Coordinates: tokyo}, {Coordinates: taipei101}},
	}}
	r := geo.NewResolver(geo.DefaultConfig(), g, nil, newLayer(t), nil, nil)

	res := r.ResolveCoordinates(context.Background(), "台北市大安區復興南路一段107巷5弄12號")
	require.True(t, res.OK(), res.Err)
	assert.Equal(t, taipei101, res.Value)
	assert.Equal(t, []string{
		"台北市大安區復興南路一段107巷5弄12號, Taiwan",
		"台北市大安區復興南路一段107巷5弄, Taiwan",
		"台北市大安區復興南路一段, Taiwan",
	}, g.Queries())

	// the same address, spelled differently, is served from the cache
	res = r.ResolveCoordinates(context.Background(), " 臺北市 大安區 復興南路一段107巷5弄12號")
	require.True(t, res.OK())
	assert.Equal(t, taipei101, res.Value)
	assert.Len(t, g.Queries(), 3)
}

func TestResolveCoordinates_Soft(t *testing.T) {
	t.Parallel()

	t.Run("too short", func(t *testing.T) {
		r := geo.NewResolver(geo.DefaultConfig(), &stubGeocoder{}, nil, nil, nil, nil)
		res := r.ResolveCoordinates(context.Background(), "台北")
		assert.Equal(t, geo.StatusSoft, res.Status)
	})

	t.Run("geocoder down", func(t *testing.T) {
		g := &stubGeocoder{err: errors.New("503")}
		r := geo.NewResolver(geo.DefaultConfig(), g, nil, nil, nil, nil)
		res := r.ResolveCoordinates(context.Background(), "台北市中正區忠孝西路一段50號")
		assert.Equal(t, geo.StatusSoft, res.Status)
		assert.ErrorIs(t, res.Err, geo.ErrGeocodeFailed)
		assert.Len(t, g.Queries(), 3)
	})

	t.Run("no geocoder", func(t *testing.T) {
		r := geo.NewResolver(geo.DefaultConfig(), nil, nil, nil, nil, nil)
		res := r.ResolveCoordinates(context.Background(), "台北市中正區忠孝西路一段50號")
		assert.Equal(t, geo.StatusSoft, res.Status)
	})

	t.Run("coordinates in text skip the geocoder", func(t *testing.T) {
		g := &stubGeocoder{}
		r := geo.NewResolver(geo.DefaultConfig(), g, nil, nil, nil, nil)
		res := r.ResolveCoordinates(context.Background(), "25.0478, 121.5170")
		require.True(t, res.OK())
		assert.Equal(t, mainStation, res.Value)
		assert.Empty(t, g.Queries())
	})
}

func TestResolveCoordinates_CancelledIsHard(t *testing.T) {
	t.Parallel()
	r := geo.NewResolver(geo.DefaultConfig(), &stubGeocoder{}, nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.ResolveCoordinates(ctx, "台北市中正區忠孝西路一段50號")
	assert.Equal(t, geo.StatusHard, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestResolveChoices(t *testing.T) {
	t.Parallel()
	nearB := place.Coordinates{Lat: taipei101.Lat + 0.0003, Lon: taipei101.Lon}
	g := &stubGeocoder{answers: map[string][]geo.Match{
		"Station Square, Taiwan": {
			{Coordinates: mainStation, DisplayName: "A", Importance: 0.5},
			{Coordinates: taipei101, DisplayName: "B", Importance: 0.9},
			{Coordinates: nearB, DisplayName: "B2", Importance: 0.8},
			{Coordinates: tokyo, DisplayName: "far away", Importance: 1},
		},
	}}
	r := geo.NewResolver(geo.DefaultConfig(), g, nil, nil, nil, nil)

	res := r.ResolveChoices(context.Background(), "Station Square")
	require.True(t, res.OK(), res.Err)
	require.Len(t, res.Value, 2)
	assert.Equal(t, "B", res.Value[0].DisplayName)
	assert.Equal(t, "A", res.Value[1].DisplayName)

	res = r.ResolveChoices(context.Background(), "Nowhere Plaza")
	assert.Equal(t, geo.StatusSoft, res.Status)
}

func TestResolveChoices_Address(t *testing.T) {
	t.Parallel()
	g := &stubGeocoder{answers: map[string][]geo.Match{
		"台北市信義區信義路五段7號, Taiwan": {{Coordinates: taipei101}},
	}}
	r := geo.NewResolver(geo.DefaultConfig(), g, nil, nil, nil, nil)

	res := r.ResolveChoices(context.Background(), "台北市信義區信義路五段7號")
	require.True(t, res.OK())
	assert.Equal(t, []geo.Match{{Coordinates: taipei101, DisplayName: "台北市信義區信義路五段7號"}}, res.Value)
}

func TestResolveOrigin(t *testing.T) {
	t.Parallel()
	g := &stubGeocoder{answers: map[string][]geo.Match{
		"Station Square, Taiwan": {{Coordinates: mainStation, Importance: 0.5}},
	}}
	r := geo.NewResolver(geo.DefaultConfig(), g, nil, nil, nil, nil)

	o, err := r.ResolveOrigin(context.Background(), "Station Square")
	require.NoError(t, err)
	require.NotNil(t, o.Coords)
	assert.Equal(t, mainStation, *o.Coords)

	o, err = r.ResolveOrigin(context.Background(), "Unknown Plaza")
	require.NoError(t, err)
	assert.Equal(t, geo.Origin{Text: "Unknown Plaza"}, o)

	o, err = r.ResolveOrigin(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, geo.Origin{}, o)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ResolveOrigin(ctx, "Station Square")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDistanceBetween(t *testing.T) {
	t.Parallel()
	dest := "台北市信義區信義路五段7號"
	g := &stubGeocoder{answers: map[string][]geo.Match{
		dest + ", Taiwan": {{Coordinates: taipei101}},
	}}
	origin := geo.Origin{Text: "台北車站", Coords: &mainStation}
	straight := geo.RoundKm(geo.HaversineKm(mainStation, taipei101))

	tests := []struct {
		name   string
		router geo.Router
		origin geo.Origin
		want   geo.Distance
	}{
		{
			name:   "routed",
			router: &stubRouter{route: geo.Route{Km: 6.4321, Duration: 15 * time.Minute}},
			origin: origin,
			want:   geo.Distance{Km: 6.43, Source: place.DistanceRouted},
		},
		{
			name:   "routed distance floors at ten meters",
			router: &stubRouter{route: geo.Route{Km: 0.004}},
			origin: origin,
			want:   geo.Distance{Km: geo.MinDistanceKm, Source: place.DistanceRouted},
		},
		{
			name:   "router fails, straight line",
			router: &stubRouter{err: geo.ErrRouteUnavailable},
			origin: origin,
			want:   geo.Distance{Km: straight, Source: place.DistanceGeocoded, Destination: &taipei101},
		},
		{
			name:   "zero route falls through",
			router: &stubRouter{},
			origin: origin,
			want:   geo.Distance{Km: straight, Source: place.DistanceGeocoded, Destination: &taipei101},
		},
		{
			name:   "no router, straight line",
			origin: origin,
			want:   geo.Distance{Km: straight, Source: place.DistanceGeocoded, Destination: &taipei101},
		},
		{
			name:   "no origin coordinates",
			router: &stubRouter{err: geo.ErrRouteUnavailable},
			origin: geo.Origin{Text: "台北車站"},
			want:   geo.Distance{Source: place.DistanceUnknown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := geo.NewResolver(geo.DefaultConfig(), g, tt.router, nil, nil, nil)
			got, err := r.DistanceBetween(context.Background(), tt.origin, dest)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistanceBetween_RouteTimeoutIsSoft(t *testing.T) {
	t.Parallel()
	g := &stubGeocoder{answers: map[string][]geo.Match{
		"台北市信義區信義路五段7號, Taiwan": {{Coordinates: taipei101}},
	}}
	cfg := geo.DefaultConfig()
	cfg.RouteTimeout = 20 * time.Millisecond
	r := geo.NewResolver(cfg, g, &stubRouter{block: true}, nil, nil, nil)

	got, err := r.DistanceBetween(context.Background(), geo.Origin{Text: "台北車站", Coords: &mainStation}, "台北市信義區信義路五段7號")
	require.NoError(t, err)
	assert.Equal(t, place.DistanceGeocoded, got.Source)
}

func TestDistanceBetween_CallerGone(t *testing.T) {
	t.Parallel()
	r := geo.NewResolver(geo.DefaultConfig(), &stubGeocoder{}, &stubRouter{block: true}, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := r.DistanceBetween(ctx, geo.Origin{Text: "台北車站", Coords: &mainStation}, "台北市信義區信義路五段7號")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, place.DistanceUnknown, got.Source)

	got, err = r.DistanceBetween(context.Background(), geo.Origin{Text: "台北車站"}, "")
	require.NoError(t, err)
	assert.Equal(t, geo.Distance{Source: place.DistanceUnknown}, got)
}

func TestResolveOrigin_CachesLandmarkChoices(t *testing.T) {
	t.Parallel()
	g := &stubGeocoder{answers: map[string][]geo.Match{
		"台北車站, Taiwan": {{Coordinates: mainStation, DisplayName: "臺北車站", Importance: 0.6}},
	}}
	r := geo.NewResolver(geo.DefaultConfig(), g, nil, newLayer(t), nil, nil)

	for _, text := range []string{"台北車站", "台北車站", " 台北 車站 "} {
		o, err := r.ResolveOrigin(context.Background(), text)
		require.NoError(t, err)
		require.NotNil(t, o.Coords)
		assert.Equal(t, mainStation, *o.Coords)
	}
	assert.Equal(t, []string{"台北車站, Taiwan"}, g.Queries())
}

type stubExpander struct {
	to  map[string]string
	err error
}

func (e stubExpander) Expand(ctx context.Context, link string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.err != nil {
		return "", e.err
	}
	return e.to[link], nil
}

func TestResolveOrigin_MapLinks(t *testing.T) {
	t.Parallel()
	ximen := place.Coordinates{Lat: 25.0421, Lon: 121.5081}
	expander := stubExpander{to: map[string]string{
		"https://maps.app.goo.gl/station": "https://www.google.com/maps/place/%E5%8F%B0%E5%8C%97%E8%BB%8A%E7%AB%99/@25.0478,121.5170,17z",
		"https://maps.app.goo.gl/ximen":   "https://www.google.com/maps/search/?api=1&query=%E8%A5%BF%E9%96%80%E7%94%BA",
		"https://maps.app.goo.gl/tokyo":   "https://www.google.com/maps/@35.6812,139.7671,15z",
	}}
	g := &stubGeocoder{answers: map[string][]geo.Match{
		"西門町, Taiwan": {{Coordinates: ximen}},
	}}
	r := geo.NewResolver(geo.DefaultConfig(), g, nil, nil, nil, nil, geo.WithExpander(expander))

	tests := []struct {
		link string
		want geo.Origin
	}{
		{
			link: "https://maps.app.goo.gl/station",
			want: geo.Origin{Text: "台北車站", Coords: &mainStation},
		},
		{
			link: "https://maps.app.goo.gl/ximen",
			want: geo.Origin{Text: "西門町", Coords: &ximen},
		},
		{
			link: "https://www.google.com/maps/place/Taipei+101/data=!4m2!3d25.0340!4d121.5645",
			want: geo.Origin{Text: "Taipei 101", Coords: &taipei101},
		},
		{
			link: "https://maps.google.com/?q=25.0340,121.5645",
			want: geo.Origin{Text: taipei101.String(), Coords: &taipei101},
		},
		{
			link: "https://maps.app.goo.gl/tokyo",
			want: geo.Origin{Text: "https://maps.app.goo.gl/tokyo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			o, err := r.ResolveOrigin(context.Background(), tt.link)
			require.NoError(t, err)
			assert.Equal(t, tt.want, o)
		})
	}
	assert.Equal(t, []string{"西門町, Taiwan"}, g.Queries())
}

func TestResolveOrigin_LinkExpansionFails(t *testing.T) {
	t.Parallel()
	link := "https://maps.app.goo.gl/broken"

	r := geo.NewResolver(geo.DefaultConfig(), &stubGeocoder{}, nil, nil, nil, nil,
		geo.WithExpander(stubExpander{err: errors.New("dns")}))
	o, err := r.ResolveOrigin(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, geo.Origin{Text: link}, o)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ResolveOrigin(ctx, link)
	assert.ErrorIs(t, err, context.Canceled)
}
