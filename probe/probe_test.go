package probe_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchmind/browser"
	"lunchmind/browser/browsertest"
	"lunchmind/probe"
)

const mapsFeed = `<html><body><div role="feed">
<div class="Nv2PK">
  <a class="hfpxzc" aria-label="阿明牛肉麵" href="/maps/place/abc"></a>
  <div class="qBF1Pd fontHeadlineSmall">阿明牛肉麵</div>
  <span class="MW4etd">4.5</span>
  <div class="W4Efsd"><span>麵食 · $100-200</span><span>台北市中正區忠孝西路一段50號</span></div>
  <div class="W4Efsd"><span>營業中 · 21:00 結束營業</span></div>
</div>
<div class="Nv2PK">
  <div class="qBF1Pd">老王便當</div>
  <div class="W4Efsd"><span>永久停業</span></div>
</div>
<div class="Nv2PK"><span>sponsored</span></div>
</div>
<div role="article"><h3>should not be used</h3></div>
</body></html>`

func TestParsePage_Maps(t *testing.T) {
	t.Parallel()
	page := browser.Page{URL: "https://www.google.com/maps/search/x", HTML: mapsFeed}

	got, err := probe.ParsePage(page, probe.MapsTable(), probe.DefaultSignatures())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "阿明牛肉麵", got[0].Name)
	assert.Equal(t, "台北市中正區忠孝西路一段50號", got[0].AddressText)
	require.NotNil(t, got[0].Rating)
	assert.InDelta(t, 4.5, *got[0].Rating, 1e-9)
	assert.Equal(t, "$100-200", got[0].PriceText)
	assert.Equal(t, "營業中", got[0].HoursText)
	assert.Equal(t, "https://www.google.com/maps/place/abc", got[0].SourceURL)

	assert.Equal(t, "老王便當", got[1].Name)
	assert.Empty(t, got[1].AddressText)
	assert.Nil(t, got[1].Rating)
	assert.Equal(t, "永久停業", got[1].HoursText)
	assert.Empty(t, got[1].SourceURL)
}

func TestParsePage_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		page browser.Page
		want error
	}{
		{
			name: "redirected to challenge",
			page: browser.Page{URL: "https://www.google.com/sorry/index?continue=x", HTML: mapsFeed},
			want: probe.ErrBlocked,
		},
		{
			name: "captcha body",
			page: browser.Page{URL: "https://www.google.com/search", HTML: `<html><body><form id="captcha-form"></form></body></html>`},
			want: probe.ErrBlocked,
		},
		{
			name: "explicit empty",
			page: browser.Page{URL: "https://www.google.com/maps", HTML: `<html><body><div>Google 地圖找不到符合的結果</div></body></html>`},
			want: probe.ErrNoResults,
		},
		{
			name: "unknown layout",
			page: browser.Page{URL: "https://www.google.com/maps", HTML: `<html><body><section><p>something new</p></section></body></html>`},
			want: probe.ErrParseMiss,
		},
		{
			name: "containers without names",
			page: browser.Page{URL: "https://www.google.com/maps", HTML: `<html><body><div class="Nv2PK"><span>ad</span></div></body></html>`},
			want: probe.ErrParseMiss,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := probe.ParsePage(tt.page, probe.MapsTable(), probe.DefaultSignatures())
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, got)
		})
	}
}

func TestParsePage_FirstContainerSelectorWins(t *testing.T) {
	t.Parallel()
	html := `<html><body>
<div class="tF2Cxc"><h3>Second layout</h3></div>
<div class="MjjYud"><h3>First layout</h3><a href="https://example.com/menu">menu</a></div>
</body></html>`

	got, err := probe.ParsePage(browser.Page{URL: "https://www.google.com/search", HTML: html}, probe.WebTable(), probe.DefaultSignatures())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "First layout", got[0].Name)
	assert.Equal(t, "https://example.com/menu", got[0].SourceURL)
}

func TestParseRating(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"4.5", 4.5, true},
		{"4,3 stars", 4.3, true},
		{"評分 4.2 顆星，共 1,234 則評論", 4.2, true},
		{"4.5(1,234)", 4.5, true},
		{"1,234 reviews", 0, false},
		{"", 0, false},
		{"9.1", 0, false},
	}
	for _, tt := range tests {
		got, ok := probe.ParseRating(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestPageProber_FillsMissingLinks(t *testing.T) {
	t.Parallel()
	l := &browsertest.Launcher{
		OnLoad: func(_ context.Context, u string) (browser.Page, error) {
			return browser.Page{URL: u, HTML: mapsFeed}, nil
		},
	}
	cfg := browser.DefaultPoolConfig()
	cfg.SweepInterval = 0
	pool := browser.NewPool(cfg, l, nil)
	defer pool.Close()

	p := probe.NewPageProber(probe.DefaultConfig(), probe.DefaultTables(), probe.DefaultSignatures(), nil)
	q := probe.Query{Text: "牛肉麵 中正區", Strategy: "unregistered", URL: "https://www.google.com/maps/search/q"}

	err := pool.With(context.Background(), func(s *browser.Session) error {
		got, err := p.Probe(context.Background(), s, q)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "https://www.google.com/maps/place/abc", got[0].SourceURL)
		assert.Equal(t, "https://www.google.com/maps/search/"+url.PathEscape("老王便當"), got[1].SourceURL)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{q.URL}, l.Handles()[0].URLs())
}

func TestMapsSearchURL(t *testing.T) {
	t.Parallel()
	got := probe.MapsSearchURL("https://maps.example/search/", "Cafe", "12 Main St, Springfield")
	assert.Equal(t, "https://maps.example/search/Cafe%2012%20Main%20St", got)
	assert.Empty(t, probe.MapsSearchURL("", "Cafe", ""))
}
