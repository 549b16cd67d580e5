package search_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchmind/browser"
	"lunchmind/browser/browsertest"
	"lunchmind/cache"
	"lunchmind/place"
	"lunchmind/probe"
	"lunchmind/search"
)

type fakeProber struct {
	delay time.Duration
	fn    func(q probe.Query) ([]place.RawCandidate, error)

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32

	mu      sync.Mutex
	queries []probe.Query
}

func (f *fakeProber) Probe(ctx context.Context, _ *browser.Session, q probe.Query) ([]place.RawCandidate, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.fn(q)
}

func (f *fakeProber) seen() []probe.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]probe.Query(nil), f.queries...)
}

func newPool(t *testing.T, size int, l *browsertest.Launcher) *browser.Pool {
	t.Helper()
	cfg := browser.DefaultPoolConfig()
	cfg.Size = size
	cfg.SweepInterval = 0
	cfg.AllowOverflow = false
	cfg.AcquireTimeout = 5 * time.Second
	p := browser.NewPool(cfg, l, nil)
	t.Cleanup(func() { p.Close() })
	return p
}

func testConfig(strategies ...string) search.Config {
	cfg := search.DefaultConfig()
	cfg.Strategies = nil
	for _, name := range strategies {
		cfg.Strategies = append(cfg.Strategies, search.Strategy{Name: name, URLTemplate: "https://search.test/" + name + "?q=%s"})
	}
	cfg.MaxFormulations = 1
	cfg.NavigationsPerSecond = 0
	cfg.TaskTimeout = 2 * time.Second
	return cfg
}

func memoryCache(t *testing.T) *cache.Layer {
	cfg := cache.DefaultConfig()
	cfg.PurgeInterval = 0
	l := cache.NewLayer(cache.NewMemoryStore(cfg.Policies), cfg, nil)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestFormulations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                    string
		keyword, hint, category string
		limit                   int
		want                    []string
	}{
		{
			name: "three variants", keyword: "牛肉麵", hint: "中正區", category: "餐廳", limit: 3,
			want: []string{"牛肉麵 中正區", "牛肉麵 餐廳 中正區", "中正區 牛肉麵 餐廳"},
		},
		{
			name: "limited", keyword: "牛肉麵", hint: "中正區", category: "餐廳", limit: 1,
			want: []string{"牛肉麵 中正區"},
		},
		{
			name: "no hint collapses duplicates", keyword: " ramen ", hint: "", category: "餐廳", limit: 3,
			want: []string{"ramen", "ramen 餐廳"},
		},
		{
			name: "keyword already the category", keyword: "餐廳", hint: "信義區", category: "餐廳", limit: 3,
			want: []string{"餐廳 信義區", "信義區 餐廳"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, search.Formulations(tt.keyword, tt.hint, tt.category, tt.limit))
		})
	}
	assert.Equal(t, "餐廳 中正區", search.Broadened(" 中正區", "餐廳"))
}

func TestStrategyURL(t *testing.T) {
	t.Parallel()
	s := search.DefaultStrategies("https://example.test/")
	require.Len(t, s, 3)
	assert.Equal(t, "https://example.test/search?q=ramen+tokyo+%E5%9C%B0%E5%9D%80&hl=zh-TW", s[2].URL("ramen tokyo"))
	assert.Equal(t, "https://example.test/maps/search/ramen?hl=zh-TW", s[0].URL("ramen"))
}

func TestSearch_MergesSuccessesInTaskOrder(t *testing.T) {
	t.Parallel()
	l := &browsertest.Launcher{}
	pool := newPool(t, 2, l)
	prober := &fakeProber{fn: func(q probe.Query) ([]place.RawCandidate, error) {
		switch q.Strategy {
		case "maps":
			return []place.RawCandidate{{Name: "A"}, {Name: "B"}}, nil
		case "local":
			return nil, probe.ErrBlocked
		default:
			return []place.RawCandidate{{Name: "C"}}, nil
		}
	}}
	o := search.New(testConfig("maps", "local", "web"), pool, prober, nil, nil, nil)

	got, err := o.Search(context.Background(), "ramen", "Station Square", 5)
	require.NoError(t, err)
	assert.Equal(t, []place.RawCandidate{{Name: "A"}, {Name: "B"}, {Name: "C"}}, got)

	assert.GreaterOrEqual(t, l.Closed(), 1, "blocked session is recycled")
	assert.Equal(t, 0, pool.Stats().InUse)
}

func TestSearch_AllBlockedIsUnavailable(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 2, &browsertest.Launcher{})
	prober := &fakeProber{fn: func(probe.Query) ([]place.RawCandidate, error) {
		return nil, probe.ErrBlocked
	}}
	o := search.New(testConfig("maps", "local"), pool, prober, nil, nil, nil)

	got, err := o.Search(context.Background(), "bento", "中正區", 5)
	assert.ErrorIs(t, err, search.ErrEngineUnavailable)
	assert.ErrorIs(t, err, probe.ErrBlocked)
	assert.Empty(t, got)

	var texts []string
	for _, q := range prober.seen() {
		texts = append(texts, q.Text)
	}
	assert.Contains(t, texts, search.Broadened("中正區", search.DefaultConfig().Category))
	assert.Len(t, texts, 4)
}

func TestSearch_AuthoritativeEmpty(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 2, &browsertest.Launcher{})
	prober := &fakeProber{fn: func(q probe.Query) ([]place.RawCandidate, error) {
		if q.Strategy == "maps" {
			return nil, probe.ErrNoResults
		}
		return nil, probe.ErrParseMiss
	}}
	o := search.New(testConfig("maps", "web"), pool, prober, nil, nil, nil)

	got, err := o.Search(context.Background(), "nothing-here", "", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_BroadenedFallbackFindsCandidates(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1, &browsertest.Launcher{})
	cfg := testConfig("maps")
	prober := &fakeProber{fn: func(q probe.Query) ([]place.RawCandidate, error) {
		if q.Text == search.Broadened("中正區", cfg.Category) {
			return []place.RawCandidate{{Name: "Generic Diner"}}, nil
		}
		return nil, probe.ErrNoResults
	}}
	o := search.New(cfg, pool, prober, nil, nil, nil)

	got, err := o.Search(context.Background(), "unicorn stew", "中正區", 5)
	require.NoError(t, err)
	assert.Equal(t, []place.RawCandidate{{Name: "Generic Diner"}}, got)
}

func TestSearch_FreshFingerprintShortCircuits(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 2, &browsertest.Launcher{})
	prober := &fakeProber{fn: func(probe.Query) ([]place.RawCandidate, error) {
		return []place.RawCandidate{{Name: "A"}}, nil
	}}
	o := search.New(testConfig("maps"), pool, prober, memoryCache(t), nil, nil)

	_, err := o.Search(context.Background(), "Noodles", "中正區", 5)
	require.NoError(t, err)
	got, err := o.Search(context.Background(), "noodle", " 中正區 ", 5)
	require.NoError(t, err)
	assert.Equal(t, []place.RawCandidate{{Name: "A"}}, got)
	assert.EqualValues(t, 1, prober.calls.Load())

	_, err = o.Search(context.Background(), "noodle", "中正區", 6)
	require.NoError(t, err)
	assert.EqualValues(t, 2, prober.calls.Load(), "limit is part of the fingerprint")
}

func TestSearch_WorkersBoundedByPool(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 2, &browsertest.Launcher{})
	prober := &fakeProber{delay: 20 * time.Millisecond, fn: func(probe.Query) ([]place.RawCandidate, error) {
		return []place.RawCandidate{{Name: "A"}}, nil
	}}
	cfg := testConfig("maps", "local", "web")
	cfg.MaxFormulations = 3
	cfg.Workers = 8
	o := search.New(cfg, pool, prober, nil, nil, nil)

	got, err := o.Search(context.Background(), "ramen", "中正區", 5)
	require.NoError(t, err)
	assert.Len(t, got, 9)
	assert.LessOrEqual(t, int(prober.peak.Load()), 2)
}

func TestSearch_AbandonedCallerStillReleasesSessions(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 1, &browsertest.Launcher{})
	prober := &fakeProber{delay: 100 * time.Millisecond, fn: func(probe.Query) ([]place.RawCandidate, error) {
		return []place.RawCandidate{{Name: "late"}}, nil
	}}
	layer := memoryCache(t)
	o := search.New(testConfig("maps"), pool, prober, layer, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := o.Search(ctx, "ramen", "中正區", 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool {
		return prober.inFlight.Load() == 0 && pool.Stats().InUse == 0 && pool.Stats().Total == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		got, err := o.Search(context.Background(), "ramen", "中正區", 5)
		return err == nil && len(got) == 1 && prober.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond, "late result is kept for the next caller")
}

func TestSearch_CollapsesConcurrentIdenticalRequests(t *testing.T) {
	t.Parallel()
	pool := newPool(t, 2, &browsertest.Launcher{})
	prober := &fakeProber{delay: 50 * time.Millisecond, fn: func(probe.Query) ([]place.RawCandidate, error) {
		return []place.RawCandidate{{Name: "A"}}, nil
	}}
	o := search.New(testConfig("maps"), pool, prober, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := o.Search(context.Background(), "ramen", "中正區", 5)
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, prober.calls.Load())
}
