package explorer

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/observability"
)

type fetchCall struct {
	Path   string
	Params url.Values
}

// fakeFetcher records every call and answers through route.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	route func(ctx context.Context, n int, path string, params url.Values) ([]feature.Feature, error)
}

func (f *fakeFetcher) FetchFeatures(ctx context.Context, path string, params url.Values) ([]feature.Feature, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Path: path, Params: params})
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	route := f.route
	f.mu.Unlock()

	if route == nil {
		return []feature.Feature{}, nil
	}
	return route(ctx, n, path, params)
}

func (f *fakeFetcher) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) last(path string) fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Path == path {
			return f.calls[i]
		}
	}
	return fetchCall{}
}

const (
	mvPath  = "/geojson/mv_points_snapped"
	estPath = "/geojson/estimation_points_snapped"
)

func testLayout(defaultEnabled bool) Layout {
	return Layout{
		Overlays: []OverlaySpec{
			{
				Name: "mv_points_snapped", Label: "Miovision Points",
				KeyPrefix: "mv", FallbackPrefix: "MV", Tooltip: "Miovision", PopupTitle: "Miovision Point",
				ErrorMessage: "Unable to load Miovision points.", DefaultEnabled: defaultEnabled,
				Style: Style{Radius: 6, Color: "#16a34a", FillColor: "#22c55e", FillOpacity: 0.75},
			},
			{
				Name: "estimation_points_snapped", Label: "Estimation Points",
				KeyPrefix: "est", FallbackPrefix: "EST", Tooltip: "Estimation", PopupTitle: "Estimation Point",
				ErrorMessage: "Unable to load estimation points.", DefaultEnabled: defaultEnabled,
				Style: Style{Radius: 6, Color: "#dc2626", FillColor: "#f87171", FillOpacity: 0.75},
			},
		},
		BaseMaps: []BaseMap{
			{Key: "streets", Label: "Street Map", URL: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"},
			{Key: "imagery", Label: "Satellite Imagery", URL: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"},
		},
		DefaultBaseMap: "streets",
		Center:         [2]float64{53.5461, -113.4938},
		Zoom:           12,
		Primary:        Style{Radius: 8, Color: "#1d4ed8", FillColor: "#1d4ed8", FillOpacity: 0.7},
	}
}

func newTestExplorer(t *testing.T, f *fakeFetcher, defaultEnabled bool) (*Explorer, *clockwork.FakeClock, *observability.Metrics) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	m := observability.NewMetrics(nil)
	x := New("test-session", testLayout(defaultEnabled), f, Options{Clock: clock, Metrics: m})
	require.NotNil(t, x)
	return x, clock, m
}

// scenarioA is the two-study response used across tests.
func scenarioA() []feature.Feature {
	return feature.DecodeCollection([]byte(`{"features":[
		{"properties":{"id":"S1","year":2021,"direction":"Northbound","lat":53.5,"lon":-113.5}},
		{"properties":{"id":"S2","year":2023,"direction":"Eastbound"},"geometry":{"coordinates":[-113.4,53.6]}}
	]}`))
}
