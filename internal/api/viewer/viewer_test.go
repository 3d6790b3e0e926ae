package viewer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-traffic/internal/backend"
	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/export"
	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/service"
	"github.com/joeblew999/plat-traffic/internal/templates"
)

const fragmentsDir = "../../../web/templates/fragments"

type stubFetcher struct {
	mu      sync.Mutex
	studies []feature.Feature
	params  url.Values
}

func (f *stubFetcher) FetchFeatures(_ context.Context, path string, params url.Values) ([]feature.Feature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path != backend.StudiesPath {
		return []feature.Feature{{ID: feature.Text("P1"), GeomLon: feature.Float(-113.49), GeomLat: feature.Float(53.54)}}, nil
	}
	f.params = params
	return f.studies, nil
}

type recordingSaver struct {
	mu    sync.Mutex
	blobs []export.Blob
}

func (s *recordingSaver) Save(_ context.Context, b export.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = append(s.blobs, b)
	return nil
}

type testViewer struct {
	srv      *httptest.Server
	sessions *service.Sessions
	fetcher  *stubFetcher
	saver    *recordingSaver
}

func newTestViewer(t *testing.T, studies []feature.Feature) *testViewer {
	t.Helper()
	reg, err := service.NewRegistry("")
	require.NoError(t, err)
	f := &stubFetcher{studies: studies}
	sessions, err := service.NewSessions(reg, f, service.SessionOptions{Logger: logger.Discard()})
	require.NoError(t, err)
	renderer, err := templates.New(fragmentsDir)
	require.NoError(t, err)

	saver := &recordingSaver{}
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer test", "1.0.0"))
	New(sessions, saver, renderer, nil, nil).RegisterRoutes(api)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testViewer{srv: srv, sessions: sessions, fetcher: f, saver: saver}
}

func (v *testViewer) post(t *testing.T, path string, signals map[string]any) string {
	t.Helper()
	data, err := json.Marshal(signals)
	require.NoError(t, err)
	resp, err := v.srv.Client().Post(v.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	return string(body)
}

func scenarioA() []feature.Feature {
	return feature.DecodeCollection([]byte(`{"features":[
		{"properties":{"id":"S1","year":2021,"direction":"Northbound","lat":53.5,"lon":-113.5}},
		{"properties":{"id":"S2","year":2023,"direction":"Eastbound"},"geometry":{"coordinates":[-113.4,53.6]}}
	]}`))
}

func TestFilter_StreamsLoadingThenResult(t *testing.T) {
	v := newTestViewer(t, scenarioA())
	x := v.sessions.Create(context.Background(), true)

	body := v.post(t, "/api/v1/viewer/filter", map[string]any{
		"sessionid": x.ID(), "startyear": 2021, "endyear": "", "direction": "Northbound",
	})

	assert.Contains(t, body, "datastar-patch-elements")
	loading := strings.Index(body, explorer.MessageLoading)
	done := strings.Index(body, `"filterdisabled":false`)
	require.GreaterOrEqual(t, loading, 0)
	require.Greater(t, done, loading, "loading state is patched before the result")
	assert.Contains(t, body, `"exportdisabled":false`)
	assert.Contains(t, body, "scene-changed")

	v.fetcher.mu.Lock()
	params := v.fetcher.params
	v.fetcher.mu.Unlock()
	assert.Equal(t, "2021", params.Get("start_year"))
	assert.Equal(t, "2024", params.Get("end_year"))
	assert.Equal(t, "Northbound", params.Get("direction"))

	st, _ := x.Query()
	assert.Len(t, st.Results, 2)
}

func TestFilter_EmptyNotice(t *testing.T) {
	v := newTestViewer(t, []feature.Feature{})
	x := v.sessions.Create(context.Background(), true)

	body := v.post(t, "/api/v1/viewer/filter", map[string]any{"sessionid": x.ID()})
	assert.Contains(t, body, explorer.MessageEmpty)
	assert.Contains(t, body, `"exportdisabled":true`)
}

func TestExpiredSession(t *testing.T) {
	v := newTestViewer(t, nil)
	body := v.post(t, "/api/v1/viewer/reset", map[string]any{"sessionid": "gone"})
	assert.Contains(t, body, MessageExpired)
}

func TestSelectAndClose(t *testing.T) {
	v := newTestViewer(t, scenarioA())
	x := v.sessions.Create(context.Background(), true)
	signals := map[string]any{"sessionid": x.ID()}
	v.post(t, "/api/v1/viewer/filter", signals)

	body := v.post(t, "/api/v1/viewer/select/S1", signals)
	assert.Contains(t, body, "53.50000")
	assert.Contains(t, body, "Northbound")
	require.NotNil(t, x.Detail())

	body = v.post(t, "/api/v1/viewer/close", signals)
	assert.Contains(t, body, "Select a study marker to view its details.")
	assert.Nil(t, x.Detail())

	body = v.post(t, "/api/v1/viewer/select/S9", signals)
	assert.Contains(t, body, explorer.ErrNotSelectable.Error())
}

func TestOverlayToggle(t *testing.T) {
	v := newTestViewer(t, nil)
	x := v.sessions.Create(context.Background(), true)

	body := v.post(t, "/api/v1/viewer/overlays/mv_points_snapped", map[string]any{"sessionid": x.ID()})
	assert.Contains(t, body, `"overlay_mv_points_snapped":false`, "no checkbox signal flips the overlay")
	assert.Contains(t, body, "scene-changed")

	body = v.post(t, "/api/v1/viewer/overlays/mv_points_snapped", map[string]any{
		"sessionid": x.ID(), "overlay_mv_points_snapped": true,
	})
	assert.Contains(t, body, `"overlay_mv_points_snapped":true`)
	assert.True(t, x.Overlays()[0].Enabled)

	body = v.post(t, "/api/v1/viewer/overlays/bike_counters", map[string]any{"sessionid": x.ID()})
	assert.Contains(t, body, "unknown overlay")
}

func TestBaseMap(t *testing.T) {
	v := newTestViewer(t, nil)
	x := v.sessions.Create(context.Background(), true)

	v.post(t, "/api/v1/viewer/basemap", map[string]any{"sessionid": x.ID(), "basemap": "imagery"})
	assert.Equal(t, "imagery", x.BaseMap().Key)

	body := v.post(t, "/api/v1/viewer/basemap", map[string]any{"sessionid": x.ID(), "basemap": "watercolor"})
	assert.Contains(t, body, "unknown base map")
	assert.Contains(t, body, `"basemap":"imagery"`)
}

func TestExport(t *testing.T) {
	v := newTestViewer(t, scenarioA())
	x := v.sessions.Create(context.Background(), true)
	signals := map[string]any{"sessionid": x.ID()}

	body := v.post(t, "/api/v1/viewer/export", signals)
	assert.NotContains(t, body, "export-ready", "nothing to export before a filter")

	v.post(t, "/api/v1/viewer/filter", signals)
	body = v.post(t, "/api/v1/viewer/export", signals)
	assert.Contains(t, body, "Exported 2 studies")
	assert.Contains(t, body, "export-ready")
	assert.Contains(t, body, "/api/v1/sessions/"+x.ID()+"/export")

	v.saver.mu.Lock()
	defer v.saver.mu.Unlock()
	require.Len(t, v.saver.blobs, 1)
	assert.Equal(t, 2, v.saver.blobs[0].Rows)
}

func TestEvents_StreamsUntilSessionEnds(t *testing.T) {
	v := newTestViewer(t, nil)
	x := v.sessions.Create(context.Background(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.srv.URL+"/api/v1/viewer/events?session="+x.ID(), nil)
	require.NoError(t, err)
	resp, err := v.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	var seen strings.Builder
	for !strings.Contains(seen.String(), "scene-changed") {
		line, err := r.ReadString('\n')
		require.NoError(t, err, seen.String())
		seen.WriteString(line)
	}
	assert.Contains(t, seen.String(), `value="streets" selected`)
	assert.Contains(t, seen.String(), "Miovision Points")

	require.True(t, v.sessions.Delete(x.ID()))
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(rest), MessageExpired)
}

func TestOptions(t *testing.T) {
	opts := DirectionOptions(feature.Eastbound)
	require.Len(t, opts, 5)
	assert.Equal(t, "All", opts[0].Value)
	assert.True(t, opts[3].Selected)

	b := BaseMapOptions([]explorer.BaseMap{{Key: "a", Label: "A"}, {Key: "b", Label: "B"}}, "b")
	assert.False(t, b[0].Selected)
	assert.True(t, b[1].Selected)
}
