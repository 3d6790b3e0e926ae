package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-traffic/internal/backend"
	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/observability"
	"github.com/joeblew999/plat-traffic/internal/service"
)

const studiesJSON = `{"features":[
	{"properties":{"id":"S1","year":2021,"direction":"Northbound","lat":53.5,"lon":-113.5}},
	{"properties":{"id":"S2","year":2023,"direction":"Eastbound"},"geometry":{"coordinates":[-113.4,53.6]}}
]}`

const overlayJSON = `{"features":[{"properties":{"id":"P1"},"geometry":{"coordinates":[-113.49,53.54]}}]}`

// upstream is a fake study backend that records the last studies query.
type upstream struct {
	mu      sync.Mutex
	query   url.Values
	studies http.HandlerFunc
}

func (u *upstream) lastQuery() url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.query
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/geojson/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(overlayJSON))
	})
	mux.HandleFunc("/query/studies", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.query = r.URL.Query()
		u.mu.Unlock()
		if u.studies != nil {
			u.studies(w, r)
			return
		}
		_, _ = w.Write([]byte(studiesJSON))
	})
	return mux
}

type testEnv struct {
	srv      *httptest.Server
	upstream *upstream
	metrics  *observability.Metrics
}

func newTestEnv(t *testing.T, studies http.HandlerFunc) *testEnv {
	t.Helper()
	up := &upstream{studies: studies}
	backendSrv := httptest.NewServer(up.handler())
	t.Cleanup(backendSrv.Close)

	m := observability.NewMetrics(nil)
	client, err := backend.New(backendSrv.URL, backendSrv.Client(), logger.Discard(), m)
	require.NoError(t, err)
	reg, err := service.NewRegistry("")
	require.NoError(t, err)
	sessions, err := service.NewSessions(reg, client, service.SessionOptions{Metrics: m, Logger: logger.Discard()})
	require.NoError(t, err)

	mux := http.NewServeMux()
	cfg := huma.DefaultConfig("plat-traffic test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	humaAPI := humago.New(mux, cfg)
	RegisterRoutes(humaAPI, &Services{
		Registry: reg,
		Sessions: sessions,
		Exports:  service.NewExportStore(t.TempDir()),
		Metrics:  m,
	})
	NewInfoHandler(backendSrv.URL, "", "exports").RegisterRoutes(humaAPI)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, upstream: up, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func hasLink(resp *http.Response, rel string) bool {
	for _, l := range resp.Header.Values("Link") {
		if strings.Contains(l, `rel="`+rel+`"`) {
			return true
		}
	}
	return false
}

func (e *testEnv) createSession(t *testing.T) SessionBody {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	return decode[SessionBody](t, data)
}

func TestHealthAndCatalog(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[HealthBody](t, data).Status)
	assert.True(t, hasLink(resp, "info"))
	assert.True(t, hasLink(resp, "service-desc"))

	resp, data = env.do(t, http.MethodGet, "/api/v1/overlays", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	overlays := decode[[]explorer.OverlaySpec](t, data)
	require.Len(t, overlays, 2)
	assert.Equal(t, "mv", overlays[0].KeyPrefix)

	resp, data = env.do(t, http.MethodGet, "/api/v1/basemaps", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]explorer.BaseMap](t, data), 2)

	resp, data = env.do(t, http.MethodGet, "/api/v1/info", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[InfoBody](t, data)
	assert.Equal(t, "plat-traffic", info.Name)
	assert.Equal(t, "builtin", info.Layers)
}

func TestSession_FilterSelectExportReset(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)

	require.Len(t, s.Overlays, 2)
	for _, o := range s.Overlays {
		assert.True(t, o.Enabled)
		assert.Equal(t, "loaded", o.State)
		assert.Equal(t, 1, o.Count)
	}
	assert.Equal(t, "idle", s.Query.Status)
	assert.Equal(t, "streets", s.BaseMap.Key)
	assert.True(t, s.Controls.ExportDisabled)

	base := "/api/v1/sessions/" + s.ID

	resp, data := env.do(t, http.MethodPost, base+"/filter", map[string]string{
		"startYear": "2021", "endYear": "soon", "direction": "Northbound",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	s = decode[SessionBody](t, data)
	assert.Equal(t, "success", s.Query.Status)
	assert.Equal(t, 2, s.Query.Count)
	assert.Equal(t, "S1", s.Query.Results[0].Key)
	assert.Equal(t, explorer.Criteria{StartYear: 2021, EndYear: 2024, Direction: "Northbound"}, s.Criteria)
	assert.True(t, hasLink(resp, "export"))
	assert.True(t, hasLink(resp, "reset"))

	q := env.upstream.lastQuery()
	assert.Equal(t, "2021", q.Get("start_year"))
	assert.Equal(t, "2024", q.Get("end_year"))
	assert.Equal(t, "Northbound", q.Get("direction"))

	resp, data = env.do(t, http.MethodPut, base+"/selection", map[string]string{"key": "S2"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	d := decode[DetailBody](t, data)
	require.True(t, d.Selected)
	assert.Equal(t, "53.60000", d.Detail.LatLabel)
	assert.Equal(t, "-113.40000", d.Detail.LonLabel)

	resp, data = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, hasLink(resp, "close-detail"))
	assert.True(t, hasLink(resp, "self"))

	resp, _ = env.do(t, http.MethodDelete, base+"/selection", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, data = env.do(t, http.MethodGet, base+"/detail", nil)
	d = decode[DetailBody](t, data)
	assert.False(t, d.Selected)
	assert.Equal(t, EmptyDetailMessage, d.Message)

	resp, data = env.do(t, http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv;charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="traffic_studies.csv"`, resp.Header.Get("Content-Disposition"))
	assert.NotEmpty(t, resp.Header.Get("ETag"))
	assert.Equal(t, "id,year,direction,lat,lon\nS1,2021,Northbound,53.5,-113.5\nS2,2023,Eastbound,53.6,-113.4\n", string(data))

	resp, data = env.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s = decode[SessionBody](t, data)
	assert.Equal(t, "idle", s.Query.Status)
	assert.Empty(t, s.Query.Results)
	assert.Equal(t, explorer.DefaultCriteria(), s.Criteria)
	assert.False(t, hasLink(resp, "export"))

	resp, data = env.do(t, http.MethodGet, base+"/export", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, data)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Exports.WithLabelValues("empty")))

	resp, _ = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSession_FilterFailureAndEmpty(t *testing.T) {
	fail := true
	var mu sync.Mutex
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"features":[]}`))
	})
	s := env.createSession(t)
	base := "/api/v1/sessions/" + s.ID
	assert.False(t, s.Query.HasRun)

	_, data := env.do(t, http.MethodPost, base+"/filter", map[string]string{})
	s = decode[SessionBody](t, data)
	assert.Equal(t, "error", s.Query.Status)
	assert.True(t, s.Query.HasRun, "a failed attempt still counts as run")
	assert.Equal(t, "Request failed with status 500", s.Query.Error)
	assert.Equal(t, "Request failed with status 500", s.Query.Notice)
	assert.Empty(t, s.Query.Results)

	mu.Lock()
	fail = false
	mu.Unlock()

	_, data = env.do(t, http.MethodPost, base+"/filter", map[string]string{})
	s = decode[SessionBody](t, data)
	assert.Equal(t, "success", s.Query.Status)
	assert.Equal(t, explorer.MessageEmpty, s.Query.Notice)
	assert.True(t, s.Controls.ExportDisabled)
}

func TestSession_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Overlay names are checked against the registry before the session.
	resp, data := env.do(t, http.MethodPut, "/api/v1/sessions/nope/overlays/bike_counters", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(data), "unknown overlay")
	resp, data = env.do(t, http.MethodPut, "/api/v1/sessions/nope/overlays/mv_points_snapped", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(data), "session not found")

	s := env.createSession(t)
	base := "/api/v1/sessions/" + s.ID

	resp, _ = env.do(t, http.MethodPut, base+"/overlays/bike_counters", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPut, base+"/basemap", map[string]string{"key": "watercolor"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPut, base+"/selection", map[string]string{"key": "S1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSession_OverlayAndBaseMap(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/api/v1/sessions/" + s.ID

	resp, data := env.do(t, http.MethodPut, base+"/overlays/mv_points_snapped", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	st := decode[explorer.OverlayStatus](t, data)
	assert.False(t, st.Enabled)
	assert.Equal(t, "loaded", st.State, "disabling keeps the cache")

	resp, data = env.do(t, http.MethodPut, base+"/basemap", map[string]string{"key": "imagery"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "imagery", decode[explorer.BaseMap](t, data).Key)

	resp, data = env.do(t, http.MethodGet, base+"/scene", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	var scene struct {
		BaseMap explorer.BaseMap `json:"baseMap"`
		Zoom    int              `json:"zoom"`
		Layers  []struct {
			Name       string `json:"name"`
			Selectable bool   `json:"selectable"`
			Markers    struct {
				Features []json.RawMessage `json:"features"`
			} `json:"markers"`
		} `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(data, &scene))
	assert.Equal(t, "imagery", scene.BaseMap.Key)
	assert.Equal(t, 12, scene.Zoom)
	require.Len(t, scene.Layers, 2)
	assert.Equal(t, explorer.PrimaryLayer, scene.Layers[0].Name)
	assert.True(t, scene.Layers[0].Selectable)
	assert.Empty(t, scene.Layers[0].Markers.Features)
	assert.Equal(t, "estimation_points_snapped", scene.Layers[1].Name)
	assert.Len(t, scene.Layers[1].Markers.Features, 1)

	resp, _ = env.do(t, http.MethodGet, base+"/scene", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestExports_SaveAndList(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/api/v1/sessions/" + s.ID

	resp, data := env.do(t, http.MethodPost, base+"/export/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.False(t, decode[SavedExportBody](t, data).Saved)

	env.do(t, http.MethodPost, base+"/filter", map[string]string{})
	resp, data = env.do(t, http.MethodPost, base+"/export/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	saved := decode[SavedExportBody](t, data)
	assert.True(t, saved.Saved)
	assert.Equal(t, 2, saved.Rows)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Exports.WithLabelValues("saved")))

	resp, data = env.do(t, http.MethodGet, "/api/v1/exports", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := decode[[]service.ExportFile](t, data)
	require.Len(t, files, 1)
	assert.Equal(t, s.ID, files[0].Session)
	assert.Equal(t, "traffic_studies.csv", files[0].Name)
}
