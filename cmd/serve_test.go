package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/h3-go/v4"

	"github.com/sells-group/citypath/internal/assist"
	"github.com/sells-group/citypath/internal/config"
	"github.com/sells-group/citypath/internal/hexstore"
	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/monitoring"
	"github.com/sells-group/citypath/internal/overlay"
	"github.com/sells-group/citypath/internal/store"
)

type tableReader struct {
	tbl *store.RawTable
	err error
}

func (r tableReader) ReadTable(context.Context) (*store.RawTable, error) { return r.tbl, r.err }

type runSource struct{ run *model.BuildRun }

func (r runSource) LatestRun(context.Context) (*model.BuildRun, error) { return r.run, nil }

func hexID(t *testing.T, lat, lng float64) string {
	t.Helper()
	return h3.LatLngToCell(h3.NewLatLng(lat, lng), 9).String()
}

// fixtureTable returns three hexes. By heat score b ranks first, then a,
// then c.
func fixtureTable(t *testing.T) (*store.RawTable, map[string]string) {
	ids := map[string]string{
		"a": hexID(t, 23.80, 90.40),
		"b": hexID(t, 23.81, 90.41),
		"c": hexID(t, 23.82, 90.42),
	}
	return &store.RawTable{
		Columns: model.FeatureColumns,
		Rows: [][]any{
			{ids["a"], 23.80, 90.40, 0.2, 30.0, 100.0},
			{ids["b"], 23.81, 90.41, 0.1, 35.0, nil},
			{ids["c"], 23.82, 90.42, 0.6, 25.0, 1000.0},
		},
	}, ids
}

type testAPI struct {
	handler http.Handler
	ids     map[string]string
}

func newTestAPI(t *testing.T, readErr error) *testAPI {
	t.Helper()
	tbl, ids := fixtureTable(t)
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	metrics := monitoring.NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.ScoringRequests, metrics.SnapshotRows)

	api := &apiServer{
		handle:    hexstore.NewHandle(tableReader{tbl: tbl, err: readErr}),
		collector: monitoring.NewCollector(runSource{run: &model.BuildRun{ID: "run-1", FinishedAt: finished}}, clockwork.NewFakeClockAt(finished.Add(time.Hour))),
		metrics:   metrics,
		city:      config.CityConfig{Name: "Dhaka"},
	}
	return &testAPI{handler: newRouter(api, []string{"*"}, reg), ids: ids}
}

func (a *testAPI) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestRouter_Health(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := api.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	h := decode[monitoring.HealthSnapshot](t, rr)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 3, h.Rows)
	assert.Equal(t, "1h0m0s", h.ArtifactAge)
}

func TestRouter_HealthLoadFailure(t *testing.T) {
	api := newTestAPI(t, errors.New("no such table"))
	rr := api.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "no such table")
}

func TestRouter_Layers(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := api.do(t, http.MethodGet, "/api/layers", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		City   string  `json:"city"`
		Layers []layer `json:"layers"`
	}](t, rr)
	assert.Equal(t, "Dhaka", body.City)
	require.Len(t, body.Layers, 4)
	assert.Equal(t, "tile", body.Layers[3].Type)
}

func TestRouter_Grid(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodGet, "/api/grid", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[listResponse[gridItem]](t, rr)
	assert.Equal(t, 3, body.Count)
	assert.Nil(t, body.Items[0].Boundary)

	var missing *model.HexFeatureRow
	for i := range body.Items {
		if body.Items[i].HexID == api.ids["b"] {
			missing = &body.Items[i].HexFeatureRow
		}
	}
	require.NotNil(t, missing)
	assert.Nil(t, missing.PopulationDensity)
}

func TestRouter_GridBoundary(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := api.do(t, http.MethodGet, "/api/grid?limit=10&boundary=true", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[listResponse[gridItem]](t, rr)
	require.NotNil(t, body.Items[0].Boundary)
	assert.Equal(t, "Polygon", body.Items[0].Boundary.Type)
}

func TestRouter_GridLimitBounds(t *testing.T) {
	api := newTestAPI(t, nil)
	for _, q := range []string{"limit=9", "limit=20001", "limit=abc"} {
		rr := api.do(t, http.MethodGet, "/api/grid?"+q, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, q)
	}
}

func TestRouter_Hotspots(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := api.do(t, http.MethodGet, "/api/hotspots?limit=2", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	recs := decode[[]model.ScoreRecord](t, rr)
	require.Len(t, recs, 2)
	assert.Equal(t, api.ids["b"], recs[0].HexID)
	assert.Equal(t, api.ids["a"], recs[1].HexID)
	assert.Contains(t, recs[0].Rationale, model.ColTemperature)
}

func TestRouter_HotspotsErrors(t *testing.T) {
	api := newTestAPI(t, nil)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/hotspots?theme=smog", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(t, http.MethodGet, "/api/hotspots?limit=0", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(t, http.MethodGet, "/api/hotspots?limit=201", nil).Code)
}

func TestRouter_HotspotsLoadFailure(t *testing.T) {
	api := newTestAPI(t, errors.New("boom"))
	assert.Equal(t, http.StatusServiceUnavailable, api.do(t, http.MethodGet, "/api/hotspots", nil).Code)
}

func TestRouter_Stats(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodGet, "/api/stats?hex_id="+api.ids["a"], nil)
	require.Equal(t, http.StatusOK, rr.Code)
	s := decode[model.HexStats](t, rr)
	assert.Equal(t, api.ids["a"], s.HexID)
	require.NotNil(t, s.PopulationDensity)
	assert.Equal(t, int64(100), *s.PopulationDensity)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/stats?hex_id=8928308280fffff", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(t, http.MethodGet, "/api/stats", nil).Code)
}

func TestRouter_Recommend(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodGet, "/api/recommend/parks?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[listResponse[model.ScoreRecord]](t, rr)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Items, 2)

	rr = api.do(t, http.MethodGet, "/api/recommend/clinics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode[listResponse[model.ScoreRecord]](t, rr)
	assert.Equal(t, 3, body.Count)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/recommend/trees", nil).Code)
}

func TestRouter_Chat(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodPost, "/api/chat", []byte(`{"question":"Where should we add a PARK?"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	reply := decode[assist.Reply](t, rr)
	assert.Equal(t, "parks", reply.Intent)
	assert.Len(t, reply.Markers, 3)
	assert.Contains(t, reply.Brief, "- Hex ")
	assert.Empty(t, reply.Explanation)

	rr = api.do(t, http.MethodPost, "/api/chat", []byte(`{"question":"What is NDVI?"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	reply = decode[assist.Reply](t, rr)
	assert.Equal(t, "general", reply.Intent)
	assert.Empty(t, reply.Markers)
	assert.Equal(t, "No markers selected.", reply.Brief)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/chat", []byte(`{`)).Code)
}

type stubExplainer struct{ got string }

func (s *stubExplainer) Explain(_ context.Context, intent assist.Intent, brief string) (string, error) {
	s.got = intent.String()
	return "Prioritise the hottest hex.", nil
}

func TestRouter_ChatExplains(t *testing.T) {
	tbl, _ := fixtureTable(t)
	ex := &stubExplainer{}
	api := &apiServer{
		handle:    hexstore.NewHandle(tableReader{tbl: tbl}),
		collector: monitoring.NewCollector(runSource{}, nil),
		city:      config.CityConfig{Name: "Dhaka"},
		explainer: ex,
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(`{"question":"which clinic sites?"}`)))
	newRouter(api, []string{"*"}, prometheus.NewRegistry()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	reply := decode[assist.Reply](t, rr)
	assert.Equal(t, "clinics", ex.got)
	assert.Equal(t, "Prioritise the hottest hex.", reply.Explanation)
	assert.Len(t, reply.Markers, 3)
}

func TestRouter_Metrics(t *testing.T) {
	api := newTestAPI(t, nil)
	api.do(t, http.MethodGet, "/api/hotspots", nil)

	rr := api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `citypath_scoring_requests_total{operation="rank"} 1`)
	assert.Contains(t, rr.Body.String(), "citypath_snapshot_rows 3")
}

func TestRouter_CORS(t *testing.T) {
	api := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/layers", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestGridItems_SkipsInvalidBoundary(t *testing.T) {
	items, err := gridItems([]model.HexFeatureRow{{HexID: "not-a-hex"}}, true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Boundary)
}

func TestRouter_NO2Overlay(t *testing.T) {
	tbl, _ := fixtureTable(t)
	var gotPath string
	api := &apiServer{
		handle: hexstore.NewHandle(tableReader{tbl: tbl}),
		city:   config.CityConfig{Name: "Dhaka"},
		no2: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		}),
	}
	h := newRouter(api, []string{"*"}, prometheus.NewRegistry())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tiles/no2/4/12/7.png", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/4/12/7.png", gotPath)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/layers", nil))
	body := decode[struct {
		Layers []layer `json:"layers"`
	}](t, rr)
	require.Len(t, body.Layers, 4)
	assert.Equal(t, "/api/tiles/no2/{z}/{x}/{y}.png", body.Layers[3].URL)
}

func TestRouter_NO2OverlayDisabled(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := api.do(t, http.MethodGet, "/api/tiles/no2/4/12/7.png", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/layers", nil)
	assert.NotContains(t, rr.Body.String(), `"url"`)
}

func TestRouter_HealthReportsTileCache(t *testing.T) {
	tbl, _ := fixtureTable(t)
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := overlay.NewCache(8, time.Hour, clockwork.NewFakeClockAt(finished))
	tile := overlay.Tile{Z: 4, X: 12, Y: 7, Date: "2026-02-28"}
	cache.Put(tile, []byte("png"))
	_, _ = cache.Get(tile)

	api := &apiServer{
		handle:    hexstore.NewHandle(tableReader{tbl: tbl}),
		collector: monitoring.NewCollector(runSource{run: &model.BuildRun{ID: "run-1", FinishedAt: finished}}, clockwork.NewFakeClockAt(finished)),
		city:      config.CityConfig{Name: "Dhaka"},
		tiles:     cache,
	}
	rr := httptest.NewRecorder()
	newRouter(api, []string{"*"}, prometheus.NewRegistry()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Status    string              `json:"status"`
		Rows      int                 `json:"rows"`
		TileCache *overlay.CacheStats `json:"tile_cache"`
	}](t, rr)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.Rows)
	require.NotNil(t, body.TileCache)
	assert.Equal(t, 1, body.TileCache.Entries)
	assert.Equal(t, 8, body.TileCache.MaxEntries)
	assert.Equal(t, int64(1), body.TileCache.Hits)
}
