package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/hex-coverage-etl/internal/adapter/http"
	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockQuerier struct {
	result     domain.RadiusResult
	search     dataset.SearchResult
	err        error
	lastQuery  domain.RadiusQuery
	lastPolicy coverage.Policy
	lastFilter dataset.Filter
}

func (m *mockQuerier) QueryRadius(q domain.RadiusQuery, policy coverage.Policy) (domain.RadiusResult, error) {
	m.lastQuery = q
	m.lastPolicy = policy
	return m.result, m.err
}

func (m *mockQuerier) Search(f dataset.Filter) (dataset.SearchResult, error) {
	m.lastFilter = f
	return m.search, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(q *mockQuerier, readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", q, &mockReadiness{err: readyErr}, discardLogger())
}

func do(t *testing.T, srv *httpadapter.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(&mockQuerier{}, nil), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(t, newTestServer(&mockQuerier{}, nil), http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(t, newTestServer(&mockQuerier{}, fmt.Errorf("no snapshot loaded")), http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no snapshot loaded", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(&mockQuerier{}, nil), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestQueryRadius_TruncatesPopulation(t *testing.T) {
	q := &mockQuerier{result: domain.RadiusResult{WeightedPopulation: 15321.9, MatchedCells: 42}}
	rec := do(t, newTestServer(q, nil), http.MethodPost, "/query_radius", `{"lat":40.758,"lon":-73.9855,"radius_km":6}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 15321.0, body["total_population"])
	assert.Equal(t, 42.0, body["matched_cell_count"])
	assert.Equal(t, 42.0, body["matched_hexes"])
	assert.Equal(t, 6.0, body["radius_km"])
	assert.Equal(t, domain.Geo{Lat: 40.758, Lon: -73.9855}, q.lastQuery.Center)
	assert.Equal(t, coverage.PolicyAreaWeighted, q.lastPolicy)
}

func TestQueryRadius_MissingField(t *testing.T) {
	rec := do(t, newTestServer(&mockQuerier{}, nil), http.MethodPost, "/query_radius", `{"lat":40.7,"lon":-73.9}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["error"])
}

func TestQueryRadius_ZeroCoordinatesAccepted(t *testing.T) {
	q := &mockQuerier{}
	rec := do(t, newTestServer(q, nil), http.MethodPost, "/query_radius", `{"lat":0,"lon":0,"radius_km":0}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryRadius_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"invalid radius", fmt.Errorf("%w: -1", domain.ErrInvalidRadius), http.StatusBadRequest, "invalid_query"},
		{"invalid coordinate", fmt.Errorf("%w: latitude 91", domain.ErrInvalidCoordinate), http.StatusBadRequest, "invalid_query"},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&mockQuerier{err: tt.err}, nil), http.MethodPost, "/query_radius", `{"lat":1,"lon":2,"radius_km":3}`)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.kind, decode(t, rec)["error"])
		})
	}
}

// datasetServer serves a real dataset of the cells within k rings of center.
func datasetServer(t *testing.T, center domain.Geo, k int, opts ...dataset.Option) *httpadapter.Server {
	t.Helper()
	origin, err := grid.CellAt(center, 8)
	require.NoError(t, err)
	cells, err := grid.Disk(origin, k)
	require.NoError(t, err)
	recs := make([]domain.PopulationRecord, len(cells))
	for i, c := range cells {
		recs[i] = domain.PopulationRecord{Cell: c, Population: 100}
	}
	p, err := coverage.NewProjector()
	require.NoError(t, err)
	ds, err := dataset.New(recs, 8, p, discardLogger(), observability.NewMetricsForTesting(), opts...)
	require.NoError(t, err)
	return httpadapter.NewServer(":0", ds, ds, discardLogger())
}

func TestQueryRadius_Dataset(t *testing.T) {
	srv := datasetServer(t, domain.Geo{Lat: 40.758, Lon: -73.9855}, 3)
	rec := do(t, srv, http.MethodPost, "/query_radius", `{"lat":40.758,"lon":-73.9855,"radius_km":1}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Greater(t, body["matched_cell_count"], 0.0)
	assert.Greater(t, body["total_population"], 0.0)
}

func TestQueryRadius_PolarWithoutCellsIsZero(t *testing.T) {
	srv := datasetServer(t, domain.Geo{Lat: 40.758, Lon: -73.9855}, 1)
	rec := do(t, srv, http.MethodPost, "/query_radius", `{"lat":87,"lon":10,"radius_km":2}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 0.0, body["total_population"])
	assert.Equal(t, 0.0, body["matched_cell_count"])
}

func TestQueryRadius_PolarWithCellsUnsupported(t *testing.T) {
	srv := datasetServer(t, domain.Geo{Lat: 84.9, Lon: 0}, 2)
	rec := do(t, srv, http.MethodPost, "/query_radius", `{"lat":85.1,"lon":0,"radius_km":30}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_location", decode(t, rec)["error"])
}

func TestQueryRadius_RadiusAboveLimit(t *testing.T) {
	srv := datasetServer(t, domain.Geo{Lat: 40.758, Lon: -73.9855}, 1, dataset.WithMaxRadiusKm(100))
	rec := do(t, srv, http.MethodPost, "/query_radius", `{"lat":40.758,"lon":-73.9855,"radius_km":5000}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_query", decode(t, rec)["error"])
}

func TestSearchHexes(t *testing.T) {
	q := &mockQuerier{search: dataset.SearchResult{
		Records:         []domain.PopulationRecord{{Cell: 0x882a100d2bfffff, Population: 900, PlaceLabels: domain.PlaceLabels{State: "NY"}}},
		Total:           1,
		TotalPopulation: 900,
	}}
	rec := do(t, newTestServer(q, nil), http.MethodPost, "/hexes/search",
		`{"min_density":100,"state":"NY","city":"york","lat":40.7,"lon":-74,"radius_km":5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["total"])
	hexes := body["hexes"].([]any)
	require.Len(t, hexes, 1)
	assert.Equal(t, "882a100d2bfffff", hexes[0].(map[string]any)["h3"])

	require.NotNil(t, q.lastFilter.MinDensity)
	assert.Equal(t, 100.0, *q.lastFilter.MinDensity)
	assert.Nil(t, q.lastFilter.MaxDensity)
	assert.Equal(t, "york", q.lastFilter.City)
	assert.Equal(t, 500, q.lastFilter.Limit)
	require.NotNil(t, q.lastFilter.Near)
	assert.Equal(t, 5.0, q.lastFilter.Near.RadiusKm)
}

func TestSearchHexes_EmptyResultIsArray(t *testing.T) {
	rec := do(t, newTestServer(&mockQuerier{}, nil), http.MethodPost, "/hexes/search", `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["hexes"])
}

func TestSearchHexes_BadParameters(t *testing.T) {
	srv := newTestServer(&mockQuerier{}, nil)
	for _, body := range []string{
		`{"min_density":10,"max_density":5}`,
		`{"limit":100000}`,
		`{"lat":40.7}`,
		`not json`,
	} {
		rec := do(t, srv, http.MethodPost, "/hexes/search", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
