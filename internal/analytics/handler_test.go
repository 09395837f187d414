package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "github.com/loglens-lab/project-loglens/internal/api/v1"
	httperr "github.com/loglens-lab/project-loglens/internal/core/errors"
	"github.com/loglens-lab/project-loglens/internal/sketch"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := NewEngine(sketch.DefaultPrecision)
	r := gin.New()
	engine.RegisterRoutes(r)
	return r, engine
}

func TestHandleDailyMetrics(t *testing.T) {
	r, engine := newTestRouter(t)

	require.NoError(t, engine.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T10:00:00Z"),
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/metrics/daily/2024-01-01", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var m DailyMetrics
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &m))
	require.Equal(t, 1, m.NRU)
	require.Equal(t, 1, m.NRD)
}

func TestHandleDailyMetrics_BadDate(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/metrics/daily/january", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidQueryError, errResp.ErrorType)
}

func TestHandleRangeMetrics(t *testing.T) {
	r, engine := newTestRouter(t)

	require.NoError(t, engine.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T10:00:00Z"),
	}))

	req := httptest.NewRequest(http.MethodGet,
		"/v1/analytics/metrics?start_date=2024-01-01&end_date=2024-01-02", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var metrics []DailyMetrics
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &metrics))
	require.Len(t, metrics, 2)
}

func TestHandleRangeMetrics_InvalidRange(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/analytics/metrics?start_date=2024-01-05&end_date=2024-01-01", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandleRangeMetrics_MissingParams(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/metrics", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandleStatsAndClearData(t *testing.T) {
	r, engine := newTestRouter(t)

	require.NoError(t, engine.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T10:00:00Z"),
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/stats", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.TotalUsers)

	req = httptest.NewRequest(http.MethodDelete, "/v1/analytics/data", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNoContent, resp.Code)

	require.Equal(t, 0, engine.Stats().TotalUsers)
}
