package carbon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nuwa/carbon-engine/internal/export"
	"nuwa/carbon-engine/internal/rollup"
	"nuwa/carbon-engine/internal/timeseries"
)

func newTestRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := newTestEnv(t)
	handler := NewHandler(env.service, zap.NewNop())

	router := gin.New()
	handler.RegisterHealthRoutes(router)
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router, env
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHandler_GenerateCurve(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/growth-curves", gin.H{"speciesName": "Pino", "maxYears": 5})
	require.Equal(t, http.StatusOK, w.Code)

	var curve GrowthCurveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &curve))
	assert.Equal(t, "Gompertz", curve.Model)
	assert.Len(t, curve.Points, 6)
	assert.Equal(t, curve.Points[0].CO2eq, curve.Points[0].DeltaCO2)
}

func TestHandler_GenerateCurveErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/growth-curves", gin.H{"speciesName": "Ceiba"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeSpeciesNotFound, decodeError(t, w).Code)

	w = doJSON(router, http.MethodPost, "/api/v1/growth-curves", gin.H{"speciesName": "Guadua"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, CodeMissingParameters, body.Code)
	assert.Equal(t, "gB,gC,gBDbh,gCDbh", body.Field)

	w = doJSON(router, http.MethodPost, "/api/v1/growth-curves", gin.H{"speciesName": "Pino", "maxYears": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidYearRange, decodeError(t, w).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/growth-curves", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "body", decodeError(t, w).Field)
}

func TestHandler_GenerateCurveNonFinite(t *testing.T) {
	router, env := newTestRouter(t)
	seedDegenerateSpecies(t, env)

	w := doJSON(router, http.MethodPost, "/api/v1/growth-curves", gin.H{"speciesName": "Aliso"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, CodeNonFiniteCurve, body.Code)
	assert.Contains(t, body.Message, "Aliso")

	w = doJSON(router, http.MethodPost, "/api/v1/population", gin.H{
		"projectId": env.fixture.Project.ID,
		"species":   "Aliso",
		"startDate": "2020-01-01",
		"endDate":   "2022-01-01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeNonFiniteCurve, decodeError(t, w).Code)
}

func TestHandler_GenerateCurvesBatch(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/growth-curves/batch", gin.H{
		"speciesNames": []string{"Pino", "Ceiba"},
		"maxYears":     3,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchGrowthCurveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Curves, 1)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Ceiba", resp.Errors[0].Species)

	w = doJSON(router, http.MethodPost, "/api/v1/growth-curves/batch", gin.H{
		"speciesNames": []string{"Pino", "Ceiba"},
		"allOrNothing": true,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_GrowthModel(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/growth-curves/model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Gompertz"`)
}

func TestHandler_AggregateParcels(t *testing.T) {
	router, env := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/parcels/aggregate", gin.H{
		"projectIds": []uuid.UUID{env.fixture.Project.ID},
		"queryType":  "aggregated",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var totals []rollup.EcosystemTotals
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totals))
	require.Len(t, totals, 1)
	assert.InDelta(t, 1800, totals[0].Soc, 1e-9)

	w = doJSON(router, http.MethodPost, "/api/v1/parcels/aggregate", gin.H{"queryType": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "queryType", decodeError(t, w).Field)
}

func TestHandler_Snapshots(t *testing.T) {
	router, env := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/projects/"+env.fixture.Project.ID.String()+"/parcels/snapshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"parcelName":"Lote 1"`)

	w = doJSON(router, http.MethodGet, "/api/v1/projects/not-a-uuid/parcels/snapshots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "id", decodeError(t, w).Field)

	w = doJSON(router, http.MethodGet, "/api/v1/projects/"+uuid.NewString()+"/parcels/snapshots", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeProjectNotFound, decodeError(t, w).Code)
}

func TestHandler_DashboardCards(t *testing.T) {
	router, env := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/dashboard/cards?projectId="+env.fixture.Project.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cards rollup.Cards
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cards))
	assert.Equal(t, 2, cards.LandNumber)
	assert.InDelta(t, 10, cards.TotalImpact, 1e-9)

	w = doJSON(router, http.MethodGet, "/api/v1/dashboard/cards?projectId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "projectId", decodeError(t, w).Field)
}

func TestHandler_Population(t *testing.T) {
	router, env := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/population", gin.H{
		"projectId": env.fixture.Project.ID,
		"species":   "Pino",
		"startDate": "2024-01-01",
		"endDate":   "2028-01-01",
		"events": []gin.H{
			{"year": 2025, "percentage": 50},
			{"year": 2025, "percentage": 10},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp PopulationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Periods, 5)
	assert.Equal(t, int64(625), resp.Periods[1].Population)
	assert.Len(t, resp.Warnings, 1)

	w = doJSON(router, http.MethodPost, "/api/v1/population", gin.H{
		"projectId": env.fixture.Project.ID,
		"species":   "Pino",
		"startDate": "2024-01-01",
		"endDate":   "2028-01-01",
		"events":    []gin.H{{"year": 2025, "percentage": -5}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "events[0].percentage", decodeError(t, w).Field)
}

func TestHandler_SeriesFlow(t *testing.T) {
	router, env := newTestRouter(t)
	base := "/api/v1/projects/" + env.fixture.Project.ID.String() + "/series"

	w := doJSON(router, http.MethodPost, base+"/recompute", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var series timeseries.Series
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &series))
	assert.Len(t, series.Rows, 33)
	require.NotNil(t, series.State)
	assert.Equal(t, int64(1), series.State.Version)

	w = doJSON(router, http.MethodPost, base+"/stale", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(router, http.MethodGet, base+"/export?format=excel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatExcel.ContentType(), w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	w = doJSON(router, http.MethodGet, base+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "format", decodeError(t, w).Field)

	w = doJSON(router, http.MethodGet, base+"/export?archive=true", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeArchiveDisabled, decodeError(t, w).Code)
}

func TestHandler_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestHandler_LivenessAndReadiness(t *testing.T) {
	router, env := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"alive"`)

	w = doJSON(router, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)

	env.service.WithDatabaseCheck(func(context.Context) error { return errors.New("connection refused") })

	w = doJSON(router, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"not_ready"`)

	w = doJSON(router, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_ProjectSummary(t *testing.T) {
	router, env := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/projects/"+env.fixture.Project.ID.String()+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary ProjectSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Parcels)
	assert.InDelta(t, 1, summary.Completeness.Score, 1e-9)

	w = doJSON(router, http.MethodGet, "/api/v1/projects/"+uuid.NewString()+"/summary", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeProjectNotFound, decodeError(t, w).Code)
}
