package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Collector
)

func testCollector() *metrics.Collector {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewCollector("test_handlers")
	})
	return testMetrics
}

func testLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

// stubRepo serves canned rows to the read-side endpoints.
type stubRepo struct {
	observations []*models.Observation
	stats        []*models.YearlyStat
	stations     []*models.Station

	lastObsFilter  repository.ObservationFilter
	lastStatFilter repository.StatisticsFilter
}

func (s *stubRepo) EnsureSchema(ctx context.Context) error                           { return nil }
func (s *stubRepo) UpsertStation(ctx context.Context, station *models.Station) error { return nil }

func (s *stubRepo) ListStations(ctx context.Context, limit, offset int) ([]*models.Station, error) {
	return s.stations, nil
}

func (s *stubRepo) InsertObservations(ctx context.Context, observations []*models.Observation) error {
	return nil
}

func (s *stubRepo) ListObservations(ctx context.Context) ([]*models.Observation, error) {
	return s.observations, nil
}

func (s *stubRepo) DeleteObservations(ctx context.Context, ids []int64) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.Observation, int, error) {
	s.lastObsFilter = filter
	return s.observations, len(s.observations), nil
}

func (s *stubRepo) InsertYearlyStats(ctx context.Context, stats []*models.YearlyStat) error {
	return nil
}

func (s *stubRepo) ListYearlyStats(ctx context.Context) ([]*models.YearlyStat, error) {
	return s.stats, nil
}

func (s *stubRepo) DeleteYearlyStats(ctx context.Context, ids []int64) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetYearlyStats(ctx context.Context, filter repository.StatisticsFilter) ([]*models.YearlyStat, int, error) {
	s.lastStatFilter = filter
	return s.stats, len(s.stats), nil
}

func (s *stubRepo) HealthCheck(ctx context.Context) error { return nil }

func newTestRouter(repo repository.WeatherRepository) *mux.Router {
	logger := testLogger()
	collector := testCollector()

	weatherService := services.NewWeatherService(repo, logger, collector)
	statsService := services.NewStatisticsService(repo, logger, collector, 1000)
	handler := NewWeatherHandler(weatherService, statsService, logger, collector)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestGetObservations(t *testing.T) {
	repo := &stubRepo{
		observations: []*models.Observation{
			{
				ID:                 1,
				Date:               "20200101",
				MaxTemp:            intp(100),
				MinTemp:            intp(-50),
				Precipitation:      intp(0),
				WeatherStationID:   "USW00094728",
				IngestionTimestamp: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
			},
		},
	}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/weather?station_id=USW00094728&start_date=20200101", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Page)

	require.NotNil(t, repo.lastObsFilter.StationID)
	assert.Equal(t, "USW00094728", *repo.lastObsFilter.StationID)
	require.NotNil(t, repo.lastObsFilter.StartDate)
	assert.Equal(t, "20200101", *repo.lastObsFilter.StartDate)
}

func TestGetObservationsRejectsBadDate(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/weather?start_date=2020-01-01", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatistics(t *testing.T) {
	repo := &stubRepo{
		stats: []*models.YearlyStat{
			{
				ID:                 7,
				Year:               2020,
				WeatherStationID:   "USW00094728",
				AvgMaxTemp:         floatp(10.0),
				AvgMinTemp:         floatp(-5.0),
				TotalPrecipitation: floatp(0.0),
			},
		},
	}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/weather/stats?year=2020&limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 10, resp.Limit)

	require.NotNil(t, repo.lastStatFilter.Year)
	assert.Equal(t, 2020, *repo.lastStatFilter.Year)
}

func TestGetStatisticsRejectsBadYear(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/weather/stats?year=twenty", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStations(t *testing.T) {
	repo := &stubRepo{
		stations: []*models.Station{
			{StationID: "USW00094728", State: "US"},
		},
	}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status["status"])
}
