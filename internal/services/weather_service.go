package services

import (
	"context"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// WeatherService handles read-side weather data queries for the API
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetObservations retrieves weather observations with filtering
func (s *WeatherService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.Observation, int, error) {
	return s.repo.GetObservations(ctx, filter)
}

// GetStations retrieves weather stations
func (s *WeatherService) GetStations(ctx context.Context, limit, offset int) ([]*models.Station, error) {
	return s.repo.ListStations(ctx, limit, offset)
}
