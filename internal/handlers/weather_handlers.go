package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// WeatherHandler handles weather API endpoints
type WeatherHandler struct {
	weatherService *services.WeatherService
	statsService   *services.StatisticsService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	statsService *services.StatisticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		statsService:   statsService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// GetObservations handles GET /api/weather
func (h *WeatherHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/weather").Observe(time.Since(startTime).Seconds())
	}()

	stationID := r.URL.Query().Get("station_id")
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	page, limit := parsePagination(r)
	filter := repository.ObservationFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if stationID != "" {
		filter.StationID = &stationID
	}

	if startDate != "" {
		if len(startDate) != 8 {
			h.sendError(w, r, "invalid start_date, expected YYYYMMDD", http.StatusBadRequest)
			return
		}
		filter.StartDate = &startDate
	}

	if endDate != "" {
		if len(endDate) != 8 {
			h.sendError(w, r, "invalid end_date, expected YYYYMMDD", http.StatusBadRequest)
			return
		}
		filter.EndDate = &endDate
	}

	observations, total, err := h.weatherService.GetObservations(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_OBSERVATIONS_ERROR] Failed to get observations", logging.Fields{
			"station_id": stationID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/weather")
		h.sendError(w, r, "failed to retrieve observations", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/weather", "GET", "200")
	h.sendJSON(w, paginate(observations, total, page, limit), http.StatusOK)
}

// GetStatistics handles GET /api/weather/stats
func (h *WeatherHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/weather/stats").Observe(time.Since(startTime).Seconds())
	}()

	stationID := r.URL.Query().Get("station_id")
	yearStr := r.URL.Query().Get("year")

	page, limit := parsePagination(r)
	filter := repository.StatisticsFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if stationID != "" {
		filter.StationID = &stationID
	}

	if yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			h.sendError(w, r, "invalid year, expected an integer", http.StatusBadRequest)
			return
		}
		filter.Year = &year
	}

	statistics, total, err := h.statsService.GetStatistics(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATISTICS_ERROR] Failed to get statistics", logging.Fields{
			"station_id": stationID,
			"year":       yearStr,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/weather/stats")
		h.sendError(w, r, "failed to retrieve statistics", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/weather/stats", "GET", "200")
	h.sendJSON(w, paginate(statistics, total, page, limit), http.StatusOK)
}

// GetStations handles GET /api/stations
func (h *WeatherHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/stations").Observe(time.Since(startTime).Seconds())
	}()

	page, limit := parsePagination(r)

	stations, err := h.weatherService.GetStations(ctx, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to get stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/stations")
		h.sendError(w, r, "failed to retrieve stations", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/stations", "GET", "200")
	h.sendJSON(w, paginate(stations, len(stations), page, limit), http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.sendJSON(w, status, http.StatusOK)
}

// parsePagination extracts page and limit query parameters with defaults
func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 100

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	return page, limit
}

func paginate(data interface{}, total, page, limit int) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

// sendJSON sends a JSON response
func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all weather API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/weather", h.GetObservations).Methods("GET")
	router.HandleFunc("/api/weather/stats", h.GetStatistics).Methods("GET")
	router.HandleFunc("/api/stations", h.GetStations).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
