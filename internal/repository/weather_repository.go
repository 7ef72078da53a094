package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"weather-etl/internal/models"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// WeatherRepository is the transactional table store the pipeline runs
// against: batch inserts, full-table scans, targeted deletes, and the
// filtered reads behind the HTTP API. The pipeline services never issue
// SQL themselves.
type WeatherRepository interface {
	// Schema
	EnsureSchema(ctx context.Context) error

	// Station operations
	UpsertStation(ctx context.Context, station *models.Station) error
	ListStations(ctx context.Context, limit, offset int) ([]*models.Station, error)

	// Observation operations
	InsertObservations(ctx context.Context, observations []*models.Observation) error
	ListObservations(ctx context.Context) ([]*models.Observation, error)
	DeleteObservations(ctx context.Context, ids []int64) (int64, error)
	GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error)

	// Yearly statistics operations
	InsertYearlyStats(ctx context.Context, stats []*models.YearlyStat) error
	ListYearlyStats(ctx context.Context) ([]*models.YearlyStat, error)
	DeleteYearlyStats(ctx context.Context, ids []int64) (int64, error)
	GetYearlyStats(ctx context.Context, filter StatisticsFilter) ([]*models.YearlyStat, int, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// ObservationFilter defines filters for querying observations.
// Dates are YYYYMMDD strings; lexical comparison matches calendar order.
type ObservationFilter struct {
	StationID *string
	StartDate *string
	EndDate   *string
	Limit     int
	Offset    int
}

// StatisticsFilter defines filters for querying yearly statistics
type StatisticsFilter struct {
	StationID *string
	Year      *int
	Limit     int
	Offset    int
}

// weatherRepository implements WeatherRepository on PostgreSQL
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS weather_stations (
	station_id TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS weather_records (
	id                  BIGSERIAL PRIMARY KEY,
	date                TEXT NOT NULL,
	max_temp            INTEGER,
	min_temp            INTEGER,
	precipitation       INTEGER,
	weather_station_id  TEXT NOT NULL,
	ingestion_timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weather_records_station_date
	ON weather_records (weather_station_id, date);

CREATE TABLE IF NOT EXISTS weather_stats (
	id                  BIGSERIAL PRIMARY KEY,
	year                INTEGER NOT NULL,
	weather_station_id  TEXT NOT NULL,
	avg_max_temp        NUMERIC(8,2),
	avg_min_temp        NUMERIC(8,2),
	total_precipitation NUMERIC(12,2),
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weather_stats_station_year
	ON weather_stats (weather_station_id, year);
`

// EnsureSchema creates the tables and indexes if they do not exist.
// Safe to call on every run.
func (r *weatherRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "ensure_schema", schemaSQL); err != nil {
		return &StoreError{Op: "ensure_schema", Err: err}
	}
	return nil
}

// UpsertStation creates a station row if absent, refreshing updated_at otherwise
func (r *weatherRepository) UpsertStation(ctx context.Context, station *models.Station) error {
	query := `
		INSERT INTO weather_stations (station_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (station_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, "upsert_station", query,
		station.StationID,
		station.State,
		station.CreatedAt,
		station.UpdatedAt,
	)
	if err != nil {
		return &StoreError{Op: "upsert_station", Err: err}
	}

	return nil
}

// ListStations retrieves weather stations with pagination
func (r *weatherRepository) ListStations(ctx context.Context, limit, offset int) ([]*models.Station, error) {
	query := `
		SELECT station_id, state, created_at, updated_at
		FROM weather_stations
		ORDER BY station_id
		LIMIT $1 OFFSET $2
	`

	var stations []*models.Station
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query, limit, offset); err != nil {
		return nil, &StoreError{Op: "list_stations", Err: err}
	}

	return stations, nil
}

// InsertObservations persists a batch of observations in a single
// transaction. The batch commits atomically or not at all; ingestion
// relies on this for its one-commit-per-file contract.
func (r *weatherRepository) InsertObservations(ctx context.Context, observations []*models.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		r.metrics.IngestionBatchSize.Observe(float64(len(observations)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Observation batch insert completed", logging.Fields{
			"count":       len(observations),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return &StoreError{Op: "begin_insert_observations", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weather_records (
			date, max_temp, min_temp, precipitation,
			weather_station_id, ingestion_timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return &StoreError{Op: "prepare_insert_observations", Err: err}
	}
	defer stmt.Close()

	for _, obs := range observations {
		_, err := stmt.ExecContext(ctx,
			obs.Date,
			obs.MaxTemp,
			obs.MinTemp,
			obs.Precipitation,
			obs.WeatherStationID,
			obs.IngestionTimestamp,
		)
		if err != nil {
			return &StoreError{Op: "insert_observation", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit_observations", Err: err}
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(observations)))

	return nil
}

// ListObservations returns every observation, oldest id first.
// Deduplication is a full-table scan by contract.
func (r *weatherRepository) ListObservations(ctx context.Context) ([]*models.Observation, error) {
	query := `
		SELECT id, date, max_temp, min_temp, precipitation,
		       weather_station_id, ingestion_timestamp
		FROM weather_records
		ORDER BY id
	`

	var observations []*models.Observation
	if err := r.db.SelectContext(ctx, "list_observations", &observations, query); err != nil {
		return nil, &StoreError{Op: "list_observations", Err: err}
	}

	return observations, nil
}

// DeleteObservations deletes observations by id and reports how many
// rows were removed
func (r *weatherRepository) DeleteObservations(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM weather_records WHERE id = ANY($1)`

	result, err := r.db.ExecContext(ctx, "delete_observations", query, pq.Array(ids))
	if err != nil {
		return 0, &StoreError{Op: "delete_observations", Err: err}
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, &StoreError{Op: "delete_observations_rows_affected", Err: err}
	}

	return deleted, nil
}

// GetObservations retrieves observations with filtering and pagination
func (r *weatherRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error) {
	query := `
		SELECT id, date, max_temp, min_temp, precipitation,
		       weather_station_id, ingestion_timestamp
		FROM weather_records
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND weather_station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND date >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND date <= $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_observations", &totalCount, countQuery, args...); err != nil {
		return nil, 0, &StoreError{Op: "count_observations", Err: err}
	}

	query += " ORDER BY date DESC, weather_station_id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var observations []*models.Observation
	if err := r.db.SelectContext(ctx, "get_observations", &observations, query, args...); err != nil {
		return nil, 0, &StoreError{Op: "get_observations", Err: err}
	}

	return observations, totalCount, nil
}

// InsertYearlyStats persists a batch of yearly statistics in a single
// transaction, filling in the assigned surrogate ids. The aggregation
// engine calls this once per batch so a failure never touches earlier
// committed batches.
func (r *weatherRepository) InsertYearlyStats(ctx context.Context, stats []*models.YearlyStat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return &StoreError{Op: "begin_insert_stats", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weather_stats (
			year, weather_station_id,
			avg_max_temp, avg_min_temp, total_precipitation,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`)
	if err != nil {
		return &StoreError{Op: "prepare_insert_stats", Err: err}
	}
	defer stmt.Close()

	for _, stat := range stats {
		err := stmt.QueryRowContext(ctx,
			stat.Year,
			stat.WeatherStationID,
			stat.AvgMaxTemp,
			stat.AvgMinTemp,
			stat.TotalPrecipitation,
			stat.CreatedAt,
		).Scan(&stat.ID)
		if err != nil {
			return &StoreError{Op: "insert_stat", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit_stats", Err: err}
	}

	r.metrics.StatsRowsTotal.Add(float64(len(stats)))

	return nil
}

// ListYearlyStats returns every statistics row, oldest id first
func (r *weatherRepository) ListYearlyStats(ctx context.Context) ([]*models.YearlyStat, error) {
	query := `
		SELECT id, year, weather_station_id,
		       avg_max_temp, avg_min_temp, total_precipitation,
		       created_at
		FROM weather_stats
		ORDER BY id
	`

	var stats []*models.YearlyStat
	if err := r.db.SelectContext(ctx, "list_stats", &stats, query); err != nil {
		return nil, &StoreError{Op: "list_stats", Err: err}
	}

	return stats, nil
}

// DeleteYearlyStats deletes statistics rows by id and reports how many
// rows were removed
func (r *weatherRepository) DeleteYearlyStats(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM weather_stats WHERE id = ANY($1)`

	result, err := r.db.ExecContext(ctx, "delete_stats", query, pq.Array(ids))
	if err != nil {
		return 0, &StoreError{Op: "delete_stats", Err: err}
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, &StoreError{Op: "delete_stats_rows_affected", Err: err}
	}

	return deleted, nil
}

// GetYearlyStats retrieves statistics with filtering and pagination.
// Newest rows first so the latest snapshot for a group lists ahead of
// any stale one that survived value-keyed deduplication.
func (r *weatherRepository) GetYearlyStats(ctx context.Context, filter StatisticsFilter) ([]*models.YearlyStat, int, error) {
	query := `
		SELECT id, year, weather_station_id,
		       avg_max_temp, avg_min_temp, total_precipitation,
		       created_at
		FROM weather_stats
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND weather_station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Year != nil {
		query += fmt.Sprintf(" AND year = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_stats", &totalCount, countQuery, args...); err != nil {
		return nil, 0, &StoreError{Op: "count_stats", Err: err}
	}

	query += " ORDER BY id DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var stats []*models.YearlyStat
	if err := r.db.SelectContext(ctx, "get_stats", &stats, query, args...); err != nil {
		return nil, 0, &StoreError{Op: "get_stats", Err: err}
	}

	return stats, totalCount, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// StoreError represents a failed store operation (connection, statement,
// or commit failure). Fatal to the current pipeline stage; no retries.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsTransient returns true; a later run against a healthy store may succeed.
func (e *StoreError) IsTransient() bool {
	return true
}
