package services

import (
	"context"
	"time"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// deleteChunkSize bounds the id list handed to a single DELETE.
const deleteChunkSize = 1000

// DedupService removes duplicate rows introduced by re-running ingestion
// or aggregation. Both passes scan the full table: duplicates from any
// historical run are corrected, not just the latest one.
type DedupService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// DedupResult contains deduplication run statistics
type DedupResult struct {
	Scanned  int
	Deleted  int64
	Duration time.Duration
}

// NewDedupService creates a new deduplication service
func NewDedupService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DedupService {
	return &DedupService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// DedupeObservations deletes observations that match another row on every
// business field (date, max_temp, min_temp, precipitation, station),
// keeping the most recently ingested member of each group. Running it
// twice in a row deletes nothing on the second pass.
func (s *DedupService) DedupeObservations(ctx context.Context) (*DedupResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[DEDUP_RECORDS_START] Starting raw record deduplication", logging.Fields{})

	observations, err := s.repo.ListObservations(ctx)
	if err != nil {
		return nil, err
	}

	doomed := duplicateObservationIDs(observations)

	deleted, err := s.deleteInChunks(ctx, doomed, s.repo.DeleteObservations)
	if err != nil {
		return nil, err
	}

	result := &DedupResult{
		Scanned:  len(observations),
		Deleted:  deleted,
		Duration: time.Since(startTime),
	}
	s.metrics.RecordDedup("weather_records", deleted, result.Duration)

	s.logger.Info(ctx, "[DEDUP_RECORDS_COMPLETE] Raw record deduplication completed", logging.Fields{
		"scanned_records":  result.Scanned,
		"deleted_records":  result.Deleted,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, nil
}

// DedupeStats deletes statistics rows that match another row on the full
// value tuple (year, station, avg_max_temp, avg_min_temp,
// total_precipitation), keeping the highest id. Rows for the same
// (year, station) with different computed values are NOT duplicates and
// both survive.
func (s *DedupService) DedupeStats(ctx context.Context) (*DedupResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[DEDUP_STATS_START] Starting statistics deduplication", logging.Fields{})

	stats, err := s.repo.ListYearlyStats(ctx)
	if err != nil {
		return nil, err
	}

	doomed := duplicateStatIDs(stats)

	deleted, err := s.deleteInChunks(ctx, doomed, s.repo.DeleteYearlyStats)
	if err != nil {
		return nil, err
	}

	result := &DedupResult{
		Scanned:  len(stats),
		Deleted:  deleted,
		Duration: time.Since(startTime),
	}
	s.metrics.RecordDedup("weather_stats", deleted, result.Duration)

	s.logger.Info(ctx, "[DEDUP_STATS_COMPLETE] Statistics deduplication completed", logging.Fields{
		"scanned_records":  result.Scanned,
		"deleted_records":  result.Deleted,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, nil
}

// deleteInChunks issues bounded DELETE batches so one oversized duplicate
// backlog cannot produce an unbounded statement.
func (s *DedupService) deleteInChunks(ctx context.Context, ids []int64, deleteFn func(context.Context, []int64) (int64, error)) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		deleted, err := deleteFn(ctx, ids[start:end])
		if err != nil {
			return total, err
		}
		total += deleted
	}
	return total, nil
}

// nullableInt makes a *int usable inside a comparable map key while
// keeping "missing" distinct from every real value. Two missing readings
// compare equal for grouping.
type nullableInt struct {
	valid bool
	value int
}

func toNullableInt(p *int) nullableInt {
	if p == nil {
		return nullableInt{}
	}
	return nullableInt{valid: true, value: *p}
}

// nullableFloat is the float counterpart used for statistics grouping.
type nullableFloat struct {
	valid bool
	value float64
}

func toNullableFloat(p *float64) nullableFloat {
	if p == nil {
		return nullableFloat{}
	}
	return nullableFloat{valid: true, value: *p}
}

// observationKey is the business identity of a raw record; rows sharing
// it differ only in ingestion timestamp and surrogate id.
type observationKey struct {
	date          string
	station       string
	maxTemp       nullableInt
	minTemp       nullableInt
	precipitation nullableInt
}

// duplicateObservationIDs returns the ids to delete so that exactly one
// member of every duplicate group survives: the one with the maximum
// ingestion timestamp, ties broken by higher id.
func duplicateObservationIDs(observations []*models.Observation) []int64 {
	keep := make(map[observationKey]*models.Observation, len(observations))
	var doomed []int64

	for _, obs := range observations {
		key := observationKey{
			date:          obs.Date,
			station:       obs.WeatherStationID,
			maxTemp:       toNullableInt(obs.MaxTemp),
			minTemp:       toNullableInt(obs.MinTemp),
			precipitation: toNullableInt(obs.Precipitation),
		}

		current, ok := keep[key]
		if !ok {
			keep[key] = obs
			continue
		}

		if obs.IngestionTimestamp.After(current.IngestionTimestamp) ||
			(obs.IngestionTimestamp.Equal(current.IngestionTimestamp) && obs.ID > current.ID) {
			doomed = append(doomed, current.ID)
			keep[key] = obs
		} else {
			doomed = append(doomed, obs.ID)
		}
	}

	return doomed
}

// statKey is full value equality, not just the (year, station) grouping
// key: re-aggregations that computed different values are distinct
// snapshots, not duplicates.
type statKey struct {
	year               int
	station            string
	avgMaxTemp         nullableFloat
	avgMinTemp         nullableFloat
	totalPrecipitation nullableFloat
}

// duplicateStatIDs returns the ids to delete so that only the
// highest-id member of every value-identical group survives.
func duplicateStatIDs(stats []*models.YearlyStat) []int64 {
	keep := make(map[statKey]*models.YearlyStat, len(stats))
	var doomed []int64

	for _, stat := range stats {
		key := statKey{
			year:               stat.Year,
			station:            stat.WeatherStationID,
			avgMaxTemp:         toNullableFloat(stat.AvgMaxTemp),
			avgMinTemp:         toNullableFloat(stat.AvgMinTemp),
			totalPrecipitation: toNullableFloat(stat.TotalPrecipitation),
		}

		current, ok := keep[key]
		if !ok {
			keep[key] = stat
			continue
		}

		if stat.ID > current.ID {
			doomed = append(doomed, current.ID)
			keep[key] = stat
		} else {
			doomed = append(doomed, stat.ID)
		}
	}

	return doomed
}
