package services

import (
	"context"
	"math"
	"sort"
	"time"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// StatisticsService derives per-station, per-year aggregates from the
// raw records. Each run appends one row per (year, station) group; the
// stats deduplicator collapses identical rows from repeated runs.
type StatisticsService struct {
	repo      repository.WeatherRepository
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	batchSize int
}

// AggregationResult contains aggregation run statistics
type AggregationResult struct {
	ScannedRecords int
	Groups         int
	Duration       time.Duration
}

// NewStatisticsService creates a new statistics service. batchSize bounds
// the per-transaction row count when persisting results.
func NewStatisticsService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, batchSize int) *StatisticsService {
	return &StatisticsService{
		repo:      repo,
		logger:    logger,
		metrics:   metricsCollector,
		batchSize: batchSize,
	}
}

// Aggregate groups every observation by (year, station) and persists one
// YearlyStat per group. Rows are written in batches, each batch its own
// transaction, so a failure never corrupts earlier committed batches.
func (s *StatisticsService) Aggregate(ctx context.Context) (*AggregationResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[STATS_CALC_START] Starting statistics calculation", logging.Fields{
		"batch_size": s.batchSize,
	})

	observations, err := s.repo.ListObservations(ctx)
	if err != nil {
		return nil, err
	}

	stats := ComputeYearlyStats(observations, time.Now().UTC())

	for start := 0; start < len(stats); start += s.batchSize {
		end := start + s.batchSize
		if end > len(stats) {
			end = len(stats)
		}
		if err := s.repo.InsertYearlyStats(ctx, stats[start:end]); err != nil {
			return nil, err
		}
	}

	result := &AggregationResult{
		ScannedRecords: len(observations),
		Groups:         len(stats),
		Duration:       time.Since(startTime),
	}
	s.metrics.StatsCalculationDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[STATS_CALC_COMPLETE] Statistics calculation completed", logging.Fields{
		"scanned_records":  result.ScannedRecords,
		"stat_rows":        result.Groups,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, nil
}

// GetStatistics retrieves statistics with filtering
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.YearlyStat, int, error) {
	return s.repo.GetYearlyStats(ctx, filter)
}

// statGroup accumulates per-(year, station) sums and counts. Missing
// readings are excluded from their aggregate, never treated as zero.
type statGroup struct {
	maxTempSum   int
	maxTempCount int
	minTempSum   int
	minTempCount int
	precipSum    int
	precipCount  int
}

type groupKey struct {
	year    int
	station string
}

// ComputeYearlyStats derives one YearlyStat per (year, station) group:
// mean max/min temperature converted from tenths to whole degrees and
// total precipitation converted from hundredths to whole units, each
// rounded to 2 decimal places. A field with no non-missing members
// yields nil. Output is ordered by station then year for deterministic
// batching.
func ComputeYearlyStats(observations []*models.Observation, createdAt time.Time) []*models.YearlyStat {
	groups := make(map[groupKey]*statGroup)

	for _, obs := range observations {
		key := groupKey{year: obs.Year(), station: obs.WeatherStationID}
		group, ok := groups[key]
		if !ok {
			group = &statGroup{}
			groups[key] = group
		}

		if obs.MaxTemp != nil {
			group.maxTempSum += *obs.MaxTemp
			group.maxTempCount++
		}
		if obs.MinTemp != nil {
			group.minTempSum += *obs.MinTemp
			group.minTempCount++
		}
		if obs.Precipitation != nil {
			group.precipSum += *obs.Precipitation
			group.precipCount++
		}
	}

	stats := make([]*models.YearlyStat, 0, len(groups))
	for key, group := range groups {
		stat := &models.YearlyStat{
			Year:             key.year,
			WeatherStationID: key.station,
			CreatedAt:        createdAt,
		}

		if group.maxTempCount > 0 {
			avg := round2(float64(group.maxTempSum) / float64(group.maxTempCount) / 10.0)
			stat.AvgMaxTemp = &avg
		}
		if group.minTempCount > 0 {
			avg := round2(float64(group.minTempSum) / float64(group.minTempCount) / 10.0)
			stat.AvgMinTemp = &avg
		}
		if group.precipCount > 0 {
			total := round2(float64(group.precipSum) / 100.0)
			stat.TotalPrecipitation = &total
		}

		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].WeatherStationID != stats[j].WeatherStationID {
			return stats[i].WeatherStationID < stats[j].WeatherStationID
		}
		return stats[i].Year < stats[j].Year
	})

	return stats
}

// round2 rounds half away from zero to 2 decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
