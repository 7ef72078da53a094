package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// IngestionService loads per-station weather files into the store.
// Each source file commits in a single transaction: a malformed line
// aborts that file with nothing persisted, but sibling files continue.
type IngestionService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// IngestionResult contains ingestion run statistics
type IngestionResult struct {
	TotalFiles    int
	IngestedFiles int
	FailedFiles   int
	TotalRecords  int
	Duration      time.Duration
	Errors        []string
}

// NewIngestionService creates a new ingestion service. The clock stamps
// ingestion timestamps; tests pass a fake for deterministic output.
func NewIngestionService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, clock clockwork.Clock) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clock,
	}
}

// IngestDirectory ingests all .txt weather data files from a directory
// (non-recursive). The station id for each file is its filename stem.
// An unreadable directory or a store failure is fatal; a parse failure
// inside one file skips that file and continues.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string) (*IngestionResult, error) {
	startTime := s.clock.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir": dataDir,
	})

	result := &IngestionResult{
		Errors: make([]string, 0),
	}

	files, err := filepath.Glob(filepath.Join(dataDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dataDir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dataDir)
	}

	result.TotalFiles = len(files)

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
	})

	for _, filePath := range files {
		count, err := s.ingestFile(ctx, filePath)
		if err != nil {
			var parseErr *models.ParseError
			if !errors.As(err, &parseErr) {
				// Unreadable file or store failure terminates the run.
				return nil, fmt.Errorf("failed to ingest %s: %w", filePath, err)
			}

			result.FailedFiles++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filePath, err))
			s.metrics.RecordIngestionError("parse_error")
			s.logger.Warn(ctx, "[INGEST_FILE_SKIPPED] Malformed line, file not committed", logging.Fields{
				"file_path": filePath,
				"field":     parseErr.Field,
				"value":     parseErr.Value,
				"reason":    parseErr.Message,
			})
			continue
		}

		result.IngestedFiles++
		result.TotalRecords += count

		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested", logging.Fields{
			"file_path":    filePath,
			"record_count": count,
		})
	}

	result.Duration = s.clock.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":      result.TotalFiles,
		"ingested_files":   result.IngestedFiles,
		"failed_files":     result.FailedFiles,
		"total_records":    result.TotalRecords,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, nil
}

// ingestFile parses one source file and commits its records as a single
// batch. Returns the number of records committed. All-or-nothing: no
// insert happens until every line has parsed.
func (s *IngestionService) ingestFile(ctx context.Context, filePath string) (int, error) {
	fileName := filepath.Base(filePath)
	stationID := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	now := s.clock.Now().UTC()
	station := &models.Station{
		StationID: stationID,
		State:     stateFromStationID(stationID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertStation(ctx, station); err != nil {
		return 0, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var batch []*models.Observation

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		obs, err := models.ParseObservation(line, stationID, s.clock.Now().UTC())
		if err != nil {
			return 0, err
		}
		batch = append(batch, obs)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading file: %w", err)
	}

	if err := s.repo.InsertObservations(ctx, batch); err != nil {
		return 0, err
	}

	return len(batch), nil
}

// stateFromStationID derives a two-letter region code from the station id
// prefix, falling back to "XX" for short ids.
func stateFromStationID(stationID string) string {
	if len(stationID) >= 2 {
		return stationID[:2]
	}
	return "XX"
}
