package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Collector
)

// testCollector returns a shared collector; promauto registers metric
// names globally, so tests must not build one per test.
func testCollector() *metrics.Collector {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewCollector("test_services")
	})
	return testMetrics
}

func testLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestIngestDirectorySingleFile(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "USW00094728.txt", "20200101\t100\t-50\t0\n")

	repo := newFakeRepo()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := NewIngestionService(repo, testLogger(), testCollector(), clock)

	result, err := svc.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalFiles)
	assert.Equal(t, 1, result.IngestedFiles)
	assert.Equal(t, 0, result.FailedFiles)
	assert.Equal(t, 1, result.TotalRecords)

	require.Len(t, repo.observations, 1)
	obs := repo.observations[0]
	assert.Equal(t, "20200101", obs.Date)
	require.NotNil(t, obs.MaxTemp)
	assert.Equal(t, 100, *obs.MaxTemp)
	require.NotNil(t, obs.MinTemp)
	assert.Equal(t, -50, *obs.MinTemp)
	require.NotNil(t, obs.Precipitation)
	assert.Equal(t, 0, *obs.Precipitation)
	assert.Equal(t, "USW00094728", obs.WeatherStationID)
	assert.True(t, obs.IngestionTimestamp.Equal(clock.Now().UTC()))

	station, ok := repo.stations["USW00094728"]
	require.True(t, ok)
	assert.Equal(t, "US", station.State)
}

func TestIngestDirectorySentinelBecomesNil(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "USC00110072.txt", "20200101\t-9999\t-50\t-9999\n")

	repo := newFakeRepo()
	svc := NewIngestionService(repo, testLogger(), testCollector(), clockwork.NewFakeClock())

	_, err := svc.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, repo.observations, 1)
	assert.Nil(t, repo.observations[0].MaxTemp)
	assert.NotNil(t, repo.observations[0].MinTemp)
	assert.Nil(t, repo.observations[0].Precipitation)
}

func TestIngestDirectoryMalformedFileDoesNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	// The bad file has a valid first line: nothing from it may commit.
	writeDataFile(t, dir, "BAD0000001.txt", "20200101\t100\t50\t0\n20200102\tnot-a-number\t50\t0\n")
	writeDataFile(t, dir, "GOOD000001.txt", "20200101\t100\t50\t0\n20200102\t110\t60\t10\n")

	repo := newFakeRepo()
	svc := NewIngestionService(repo, testLogger(), testCollector(), clockwork.NewFakeClock())

	result, err := svc.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 1, result.IngestedFiles)
	assert.Equal(t, 1, result.FailedFiles)
	assert.Equal(t, 2, result.TotalRecords)
	require.Len(t, result.Errors, 1)

	// Only the good file's records exist; the bad file was all-or-nothing.
	require.Len(t, repo.observations, 2)
	for _, obs := range repo.observations {
		assert.Equal(t, "GOOD000001", obs.WeatherStationID)
	}
}

func TestIngestDirectorySkipsBlankLinesAndForeignExtensions(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "USW00094728.txt", "20200101\t100\t50\t0\n\n20200102\t110\t60\t10\n")
	writeDataFile(t, dir, "notes.csv", "this is not a data file")

	repo := newFakeRepo()
	svc := NewIngestionService(repo, testLogger(), testCollector(), clockwork.NewFakeClock())

	result, err := svc.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalFiles)
	assert.Equal(t, 2, result.TotalRecords)
	assert.Len(t, repo.observations, 2)
}

func TestIngestDirectoryEmptyDirectoryFails(t *testing.T) {
	repo := newFakeRepo()
	svc := NewIngestionService(repo, testLogger(), testCollector(), clockwork.NewFakeClock())

	_, err := svc.IngestDirectory(context.Background(), t.TempDir())
	require.Error(t, err)
}

func TestIngestDirectoryStoreFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "USW00094728.txt", "20200101\t100\t50\t0\n")

	repo := newFakeRepo()
	repo.failInsertObservations = true
	svc := NewIngestionService(repo, testLogger(), testCollector(), clockwork.NewFakeClock())

	_, err := svc.IngestDirectory(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
}
