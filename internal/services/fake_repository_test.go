package services

import (
	"context"
	"errors"
	"sync"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
)

// fakeRepo is an in-memory WeatherRepository for service tests. It
// assigns surrogate ids the way the real store does and records batch
// sizes so tests can assert transaction boundaries.
type fakeRepo struct {
	mu sync.Mutex

	stations     map[string]*models.Station
	observations []*models.Observation
	stats        []*models.YearlyStat

	nextObsID  int64
	nextStatID int64

	obsBatchSizes  []int
	statBatchSizes []int

	failInsertObservations bool
	failInsertStats        bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stations:   make(map[string]*models.Station),
		nextObsID:  1,
		nextStatID: 1,
	}
}

var errInjected = errors.New("injected store failure")

func (f *fakeRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeRepo) UpsertStation(ctx context.Context, station *models.Station) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stations[station.StationID] = station
	return nil
}

func (f *fakeRepo) ListStations(ctx context.Context, limit, offset int) ([]*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stations := make([]*models.Station, 0, len(f.stations))
	for _, s := range f.stations {
		stations = append(stations, s)
	}
	return stations, nil
}

func (f *fakeRepo) InsertObservations(ctx context.Context, observations []*models.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertObservations {
		return &repository.StoreError{Op: "insert_observations", Err: errInjected}
	}
	f.obsBatchSizes = append(f.obsBatchSizes, len(observations))
	for _, obs := range observations {
		obs.ID = f.nextObsID
		f.nextObsID++
		f.observations = append(f.observations, obs)
	}
	return nil
}

func (f *fakeRepo) ListObservations(ctx context.Context) ([]*models.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Observation, len(f.observations))
	copy(out, f.observations)
	return out, nil
}

func (f *fakeRepo) DeleteObservations(ctx context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doomed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	var kept []*models.Observation
	var deleted int64
	for _, obs := range f.observations {
		if doomed[obs.ID] {
			deleted++
			continue
		}
		kept = append(kept, obs)
	}
	f.observations = kept
	return deleted, nil
}

func (f *fakeRepo) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.Observation, int, error) {
	obs, err := f.ListObservations(ctx)
	return obs, len(obs), err
}

func (f *fakeRepo) InsertYearlyStats(ctx context.Context, stats []*models.YearlyStat) error {
	if len(stats) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertStats {
		return &repository.StoreError{Op: "insert_stats", Err: errInjected}
	}
	f.statBatchSizes = append(f.statBatchSizes, len(stats))
	for _, stat := range stats {
		stat.ID = f.nextStatID
		f.nextStatID++
		f.stats = append(f.stats, stat)
	}
	return nil
}

func (f *fakeRepo) ListYearlyStats(ctx context.Context) ([]*models.YearlyStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.YearlyStat, len(f.stats))
	copy(out, f.stats)
	return out, nil
}

func (f *fakeRepo) DeleteYearlyStats(ctx context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doomed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	var kept []*models.YearlyStat
	var deleted int64
	for _, stat := range f.stats {
		if doomed[stat.ID] {
			deleted++
			continue
		}
		kept = append(kept, stat)
	}
	f.stats = kept
	return deleted, nil
}

func (f *fakeRepo) GetYearlyStats(ctx context.Context, filter repository.StatisticsFilter) ([]*models.YearlyStat, int, error) {
	stats, err := f.ListYearlyStats(ctx)
	return stats, len(stats), err
}

func (f *fakeRepo) HealthCheck(ctx context.Context) error { return nil }
