package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/location-engine/internal/domain"
)

// MockProfileRepository is a mock of ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) UpdateLocation(ctx context.Context, profileID uuid.UUID, point domain.GeoPoint) error {
	args := m.Called(ctx, profileID, point)
	return args.Error(0)
}

func (m *MockProfileRepository) IsLocationSharingEnabled(ctx context.Context, profileID uuid.UUID) (bool, error) {
	args := m.Called(ctx, profileID)
	return args.Bool(0), args.Error(1)
}

// MockZoneRepository is a mock of ZoneRepository
type MockZoneRepository struct {
	mock.Mock
}

func (m *MockZoneRepository) FetchZones(ctx context.Context, profileID uuid.UUID) ([]domain.Zone, error) {
	args := m.Called(ctx, profileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Zone), args.Error(1)
}

func (m *MockZoneRepository) InsertExit(ctx context.Context, event domain.ZoneExitEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockZoneRepository) HasExitToday(ctx context.Context, profileID, zoneID uuid.UUID, day time.Time) (bool, error) {
	args := m.Called(ctx, profileID, zoneID, day)
	return args.Bool(0), args.Error(1)
}

func (m *MockZoneRepository) UpsertDailyAggregate(ctx context.Context, profileID, zoneID uuid.UUID, day time.Time) error {
	args := m.Called(ctx, profileID, zoneID, day)
	return args.Error(0)
}

// MockEventPublisher is a mock of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishZoneExited(ctx context.Context, event *domain.ZoneExitedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishTileUncovered(ctx context.Context, event *domain.TileUncoveredEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// memoryStore - KeyValueStore в памяти с управляемыми ошибками чтения и записи
type memoryStore struct {
	mu           sync.Mutex
	data         map[string][]byte
	saveErr      error
	saves        int
	loadErr      error
	loadFailures int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadFailures > 0 {
		s.loadFailures--
		return nil, s.loadErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *memoryStore) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryStore) failSaves(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

// failLoads - следующие n вызовов Load вернут err
func (s *memoryStore) failLoads(n int, err error) {
	s.mu.Lock()
	s.loadFailures = n
	s.loadErr = err
	s.mu.Unlock()
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// memoryZoneRepository хранит выходы в памяти и проверяет день так же, как SQL-запрос
type memoryZoneRepository struct {
	zones      []domain.Zone
	exits      []domain.ZoneExitEvent
	aggregates map[string]int
}

func newMemoryZoneRepository(zones ...domain.Zone) *memoryZoneRepository {
	return &memoryZoneRepository{zones: zones, aggregates: make(map[string]int)}
}

func (r *memoryZoneRepository) FetchZones(_ context.Context, _ uuid.UUID) ([]domain.Zone, error) {
	return r.zones, nil
}

func (r *memoryZoneRepository) InsertExit(_ context.Context, event domain.ZoneExitEvent) error {
	r.exits = append(r.exits, event)
	return nil
}

func (r *memoryZoneRepository) HasExitToday(_ context.Context, profileID, zoneID uuid.UUID, day time.Time) (bool, error) {
	for _, e := range r.exits {
		if e.ProfileID == profileID && e.ZoneID == zoneID && e.ExitDay().Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryZoneRepository) UpsertDailyAggregate(_ context.Context, profileID, zoneID uuid.UUID, day time.Time) error {
	r.aggregates[profileID.String()+zoneID.String()+day.Format("2006-01-02")]++
	return nil
}

// fakeSource - LocationSource поверх канала
type fakeSource struct {
	authErr error
	points  chan domain.GeoPoint
	started bool
	stopped bool
}

func newFakeSource(points ...domain.GeoPoint) *fakeSource {
	ch := make(chan domain.GeoPoint, len(points))
	for _, p := range points {
		ch <- p
	}
	close(ch)
	return &fakeSource{points: ch}
}

func (s *fakeSource) RequestAuthorization(_ context.Context) error { return s.authErr }
func (s *fakeSource) Start(_ context.Context) error                { s.started = true; return nil }
func (s *fakeSource) Stop() error                                  { s.stopped = true; return nil }
func (s *fakeSource) Subscribe() <-chan domain.GeoPoint            { return s.points }

// metersNorth смещает точку на север по меридиану. Для haversine это точное расстояние
func metersNorth(c domain.Coordinate, meters float64) domain.Coordinate {
	const metersPerDegreeOfArc = 6371000.0 * 3.141592653589793 / 180
	return domain.Coordinate{Latitude: c.Latitude + meters/metersPerDegreeOfArc, Longitude: c.Longitude}
}

func pointAt(c domain.Coordinate, ts time.Time) domain.GeoPoint {
	return domain.GeoPoint{Latitude: c.Latitude, Longitude: c.Longitude, Timestamp: ts}
}
