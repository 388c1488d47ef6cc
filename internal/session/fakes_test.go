package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/pkg/codec"
	"github.com/location-engine/internal/session"
	"github.com/location-engine/internal/usecase"
)

type sharingProfiles struct {
	mu      sync.Mutex
	enabled map[uuid.UUID]bool
	err     error

	// gate, если задан, держит UpdateLocation до закрытия
	gate        chan struct{}
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (p *sharingProfiles) UpdateLocation(_ context.Context, _ uuid.UUID, _ domain.GeoPoint) error {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		cur := p.maxInFlight.Load()
		if n <= cur || p.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if p.gate != nil {
		<-p.gate
	}
	return nil
}

func (p *sharingProfiles) IsLocationSharingEnabled(_ context.Context, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[id], p.err
}

func (p *sharingProfiles) set(id uuid.UUID, enabled bool) {
	p.mu.Lock()
	p.enabled[id] = enabled
	p.mu.Unlock()
}

type noZones struct{}

func (noZones) FetchZones(context.Context, uuid.UUID) ([]domain.Zone, error) { return nil, nil }
func (noZones) InsertExit(context.Context, domain.ZoneExitEvent) error      { return nil }
func (noZones) HasExitToday(context.Context, uuid.UUID, uuid.UUID, time.Time) (bool, error) {
	return false, nil
}
func (noZones) UpsertDailyAggregate(context.Context, uuid.UUID, uuid.UUID, time.Time) error {
	return nil
}

// tileCounter считает опубликованные ячейки по профилям
type tileCounter struct {
	mu    sync.Mutex
	tiles map[uuid.UUID][]domain.TileKey
}

func (c *tileCounter) PublishZoneExited(context.Context, *domain.ZoneExitedEvent) error { return nil }

func (c *tileCounter) PublishTileUncovered(_ context.Context, e *domain.TileUncoveredEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiles[e.ProfileID] = append(c.tiles[e.ProfileID], e.Tile)
	return nil
}

func (c *tileCounter) count(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tiles[id])
}

func (c *tileCounter) keys(id uuid.UUID) []domain.TileKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.TileKey(nil), c.tiles[id]...)
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

var origin = domain.Coordinate{Latitude: 42.2808, Longitude: -83.7430}

type harness struct {
	profiles  *sharingProfiles
	publisher *tileCounter
	factory   session.EngineFactory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tileCodec, err := codec.NewTileSetCodec()
	require.NoError(t, err)
	t.Cleanup(tileCodec.Close)

	h := &harness{
		profiles:  &sharingProfiles{enabled: make(map[uuid.UUID]bool)},
		publisher: &tileCounter{tiles: make(map[uuid.UUID][]domain.TileKey)},
	}
	store := &memoryStore{data: make(map[string][]byte)}
	logger := zap.NewNop()

	h.factory = func(id uuid.UUID) *usecase.Engine {
		return usecase.NewEngine(id, usecase.EngineDeps{
			Throttle: usecase.NewUploadThrottle(time.Minute, 50),
			Tracker:  usecase.NewZoneBoundaryTracker(id),
			Recorder: usecase.NewExitEventRecorder(noZones{}, false, logger),
			Coverage: usecase.NewCoverageTracker(id, usecase.CoverageConfig{
				Origin:            origin,
				TileSizeMeters:    100,
				BoundRadiusMeters: 160934.4,
			}, store, tileCodec, nil, logger),
			Zones:       usecase.NewZoneProvider(noZones{}, nil, logger),
			ProfileRepo: h.profiles,
			Publisher:   h.publisher,
			Membership:  store,
			Logger:      logger,
		})
	}
	return h
}

// tilePoint - точка в центре ячейки (i, 0) относительно origin
func tilePoint(i int, ts time.Time) domain.GeoPoint {
	return domain.GeoPoint{
		Latitude:  origin.Latitude + float64(i)*100/111000.0,
		Longitude: origin.Longitude,
		Timestamp: ts,
	}
}
