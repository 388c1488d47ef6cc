package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"github.com/location-engine/internal/pkg/codec"
	apperrors "github.com/location-engine/internal/pkg/errors"
	"github.com/location-engine/internal/usecase"
)

type engineFixture struct {
	profileID uuid.UUID
	profiles  *MockProfileRepository
	zones     repository.ZoneRepository
	publisher *MockEventPublisher
	kv        *memoryStore
	codec     *codec.TileSetCodec
	engine    *usecase.Engine
}

func newEngineFixture(t *testing.T, zoneRepo repository.ZoneRepository) *engineFixture {
	t.Helper()

	tileCodec, err := codec.NewTileSetCodec()
	require.NoError(t, err)
	t.Cleanup(tileCodec.Close)

	f := &engineFixture{
		profileID: uuid.New(),
		profiles:  &MockProfileRepository{},
		zones:     zoneRepo,
		publisher: &MockEventPublisher{},
		kv:        newMemoryStore(),
		codec:     tileCodec,
	}
	f.engine = f.build()
	return f
}

func (f *engineFixture) build() *usecase.Engine {
	logger := zap.NewNop()
	return usecase.NewEngine(f.profileID, usecase.EngineDeps{
		Throttle: usecase.NewUploadThrottle(60*time.Second, 50),
		Tracker:  usecase.NewZoneBoundaryTracker(f.profileID),
		Recorder: usecase.NewExitEventRecorder(f.zones, true, logger),
		Coverage: usecase.NewCoverageTracker(f.profileID, usecase.CoverageConfig{
			Origin:            domain.Coordinate{Latitude: 40.0, Longitude: -74.0},
			TileSizeMeters:    100,
			BoundRadiusMeters: boundRadius,
		}, f.kv, f.codec, nil, logger),
		Zones:       usecase.NewZoneProvider(f.zones, nil, logger),
		ProfileRepo: f.profiles,
		Publisher:   f.publisher,
		Membership:  f.kv,
		Logger:      logger,
	})
}

func TestEngine_HomeScenario(t *testing.T) {
	ctx := context.Background()
	zone := homeZone()
	repo := newMemoryZoneRepository(zone)
	f := newEngineFixture(t, repo)

	f.profiles.On("UpdateLocation", ctx, f.profileID, mock.Anything).Return(nil)
	f.publisher.On("PublishTileUncovered", ctx, mock.Anything).Return(nil)
	f.publisher.On("PublishZoneExited", ctx, mock.MatchedBy(func(e *domain.ZoneExitedEvent) bool {
		return e.ZoneID == zone.ID && e.ZoneName == "Home" && e.ProfileID == f.profileID
	})).Return(nil).Once()

	t0 := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	a := domain.GeoPoint{Latitude: 40.0, Longitude: -74.0, Timestamp: t0}
	b := domain.GeoPoint{Latitude: 40.002, Longitude: -74.0, Timestamp: t0.Add(time.Minute)}
	c := domain.GeoPoint{Latitude: 40.002, Longitude: -74.0, Timestamp: t0.Add(2 * time.Minute)}

	f.engine.Process(ctx, a)
	assert.Empty(t, repo.exits)

	f.engine.Process(ctx, b)
	require.Len(t, repo.exits, 1)
	assert.True(t, repo.exits[0].ExitTime.Equal(b.Timestamp))

	f.engine.Process(ctx, c)
	assert.Len(t, repo.exits, 1)

	f.publisher.AssertNumberOfCalls(t, "PublishZoneExited", 1)
	// A и B в разных ячейках, C совпадает с B
	f.publisher.AssertNumberOfCalls(t, "PublishTileUncovered", 2)
	// A - первая точка, B далеко, C через минуту от B и на том же месте
	f.profiles.AssertNumberOfCalls(t, "UpdateLocation", 3)
	assert.Equal(t, 2, f.engine.Coverage().Stats().VisitedTileCount)
}

func TestEngine_UploadThrottled(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, newMemoryZoneRepository())
	f.publisher.On("PublishTileUncovered", ctx, mock.Anything).Return(nil)

	t0 := time.Now().UTC()
	origin := domain.Coordinate{Latitude: 40.0, Longitude: -74.0}
	first := pointAt(origin, t0)
	second := pointAt(metersNorth(origin, 10), t0.Add(5*time.Second))
	third := pointAt(metersNorth(origin, 20), t0.Add(10*time.Second))

	f.profiles.On("UpdateLocation", ctx, f.profileID, first).Return(errors.New("backend unavailable")).Once()
	f.profiles.On("UpdateLocation", ctx, f.profileID, second).Return(nil).Once()

	f.engine.Process(ctx, first)
	// выгрузка не удалась, поэтому следующая точка повторяет попытку
	f.engine.Process(ctx, second)
	f.engine.Process(ctx, third)

	f.profiles.AssertExpectations(t)
	f.profiles.AssertNumberOfCalls(t, "UpdateLocation", 2)
}

func TestEngine_DuplicateExitNotPublished(t *testing.T) {
	ctx := context.Background()
	zone := homeZone()
	repo := &MockZoneRepository{}
	f := newEngineFixture(t, repo)

	repo.On("FetchZones", ctx, f.profileID).Return([]domain.Zone{zone}, nil)
	repo.On("HasExitToday", ctx, f.profileID, zone.ID, mock.Anything).Return(true, nil)
	f.profiles.On("UpdateLocation", ctx, f.profileID, mock.Anything).Return(nil)
	f.publisher.On("PublishTileUncovered", ctx, mock.Anything).Return(nil)

	t0 := time.Now().UTC()
	f.engine.Process(ctx, pointAt(zone.Center, t0))
	f.engine.Process(ctx, pointAt(metersNorth(zone.Center, 300), t0.Add(time.Minute)))

	repo.AssertNotCalled(t, "InsertExit", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "PublishZoneExited", mock.Anything, mock.Anything)
}

func TestEngine_StepFailuresDoNotStopPipeline(t *testing.T) {
	ctx := context.Background()
	zone := homeZone()
	repo := &MockZoneRepository{}
	f := newEngineFixture(t, repo)

	repo.On("FetchZones", ctx, f.profileID).Return([]domain.Zone{zone}, nil).Once()
	repo.On("FetchZones", ctx, f.profileID).Return(nil, errors.New("pg down"))
	repo.On("HasExitToday", ctx, f.profileID, zone.ID, mock.Anything).Return(false, errors.New("pg down"))
	f.profiles.On("UpdateLocation", ctx, f.profileID, mock.Anything).Return(nil)
	f.publisher.On("PublishTileUncovered", ctx, mock.Anything).Return(errors.New("redis down"))

	t0 := time.Now().UTC()
	f.engine.Process(ctx, pointAt(zone.Center, t0))
	// зоны недоступны: используется последний известный набор, выход обнаружен
	f.engine.Process(ctx, pointAt(metersNorth(zone.Center, 300), t0.Add(time.Minute)))

	repo.AssertCalled(t, "HasExitToday", ctx, f.profileID, zone.ID, mock.Anything)
	f.publisher.AssertNotCalled(t, "PublishZoneExited", mock.Anything, mock.Anything)
	// покрытие продолжает работать несмотря на ошибки публикации
	assert.Equal(t, 2, f.engine.Coverage().Stats().VisitedTileCount)
}

func TestEngine_RestoresMembership(t *testing.T) {
	ctx := context.Background()
	zone := homeZone()
	repo := newMemoryZoneRepository(zone)
	f := newEngineFixture(t, repo)

	f.profiles.On("UpdateLocation", ctx, f.profileID, mock.Anything).Return(nil)
	f.publisher.On("PublishTileUncovered", ctx, mock.Anything).Return(nil)
	f.publisher.On("PublishZoneExited", ctx, mock.Anything).Return(nil)

	t0 := time.Now().UTC()
	f.engine.Process(ctx, pointAt(zone.Center, t0))

	// новая сессия того же профиля: состояние поднимается из хранилища
	restarted := f.build()
	require.NoError(t, restarted.Restore(ctx))
	assert.Equal(t, 1, restarted.Coverage().Stats().VisitedTileCount)

	restarted.Process(ctx, pointAt(metersNorth(zone.Center, 300), t0.Add(time.Minute)))

	assert.Len(t, repo.exits, 1)
	f.publisher.AssertNumberOfCalls(t, "PublishZoneExited", 1)
}

func TestEngine_RestoreFailureKeepsStoredCoverage(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, newMemoryZoneRepository())

	f.profiles.On("UpdateLocation", ctx, f.profileID, mock.Anything).Return(nil)
	f.publisher.On("PublishTileUncovered", ctx, mock.Anything).Return(nil)

	center := domain.Coordinate{Latitude: 40.0, Longitude: -74.0}
	t0 := time.Now().UTC()
	for i, m := range []float64{0, 150, 300} {
		f.engine.Process(ctx, pointAt(metersNorth(center, m), t0.Add(time.Duration(i)*time.Minute)))
	}
	require.Equal(t, 3, f.engine.Coverage().Stats().VisitedTileCount)

	// первое чтение после перезапуска падает, следующее проходит
	f.kv.failLoads(1, errors.New("redis: i/o timeout"))
	restarted := f.build()
	err := restarted.Restore(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore coverage")

	restarted.Process(ctx, pointAt(metersNorth(center, 600), t0.Add(time.Hour)))
	assert.Equal(t, 4, restarted.Coverage().Stats().VisitedTileCount)

	again := f.build()
	require.NoError(t, again.Restore(ctx))
	assert.Equal(t, 4, again.Coverage().Stats().VisitedTileCount)
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("processes points until the source closes", func(t *testing.T) {
		f := newEngineFixture(t, newMemoryZoneRepository())
		f.profiles.On("UpdateLocation", ctx, f.profileID, mock.Anything).Return(nil)
		f.publisher.On("PublishTileUncovered", ctx, mock.Anything).Return(nil)

		origin := domain.Coordinate{Latitude: 40.0, Longitude: -74.0}
		t0 := time.Now().UTC()
		source := newFakeSource(
			pointAt(origin, t0),
			pointAt(metersNorth(origin, 250), t0.Add(time.Minute)),
			pointAt(metersNorth(origin, 500), t0.Add(2*time.Minute)),
		)

		err := f.engine.Run(ctx, source)

		assert.NoError(t, err)
		assert.True(t, source.started)
		assert.True(t, source.stopped)
		assert.Equal(t, 3, f.engine.Coverage().Stats().VisitedTileCount)
	})

	t.Run("authorization denial stops before start", func(t *testing.T) {
		f := newEngineFixture(t, newMemoryZoneRepository())
		source := newFakeSource()
		source.authErr = apperrors.ErrLocationUnauthorized

		err := f.engine.Run(ctx, source)

		assert.ErrorIs(t, err, apperrors.ErrLocationUnauthorized)
		assert.False(t, source.started)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newEngineFixture(t, newMemoryZoneRepository())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		source := &fakeSource{points: make(chan domain.GeoPoint)}

		err := f.engine.Run(cctx, source)

		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, source.stopped)
	})
}
