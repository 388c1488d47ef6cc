package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"github.com/location-engine/internal/pkg/codec"
	"github.com/location-engine/internal/pkg/metrics"
	"go.uber.org/zap"
)

// MembershipStorageKey - ключ снимка членства в зонах
func MembershipStorageKey(profileID uuid.UUID) string {
	return "zones:membership:" + profileID.String()
}

// EngineDeps - зависимости движка одного профиля
type EngineDeps struct {
	Throttle    *UploadThrottle
	Tracker     *ZoneBoundaryTracker
	Recorder    *ExitEventRecorder
	Coverage    *CoverageTracker
	Zones       *ZoneProvider
	ProfileRepo repository.ProfileRepository
	Publisher   repository.EventPublisher
	// Membership - хранилище снимка членства, nil отключает сохранение
	Membership repository.KeyValueStore
	Metrics    metrics.EngineMetrics
	Logger     *zap.Logger
}

// Engine обрабатывает точки одного профиля строго по одной, в порядке поступления.
// Ошибка любого шага логируется, конвейер продолжает работу со следующей точкой
type Engine struct {
	profileID uuid.UUID

	throttle    *UploadThrottle
	tracker     *ZoneBoundaryTracker
	recorder    *ExitEventRecorder
	coverage    *CoverageTracker
	zones       *ZoneProvider
	profileRepo repository.ProfileRepository
	publisher   repository.EventPublisher
	membership  repository.KeyValueStore
	metrics     metrics.EngineMetrics
	logger      *zap.Logger

	// последний успешно полученный набор зон
	lastZones []domain.Zone
}

func NewEngine(profileID uuid.UUID, deps EngineDeps) *Engine {
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		profileID:   profileID,
		throttle:    deps.Throttle,
		tracker:     deps.Tracker,
		recorder:    deps.Recorder,
		coverage:    deps.Coverage,
		zones:       deps.Zones,
		profileRepo: deps.ProfileRepo,
		publisher:   deps.Publisher,
		membership:  deps.Membership,
		metrics:     m,
		logger:      logger.With(zap.String("profile_id", profileID.String())),
	}
}

func (e *Engine) ProfileID() uuid.UUID {
	return e.profileID
}

func (e *Engine) Coverage() *CoverageTracker {
	return e.coverage
}

// Restore поднимает сохранённое состояние: набор ячеек и членство в зонах.
// Ошибки не фатальны: членство стартует пустым, а покрытие догрузится
// перед первой новой ячейкой. Возвращает все ошибки восстановления
func (e *Engine) Restore(ctx context.Context) error {
	var errs []error

	if err := e.coverage.Load(ctx); err != nil {
		errs = append(errs, fmt.Errorf("restore coverage: %w", err))
	}

	if e.membership != nil {
		data, err := e.membership.Load(ctx, MembershipStorageKey(e.profileID))
		if err == nil && data != nil {
			var state domain.MembershipState
			state, err = codec.DecodeMembership(data)
			if err == nil {
				e.tracker.Restore(state)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore zone membership: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Run запрашивает разрешение у источника и обрабатывает точки до закрытия канала
// или отмены контекста
func (e *Engine) Run(ctx context.Context, source repository.LocationSource) error {
	if err := source.RequestAuthorization(ctx); err != nil {
		return fmt.Errorf("request authorization: %w", err)
	}
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("start location source: %w", err)
	}
	defer func() {
		if err := source.Stop(); err != nil {
			e.logger.Warn("Failed to stop location source", zap.Error(err))
		}
	}()

	points := source.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-points:
			if !ok {
				return nil
			}
			e.Process(ctx, p)
		}
	}
}

// Process выполняет три шага для одной точки: выгрузка, зоны, покрытие
func (e *Engine) Process(ctx context.Context, p domain.GeoPoint) {
	e.metrics.IncPointsProcessed()

	e.upload(ctx, p)
	e.evaluateZones(ctx, p)
	e.ingestCoverage(ctx, p)
}

func (e *Engine) upload(ctx context.Context, p domain.GeoPoint) {
	if !e.throttle.ShouldUpload(p) {
		e.metrics.IncUploads("skipped")
		return
	}

	if err := e.profileRepo.UpdateLocation(ctx, e.profileID, p); err != nil {
		e.metrics.IncUploads("error")
		e.metrics.IncStepErrors(metrics.StepUpload)
		e.logger.Error("Failed to upload location", zap.Error(err))
		return
	}

	e.throttle.RecordUploaded(p)
	e.metrics.IncUploads("uploaded")
}

func (e *Engine) evaluateZones(ctx context.Context, p domain.GeoPoint) {
	zones, err := e.zones.Zones(ctx, e.profileID)
	if err != nil {
		e.metrics.IncStepErrors(metrics.StepZones)
		if e.lastZones == nil {
			e.logger.Error("Failed to fetch zones, skipping zone evaluation", zap.Error(err))
			return
		}
		e.logger.Warn("Failed to fetch zones, using last known set",
			zap.Int("zones", len(e.lastZones)),
			zap.Error(err))
		zones = e.lastZones
	} else {
		e.lastZones = zones
	}

	exits := e.tracker.Evaluate(p, zones)

	if e.tracker.Changed() {
		e.saveMembership(ctx)
	}

	if len(exits) == 0 {
		return
	}

	names := make(map[uuid.UUID]string, len(zones))
	for _, zone := range zones {
		names[zone.ID] = zone.Name
	}

	for _, exit := range exits {
		outcome, err := e.recorder.Record(ctx, exit)
		if err != nil {
			e.metrics.IncStepErrors(metrics.StepExit)
			e.logger.Error("Failed to record zone exit",
				zap.String("zone_id", exit.ZoneID.String()),
				zap.Time("exit_time", exit.ExitTime),
				zap.Error(err))
		}
		if outcome == 0 {
			continue
		}

		e.metrics.IncExits(outcome.String())
		e.logger.Info("Zone exit",
			zap.String("zone_id", exit.ZoneID.String()),
			zap.String("outcome", outcome.String()))

		if outcome != domain.Recorded {
			continue
		}

		event := &domain.ZoneExitedEvent{
			ProfileID: exit.ProfileID,
			ZoneID:    exit.ZoneID,
			ZoneName:  names[exit.ZoneID],
			ExitTime:  exit.ExitTime,
		}
		if err := e.publisher.PublishZoneExited(ctx, event); err != nil {
			e.metrics.IncStepErrors(metrics.StepPublish)
			e.logger.Error("Failed to publish zone exit", zap.Error(err))
		}
	}
}

func (e *Engine) saveMembership(ctx context.Context) {
	if e.membership == nil {
		return
	}

	data, err := codec.EncodeMembership(e.tracker.Snapshot())
	if err != nil {
		e.logger.Error("Failed to encode zone membership", zap.Error(err))
		return
	}

	start := time.Now()
	err = e.membership.Save(ctx, MembershipStorageKey(e.profileID), data)
	e.metrics.ObservePersistenceDuration("membership", time.Since(start))
	if err != nil {
		e.metrics.IncStepErrors(metrics.StepZones)
		e.logger.Warn("Failed to save zone membership", zap.Error(err))
	}
}

func (e *Engine) ingestCoverage(ctx context.Context, p domain.GeoPoint) {
	tile, err := e.coverage.Ingest(ctx, p)
	if err != nil {
		e.metrics.IncStepErrors(metrics.StepCoverage)
		e.logger.Error("Failed to persist coverage", zap.Error(err))
		return
	}
	if tile == nil {
		return
	}

	e.metrics.IncTilesUncovered()

	event := &domain.TileUncoveredEvent{
		ProfileID:  e.profileID,
		Tile:       tile.Key,
		Center:     tile.Center,
		FirstVisit: tile.FirstVisit,
		Stats:      e.coverage.Stats(),
	}
	if err := e.publisher.PublishTileUncovered(ctx, event); err != nil {
		e.metrics.IncStepErrors(metrics.StepPublish)
		e.logger.Error("Failed to publish uncovered tile", zap.Error(err))
	}
}
