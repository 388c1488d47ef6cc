package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
)

// LiveCoverage - активные сессии, у которых можно взять трекер без чтения хранилища
type LiveCoverage interface {
	Coverage(profileID uuid.UUID) (*CoverageTracker, bool)
}

// CoverageTrackerFactory создаёт трекер профиля поверх KV-хранилища
type CoverageTrackerFactory func(profileID uuid.UUID) *CoverageTracker

// CoverageQueryUseCase - чтение статистики и ячеек для слоя представления
type CoverageQueryUseCase struct {
	live       LiveCoverage
	newTracker CoverageTrackerFactory
}

func NewCoverageQueryUseCase(live LiveCoverage, newTracker CoverageTrackerFactory) *CoverageQueryUseCase {
	return &CoverageQueryUseCase{
		live:       live,
		newTracker: newTracker,
	}
}

func (uc *CoverageQueryUseCase) Stats(ctx context.Context, profileID uuid.UUID) (domain.CoverageStats, error) {
	tracker, err := uc.tracker(ctx, profileID)
	if err != nil {
		return domain.CoverageStats{}, err
	}
	return tracker.Stats(), nil
}

func (uc *CoverageQueryUseCase) Tiles(ctx context.Context, profileID uuid.UUID) ([]domain.VisitedTile, error) {
	tracker, err := uc.tracker(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return tracker.Tiles(), nil
}

func (uc *CoverageQueryUseCase) tracker(ctx context.Context, profileID uuid.UUID) (*CoverageTracker, error) {
	if uc.live != nil {
		if tracker, ok := uc.live.Coverage(profileID); ok {
			if err := tracker.EnsureLoaded(ctx); err != nil {
				return nil, err
			}
			return tracker, nil
		}
	}

	tracker := uc.newTracker(profileID)
	if err := tracker.Load(ctx); err != nil {
		return nil, err
	}
	return tracker, nil
}
