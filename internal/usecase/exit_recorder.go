package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"go.uber.org/zap"
)

// ExitEventRecorder сохраняет выходы из зон не чаще одного раза на (профиль, зона, день UTC)
type ExitEventRecorder struct {
	zoneRepo       repository.ZoneRepository
	dailyAggregate bool
	logger         *zap.Logger
}

func NewExitEventRecorder(zoneRepo repository.ZoneRepository, dailyAggregate bool, logger *zap.Logger) *ExitEventRecorder {
	return &ExitEventRecorder{
		zoneRepo:       zoneRepo,
		dailyAggregate: dailyAggregate,
		logger:         logger,
	}
}

// Record записывает выход. Если за этот день выход уже есть - AlreadyRecordedToday без записи.
// Ошибка обновления дневного агрегата возвращается вместе с Recorded: сама запись уже сделана
func (r *ExitEventRecorder) Record(ctx context.Context, event domain.ZoneExitEvent) (domain.RecordOutcome, error) {
	day := event.ExitDay()

	exists, err := r.zoneRepo.HasExitToday(ctx, event.ProfileID, event.ZoneID, day)
	if err != nil {
		return 0, fmt.Errorf("check exit for today: %w", err)
	}
	if exists {
		return domain.AlreadyRecordedToday, nil
	}

	if err := r.zoneRepo.InsertExit(ctx, event); err != nil {
		// Параллельная запись успела раньше - уникальный индекс по дню
		if errors.Is(err, repository.ErrAlreadyExists) {
			r.logger.Debug("Exit recorded concurrently",
				zap.String("profile_id", event.ProfileID.String()),
				zap.String("zone_id", event.ZoneID.String()))
			return domain.AlreadyRecordedToday, nil
		}
		return 0, fmt.Errorf("insert exit: %w", err)
	}

	if r.dailyAggregate {
		if err := r.zoneRepo.UpsertDailyAggregate(ctx, event.ProfileID, event.ZoneID, day); err != nil {
			return domain.Recorded, fmt.Errorf("upsert daily aggregate: %w", err)
		}
	}

	return domain.Recorded, nil
}
