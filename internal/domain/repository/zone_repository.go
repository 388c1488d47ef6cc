package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
)

// ZoneRepository - удалённое хранилище зон и выходов из зон
type ZoneRepository interface {
	// FetchZones возвращает зоны, отслеживаемые для профиля
	FetchZones(ctx context.Context, profileID uuid.UUID) ([]domain.Zone, error)

	// InsertExit сохраняет выход из зоны
	InsertExit(ctx context.Context, event domain.ZoneExitEvent) error

	// HasExitToday проверяет, есть ли уже выход за указанный день (UTC)
	HasExitToday(ctx context.Context, profileID, zoneID uuid.UUID, day time.Time) (bool, error)

	// UpsertDailyAggregate идемпотентно отмечает выход в дневном агрегате
	UpsertDailyAggregate(ctx context.Context, profileID, zoneID uuid.UUID, day time.Time) error
}
