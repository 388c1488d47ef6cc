package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
)

// ProfileRepository - удалённое хранилище профилей
type ProfileRepository interface {
	// UpdateLocation сохраняет последнее известное местоположение профиля
	UpdateLocation(ctx context.Context, profileID uuid.UUID, point domain.GeoPoint) error

	// IsLocationSharingEnabled - разрешил ли пользователь отслеживание местоположения
	IsLocationSharingEnabled(ctx context.Context, profileID uuid.UUID) (bool, error)
}
