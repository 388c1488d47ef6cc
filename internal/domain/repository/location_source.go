package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
)

// LocationSource - поток обновлений местоположения одной сессии.
// Точки приходят в порядке неубывания времени
type LocationSource interface {
	// RequestAuthorization проверяет разрешение на отслеживание
	RequestAuthorization(ctx context.Context) error

	// Start начинает выдачу точек
	Start(ctx context.Context) error

	// Stop останавливает источник и закрывает канал подписки
	Stop() error

	// Subscribe возвращает канал точек
	Subscribe() <-chan domain.GeoPoint
}

// LocationDispatcher доставляет точку в сессию профиля
type LocationDispatcher interface {
	Dispatch(ctx context.Context, profileID uuid.UUID, p domain.GeoPoint) error
}
