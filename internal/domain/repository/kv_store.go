package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
)

// KeyValueStore - долговременное хранилище ключ-значение (Redis или файлы)
type KeyValueStore interface {
	// Load возвращает значение по ключу. Отсутствующий ключ - (nil, nil)
	Load(ctx context.Context, key string) ([]byte, error)

	// Save сохраняет значение без срока жизни
	Save(ctx context.Context, key string, value []byte) error
}

// ZoneCache - локальный кеш списка зон профиля
type ZoneCache interface {
	Get(profileID uuid.UUID) ([]domain.Zone, bool)
	Set(profileID uuid.UUID, zones []domain.Zone)
}
