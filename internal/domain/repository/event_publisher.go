package repository

import (
	"context"

	"github.com/location-engine/internal/domain"
)

// EventPublisher - события для слоя представления
type EventPublisher interface {
	PublishZoneExited(ctx context.Context, event *domain.ZoneExitedEvent) error
	PublishTileUncovered(ctx context.Context, event *domain.TileUncoveredEvent) error
}
