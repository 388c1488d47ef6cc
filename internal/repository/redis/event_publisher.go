package redis

import (
	"context"

	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
)

// eventPublisher отправляет события движка в Redis Streams для слоя представления
type eventPublisher struct {
	streams repository.StreamRepository
}

func NewEventPublisher(streams repository.StreamRepository) repository.EventPublisher {
	return &eventPublisher{streams: streams}
}

func (p *eventPublisher) PublishZoneExited(ctx context.Context, event *domain.ZoneExitedEvent) error {
	return p.streams.PublishToStream(ctx, domain.StreamZoneExited, event)
}

func (p *eventPublisher) PublishTileUncovered(ctx context.Context, event *domain.TileUncoveredEvent) error {
	return p.streams.PublishToStream(ctx, domain.StreamTileUncovered, event)
}
