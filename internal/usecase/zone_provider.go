package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"go.uber.org/zap"
)

// ZoneProvider отдаёт текущий набор зон профиля: сначала из локального кеша,
// затем из хранилища. Некорректные зоны отбрасываются
type ZoneProvider struct {
	zoneRepo repository.ZoneRepository
	cache    repository.ZoneCache
	logger   *zap.Logger
}

// NewZoneProvider - cache может быть nil, тогда зоны читаются на каждую точку
func NewZoneProvider(zoneRepo repository.ZoneRepository, cache repository.ZoneCache, logger *zap.Logger) *ZoneProvider {
	return &ZoneProvider{
		zoneRepo: zoneRepo,
		cache:    cache,
		logger:   logger,
	}
}

func (p *ZoneProvider) Zones(ctx context.Context, profileID uuid.UUID) ([]domain.Zone, error) {
	if p.cache != nil {
		if zones, ok := p.cache.Get(profileID); ok {
			return zones, nil
		}
	}

	fetched, err := p.zoneRepo.FetchZones(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("fetch zones: %w", err)
	}

	zones := make([]domain.Zone, 0, len(fetched))
	for _, zone := range fetched {
		if err := zone.Validate(); err != nil {
			p.logger.Warn("Skipping invalid zone",
				zap.String("profile_id", profileID.String()),
				zap.Error(err))
			continue
		}
		zones = append(zones, zone)
	}

	if p.cache != nil {
		p.cache.Set(profileID, zones)
	}

	return zones, nil
}
