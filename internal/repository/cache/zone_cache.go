package cache

import (
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"go.uber.org/zap"
)

// zoneCache - локальный кеш зон в памяти процесса, чтобы не ходить в Postgres на каждую точку
type zoneCache struct {
	cache  *freecache.Cache
	ttl    int
	logger *zap.Logger
}

// NewZoneCache создаёт кеш на sizeMB мегабайт. При нулевом размере или TTL кеш выключен
func NewZoneCache(sizeMB int, ttl time.Duration, logger *zap.Logger) repository.ZoneCache {
	if sizeMB <= 0 || ttl <= 0 {
		logger.Info("Zone cache disabled")
		return noopZoneCache{}
	}

	logger.Info("Zone cache initialized",
		zap.Int("size_mb", sizeMB),
		zap.Duration("ttl", ttl))

	return newZoneCache(freecache.NewCache(sizeMB*1024*1024), ttl, logger)
}

func newZoneCache(c *freecache.Cache, ttl time.Duration, logger *zap.Logger) *zoneCache {
	return &zoneCache{
		cache:  c,
		ttl:    max(int(ttl.Seconds()), 1),
		logger: logger,
	}
}

func (c *zoneCache) Get(profileID uuid.UUID) ([]domain.Zone, bool) {
	val, err := c.cache.Get(profileID[:])
	if err != nil {
		return nil, false
	}

	var zones []domain.Zone
	if err := json.Unmarshal(val, &zones); err != nil {
		c.logger.Warn("Corrupted zone cache entry", zap.String("profile_id", profileID.String()), zap.Error(err))
		c.cache.Del(profileID[:])
		return nil, false
	}
	return zones, true
}

func (c *zoneCache) Set(profileID uuid.UUID, zones []domain.Zone) {
	if zones == nil {
		zones = []domain.Zone{}
	}
	val, err := json.Marshal(zones)
	if err != nil {
		c.logger.Warn("Failed to encode zones for cache", zap.Error(err))
		return
	}
	if err := c.cache.Set(profileID[:], val, c.ttl); err != nil {
		c.logger.Warn("Failed to cache zones", zap.String("profile_id", profileID.String()), zap.Error(err))
	}
}

type noopZoneCache struct{}

func (noopZoneCache) Get(_ uuid.UUID) ([]domain.Zone, bool) { return nil, false }
func (noopZoneCache) Set(_ uuid.UUID, _ []domain.Zone)      {}
