package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"github.com/location-engine/internal/pkg/metrics"
	"github.com/location-engine/internal/pkg/utils"
	"go.uber.org/zap"
)

// metersPerDegree - плоское приближение, ошибка на масштабе 100 м приемлема
const metersPerDegree = 111000.0

// CoverageConfig - параметры сетки тумана войны
type CoverageConfig struct {
	Origin            domain.Coordinate
	TileSizeMeters    float64
	BoundRadiusMeters float64
}

// TileSetCodec сериализует набор посещённых ячеек
type TileSetCodec interface {
	Encode(tiles map[domain.TileKey]domain.VisitedTile) ([]byte, error)
	Decode(data []byte) (map[domain.TileKey]domain.VisitedTile, error)
}

// CoverageTracker ведёт растущий набор посещённых ячеек профиля и сохраняет его
// целиком после каждой новой ячейки.
//
// Набор разделяется между конвейером (писатель) и API чтения статистики.
// Писатель держит эксклюзивную блокировку на вставку и сохранение,
// читатели друг друга не блокируют. Пока набор не поднят из хранилища,
// сохранение запрещено: оно перезаписало бы накопленные ячейки.
type CoverageTracker struct {
	cfg               CoverageConfig
	latDegreesPerTile float64
	lonDegreesPerTile float64
	totalTiles        int
	storageKey        string

	store   repository.KeyValueStore
	codec   TileSetCodec
	metrics metrics.EngineMetrics
	logger  *zap.Logger

	mu      sync.RWMutex
	visited map[domain.TileKey]domain.VisitedTile
	loaded  bool
}

func NewCoverageTracker(
	profileID uuid.UUID,
	cfg CoverageConfig,
	store repository.KeyValueStore,
	codec TileSetCodec,
	m metrics.EngineMetrics,
	logger *zap.Logger,
) *CoverageTracker {
	if m == nil {
		m = metrics.Noop{}
	}
	originLatRad := cfg.Origin.Latitude * math.Pi / 180

	return &CoverageTracker{
		cfg:               cfg,
		latDegreesPerTile: cfg.TileSizeMeters / metersPerDegree,
		lonDegreesPerTile: cfg.TileSizeMeters / (metersPerDegree * math.Cos(originLatRad)),
		totalTiles:        TotalTilesInBound(cfg.BoundRadiusMeters, cfg.TileSizeMeters),
		storageKey:        CoverageStorageKey(profileID, cfg.Origin),
		store:             store,
		codec:             codec,
		metrics:           m,
		logger:            logger,
		visited:           make(map[domain.TileKey]domain.VisitedTile),
	}
}

// CoverageStorageKey - ключ набора ячеек в KV-хранилище: профиль + начало сетки
func CoverageStorageKey(profileID uuid.UUID, origin domain.Coordinate) string {
	return fmt.Sprintf("fog:%s:%.4f:%.4f", profileID, origin.Latitude, origin.Longitude)
}

// TotalTilesInBound - сколько ячеек помещается в круг радиуса bound
func TotalTilesInBound(boundRadiusMeters, tileSizeMeters float64) int {
	if boundRadiusMeters <= 0 || tileSizeMeters <= 0 {
		return 0
	}
	area := math.Pi * boundRadiusMeters * boundRadiusMeters
	return int(math.Ceil(area / (tileSizeMeters * tileSizeMeters)))
}

// TileKey считает ячейку по смещению от начала сетки. Долготный масштаб
// зафиксирован по широте начала, поэтому сетка одинакова во всей области
func (c *CoverageTracker) TileKey(p domain.GeoPoint) domain.TileKey {
	return domain.TileKey{
		X: int(math.Round((p.Latitude - c.cfg.Origin.Latitude) / c.latDegreesPerTile)),
		Y: int(math.Round((p.Longitude - c.cfg.Origin.Longitude) / c.lonDegreesPerTile)),
	}
}

// InBound - точка не дальше радиуса исследования от начала сетки
func (c *CoverageTracker) InBound(p domain.GeoPoint) bool {
	return utils.Distance(p.Coordinate(), c.cfg.Origin) <= c.cfg.BoundRadiusMeters
}

// Ingest отмечает ячейку точки. Возвращает ячейку, только если она открыта впервые.
// Точка вне радиуса игнорируется без ошибки. Если сохранить набор не удалось,
// вставка откатывается и ячейка будет открыта следующей точкой.
// Если набор ещё не загружен, сначала повторяется Load; при ошибке точка
// не учитывается и хранилище не трогается
func (c *CoverageTracker) Ingest(ctx context.Context, p domain.GeoPoint) (*domain.VisitedTile, error) {
	if !c.InBound(p) {
		return nil, nil
	}

	key := c.TileKey(p)

	c.mu.RLock()
	_, known := c.visited[key]
	c.mu.RUnlock()
	if known {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.loadLocked(ctx); err != nil {
			return nil, err
		}
	}

	if _, known := c.visited[key]; known {
		return nil, nil
	}

	tile := domain.VisitedTile{
		Key:        key,
		Center:     p.Coordinate(),
		FirstVisit: p.Timestamp,
	}
	c.visited[key] = tile

	if err := c.persistLocked(ctx); err != nil {
		delete(c.visited, key)
		return nil, err
	}

	return &tile, nil
}

func (c *CoverageTracker) persistLocked(ctx context.Context) error {
	data, err := c.codec.Encode(c.visited)
	if err != nil {
		return fmt.Errorf("encode tiles: %w", err)
	}

	start := time.Now()
	err = c.store.Save(ctx, c.storageKey, data)
	c.metrics.ObservePersistenceDuration("coverage", time.Since(start))
	if err != nil {
		return fmt.Errorf("save tiles: %w", err)
	}
	return nil
}

// Load заменяет набор ячеек сохранённым. Отсутствие данных - пустой набор
func (c *CoverageTracker) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

// EnsureLoaded загружает набор, только если он ещё не был поднят
func (c *CoverageTracker) EnsureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	return c.loadLocked(ctx)
}

// Loaded - набор поднят из хранилища и его можно сохранять
func (c *CoverageTracker) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// loadLocked при ошибке снимает признак загрузки: набор, прочитанный раньше,
// мог устареть
func (c *CoverageTracker) loadLocked(ctx context.Context) error {
	data, err := c.store.Load(ctx, c.storageKey)
	if err != nil {
		c.loaded = false
		return fmt.Errorf("load tiles: %w", err)
	}

	tiles, err := c.codec.Decode(data)
	if err != nil {
		c.loaded = false
		return fmt.Errorf("decode tiles: %w", err)
	}

	c.visited = tiles
	c.loaded = true

	c.logger.Debug("Coverage loaded",
		zap.String("key", c.storageKey),
		zap.Int("tiles", len(tiles)))

	return nil
}

func (c *CoverageTracker) Stats() domain.CoverageStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return domain.CoverageStats{
		TotalTilesInBound: c.totalTiles,
		VisitedTileCount:  len(c.visited),
	}
}

// Tiles возвращает копию набора, отсортированную по ключу
func (c *CoverageTracker) Tiles() []domain.VisitedTile {
	c.mu.RLock()
	tiles := make([]domain.VisitedTile, 0, len(c.visited))
	for _, tile := range c.visited {
		tiles = append(tiles, tile)
	}
	c.mu.RUnlock()

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Key.X != tiles[j].Key.X {
			return tiles[i].Key.X < tiles[j].Key.X
		}
		return tiles[i].Key.Y < tiles[j].Key.Y
	})
	return tiles
}
