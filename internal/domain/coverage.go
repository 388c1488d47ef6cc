package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TileKey - координаты 100-метровой ячейки относительно фиксированного начала
type TileKey struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d_%d", k.X, k.Y)
}

// ParseTileKey разбирает ключ формата "x_y"
func ParseTileKey(s string) (TileKey, error) {
	xs, ys, ok := strings.Cut(s, "_")
	if !ok {
		return TileKey{}, fmt.Errorf("invalid tile key %q", s)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return TileKey{}, fmt.Errorf("invalid tile key %q: %w", s, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return TileKey{}, fmt.Errorf("invalid tile key %q: %w", s, err)
	}
	return TileKey{X: x, Y: y}, nil
}

// VisitedTile - впервые посещённая ячейка. Набор только растёт
type VisitedTile struct {
	Key        TileKey    `json:"key"`
	Center     Coordinate `json:"center"`
	FirstVisit time.Time  `json:"first_visit"`
}

// CoverageStats - производная статистика, не хранится
type CoverageStats struct {
	TotalTilesInBound int `json:"total_tiles_in_bound"`
	VisitedTileCount  int `json:"visited_tile_count"`
}

// Percent - доля открытых ячеек в процентах
func (s CoverageStats) Percent() float64 {
	if s.TotalTilesInBound == 0 {
		return 0
	}
	return float64(s.VisitedTileCount) / float64(s.TotalTilesInBound) * 100
}
