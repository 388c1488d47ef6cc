package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/pkg/errors"
	"github.com/location-engine/internal/pkg/utils"
	"go.uber.org/zap"
)

// CoverageQuery - чтение "тумана войны" профиля
type CoverageQuery interface {
	Stats(ctx context.Context, profileID uuid.UUID) (domain.CoverageStats, error)
	Tiles(ctx context.Context, profileID uuid.UUID) ([]domain.VisitedTile, error)
}

// CoverageHandler отдаёт статистику и открытые ячейки профиля
type CoverageHandler struct {
	coverage CoverageQuery
	logger   *zap.Logger
}

func NewCoverageHandler(coverage CoverageQuery, logger *zap.Logger) *CoverageHandler {
	return &CoverageHandler{
		coverage: coverage,
		logger:   logger,
	}
}

type coverageStatsResponse struct {
	ProfileID         uuid.UUID `json:"profile_id"`
	TotalTilesInBound int       `json:"total_tiles_in_bound"`
	VisitedTileCount  int       `json:"visited_tile_count"`
	Percent           float64   `json:"percent"`
}

// GetStats - GET /api/v1/coverage/:profile_id/stats
func (h *CoverageHandler) GetStats(c *fiber.Ctx) error {
	profileID, err := profileIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	stats, err := h.coverage.Stats(c.UserContext(), profileID)
	if err != nil {
		h.logger.Error("Failed to get coverage stats",
			zap.String("profile_id", profileID.String()),
			zap.Error(err))
		return utils.SendError(c, err)
	}

	return utils.SendSuccess(c, coverageStatsResponse{
		ProfileID:         profileID,
		TotalTilesInBound: stats.TotalTilesInBound,
		VisitedTileCount:  stats.VisitedTileCount,
		Percent:           stats.Percent(),
	}, nil)
}

// GetTiles - GET /api/v1/coverage/:profile_id/tiles
func (h *CoverageHandler) GetTiles(c *fiber.Ctx) error {
	profileID, err := profileIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	tiles, err := h.coverage.Tiles(c.UserContext(), profileID)
	if err != nil {
		h.logger.Error("Failed to get coverage tiles",
			zap.String("profile_id", profileID.String()),
			zap.Error(err))
		return utils.SendError(c, err)
	}
	if tiles == nil {
		tiles = []domain.VisitedTile{}
	}

	return utils.SendSuccess(c, tiles, &utils.Meta{Total: len(tiles)})
}

func profileIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	raw := c.Params("profile_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.ErrInvalidProfileID.WithDetails(map[string]interface{}{
			"profile_id": raw,
		})
	}
	return id, nil
}
