package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	apperrors "github.com/location-engine/internal/pkg/errors"
	"go.uber.org/zap"
)

type zoneRow struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Latitude     float64   `db:"latitude"`
	Longitude    float64   `db:"longitude"`
	RadiusMeters float64   `db:"radius_meters"`
	OwnerID      uuid.UUID `db:"owner_id"`
	Category     string    `db:"category"`
}

func (z zoneRow) toDomain() domain.Zone {
	return domain.Zone{
		ID:           z.ID,
		Name:         z.Name,
		Center:       domain.Coordinate{Latitude: z.Latitude, Longitude: z.Longitude},
		RadiusMeters: z.RadiusMeters,
		OwnerID:      z.OwnerID,
		Category:     domain.ParseZoneCategory(z.Category),
	}
}

type zoneRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewZoneRepository(db *DB) repository.ZoneRepository {
	return &zoneRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

func (r *zoneRepository) FetchZones(ctx context.Context, profileID uuid.UUID) ([]domain.Zone, error) {
	query := `
		SELECT id, name, latitude, longitude, radius_meters, owner_id, category
		FROM zones
		WHERE owner_id = $1
		ORDER BY name
	`

	var rows []zoneRow
	if err := r.db.SelectContext(ctx, &rows, query, profileID); err != nil {
		r.logger.Error("Failed to fetch zones",
			zap.String("profile_id", profileID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	zones := make([]domain.Zone, 0, len(rows))
	for _, row := range rows {
		zones = append(zones, row.toDomain())
	}
	return zones, nil
}

// InsertExit пишет выход. Уникальный индекс (profile_id, zone_id, exit_date)
// превращается в repository.ErrAlreadyExists
func (r *zoneRepository) InsertExit(ctx context.Context, event domain.ZoneExitEvent) error {
	query := `
		INSERT INTO zone_exits (profile_id, zone_id, exit_time, exit_date)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, event.ProfileID, event.ZoneID, event.ExitTime.UTC(), event.ExitDay())
	if isUniqueViolation(err) {
		return fmt.Errorf("zone exit %s/%s: %w", event.ProfileID, event.ZoneID, repository.ErrAlreadyExists)
	}
	if err != nil {
		r.logger.Error("Failed to insert zone exit",
			zap.String("profile_id", event.ProfileID.String()),
			zap.String("zone_id", event.ZoneID.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	return nil
}

func (r *zoneRepository) HasExitToday(ctx context.Context, profileID, zoneID uuid.UUID, day time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM zone_exits
			WHERE profile_id = $1 AND zone_id = $2 AND exit_date = $3
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, profileID, zoneID, domain.UTCDay(day)); err != nil {
		r.logger.Error("Failed to check zone exit",
			zap.String("profile_id", profileID.String()),
			zap.String("zone_id", zoneID.String()),
			zap.Error(err))
		return false, fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	return exists, nil
}

// UpsertDailyAggregate отмечает день в агрегате. Повторный вызов ничего не меняет
func (r *zoneRepository) UpsertDailyAggregate(ctx context.Context, profileID, zoneID uuid.UUID, day time.Time) error {
	query := `
		INSERT INTO zone_exit_daily (profile_id, zone_id, exit_date, exit_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (profile_id, zone_id, exit_date) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, profileID, zoneID, domain.UTCDay(day)); err != nil {
		r.logger.Error("Failed to upsert daily exit aggregate",
			zap.String("profile_id", profileID.String()),
			zap.String("zone_id", zoneID.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	return nil
}
