package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	apperrors "github.com/location-engine/internal/pkg/errors"
	"go.uber.org/zap"
)

type profileRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewProfileRepository(db *DB) repository.ProfileRepository {
	return &profileRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

func (r *profileRepository) UpdateLocation(ctx context.Context, profileID uuid.UUID, point domain.GeoPoint) error {
	query := `
		UPDATE profiles
		SET latitude = $1, longitude = $2, location_updated_at = $3
		WHERE id = $4
	`

	res, err := r.db.ExecContext(ctx, query, point.Latitude, point.Longitude, point.Timestamp.UTC(), profileID)
	if err != nil {
		r.logger.Error("Failed to update profile location",
			zap.String("profile_id", profileID.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}
	if affected == 0 {
		return apperrors.ErrInvalidProfileID.WithDetails(map[string]interface{}{
			"profile_id": profileID.String(),
		})
	}

	return nil
}

// IsLocationSharingEnabled - неизвестный профиль считается не давшим разрешения
func (r *profileRepository) IsLocationSharingEnabled(ctx context.Context, profileID uuid.UUID) (bool, error) {
	query := `SELECT location_sharing FROM profiles WHERE id = $1`

	var enabled bool
	err := r.db.GetContext(ctx, &enabled, query, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to read location sharing flag",
			zap.String("profile_id", profileID.String()),
			zap.Error(err))
		return false, fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	return enabled, nil
}
