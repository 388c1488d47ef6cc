package testhelpers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
)

// InsertProfile создаёт профиль с заданным флагом location_sharing
func (tdb *TestDB) InsertProfile(t *testing.T, sharing bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := tdb.DB.ExecContext(context.Background(),
		`INSERT INTO profiles (id, location_sharing) VALUES ($1, $2)`, id, sharing)
	if err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	return id
}

// InsertZone создаёт зону владельца и возвращает её с новым ID
func (tdb *TestDB) InsertZone(t *testing.T, z domain.Zone) domain.Zone {
	t.Helper()
	if z.ID == uuid.Nil {
		z.ID = uuid.New()
	}
	if z.Category == "" {
		z.Category = domain.ZoneCategoryOther
	}
	_, err := tdb.DB.ExecContext(context.Background(), `
		INSERT INTO zones (id, owner_id, name, latitude, longitude, radius_meters, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		z.ID, z.OwnerID, z.Name, z.Center.Latitude, z.Center.Longitude, z.RadiusMeters, string(z.Category))
	if err != nil {
		t.Fatalf("insert zone: %v", err)
	}
	return z
}
