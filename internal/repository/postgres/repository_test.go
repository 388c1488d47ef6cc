package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	apperrors "github.com/location-engine/internal/pkg/errors"
	"github.com/location-engine/internal/repository/postgres"
)

// RepositoryTestSuite гоняет репозитории поверх sqlmock
type RepositoryTestSuite struct {
	suite.Suite
	mock     sqlmock.Sqlmock
	db       *postgres.DB
	profiles repository.ProfileRepository
	zones    repository.ZoneRepository
	ctx      context.Context
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func (s *RepositoryTestSuite) SetupTest() {
	sqlDB, mock, err := sqlmock.New()
	s.Require().NoError(err)

	s.mock = mock
	s.db = postgres.NewDBForTest(sqlx.NewDb(sqlDB, "sqlmock"), nil)
	s.profiles = postgres.NewProfileRepository(s.db)
	s.zones = postgres.NewZoneRepository(s.db)
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.DB.Close()
}

func (s *RepositoryTestSuite) TestUpdateLocation() {
	id := uuid.New()
	ts := time.Date(2024, 5, 6, 12, 30, 0, 0, time.UTC)

	s.mock.ExpectExec(`UPDATE profiles\s+SET latitude = \$1, longitude = \$2, location_updated_at = \$3\s+WHERE id = \$4`).
		WithArgs(40.0, -74.0, ts, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.profiles.UpdateLocation(s.ctx, id, domain.GeoPoint{Latitude: 40.0, Longitude: -74.0, Timestamp: ts})
	s.NoError(err)
}

func (s *RepositoryTestSuite) TestUpdateLocation_UnknownProfile() {
	s.mock.ExpectExec(`UPDATE profiles`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.profiles.UpdateLocation(s.ctx, uuid.New(), domain.GeoPoint{Timestamp: time.Now()})
	s.ErrorIs(err, apperrors.ErrInvalidProfileID)
}

func (s *RepositoryTestSuite) TestUpdateLocation_DatabaseError() {
	s.mock.ExpectExec(`UPDATE profiles`).WillReturnError(sqlmock.ErrCancelled)

	err := s.profiles.UpdateLocation(s.ctx, uuid.New(), domain.GeoPoint{Timestamp: time.Now()})
	s.ErrorIs(err, apperrors.ErrDatabaseError)
}

func (s *RepositoryTestSuite) TestIsLocationSharingEnabled() {
	id := uuid.New()

	s.mock.ExpectQuery(`SELECT location_sharing FROM profiles WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"location_sharing"}).AddRow(true))
	enabled, err := s.profiles.IsLocationSharingEnabled(s.ctx, id)
	s.NoError(err)
	s.True(enabled)

	s.mock.ExpectQuery(`SELECT location_sharing FROM profiles`).
		WillReturnRows(sqlmock.NewRows([]string{"location_sharing"}))
	enabled, err = s.profiles.IsLocationSharingEnabled(s.ctx, uuid.New())
	s.NoError(err)
	s.False(enabled)

	s.mock.ExpectQuery(`SELECT location_sharing FROM profiles`).WillReturnError(errors.New("conn reset"))
	_, err = s.profiles.IsLocationSharingEnabled(s.ctx, uuid.New())
	s.ErrorIs(err, apperrors.ErrDatabaseError)
}

func (s *RepositoryTestSuite) TestFetchZones() {
	profileID := uuid.New()
	homeID, gymID := uuid.New(), uuid.New()

	rows := sqlmock.NewRows([]string{"id", "name", "latitude", "longitude", "radius_meters", "owner_id", "category"}).
		AddRow(gymID.String(), "Gym", 40.01, -74.02, 75.0, profileID.String(), "gym").
		AddRow(homeID.String(), "Home", 40.0, -74.0, 100.0, profileID.String(), "cabin")

	s.mock.ExpectQuery(`SELECT id, name, latitude, longitude, radius_meters, owner_id, category\s+FROM zones\s+WHERE owner_id = \$1`).
		WithArgs(profileID).
		WillReturnRows(rows)

	zones, err := s.zones.FetchZones(s.ctx, profileID)
	s.Require().NoError(err)
	s.Require().Len(zones, 2)

	s.Equal(domain.Zone{
		ID:           gymID,
		Name:         "Gym",
		Center:       domain.Coordinate{Latitude: 40.01, Longitude: -74.02},
		RadiusMeters: 75,
		OwnerID:      profileID,
		Category:     domain.ZoneCategoryGym,
	}, zones[0])
	s.Equal(domain.ZoneCategoryOther, zones[1].Category)
}

func (s *RepositoryTestSuite) TestInsertExit() {
	event := domain.ZoneExitEvent{
		ProfileID: uuid.New(),
		ZoneID:    uuid.New(),
		ExitTime:  time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC),
	}

	s.mock.ExpectExec(`INSERT INTO zone_exits \(profile_id, zone_id, exit_time, exit_date\)`).
		WithArgs(event.ProfileID, event.ZoneID, event.ExitTime, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.NoError(s.zones.InsertExit(s.ctx, event))
}

func (s *RepositoryTestSuite) TestInsertExit_UniqueViolation() {
	s.mock.ExpectExec(`INSERT INTO zone_exits`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.zones.InsertExit(s.ctx, domain.ZoneExitEvent{ProfileID: uuid.New(), ZoneID: uuid.New(), ExitTime: time.Now()})
	s.ErrorIs(err, repository.ErrAlreadyExists)
	s.NotErrorIs(err, apperrors.ErrDatabaseError)
}

func (s *RepositoryTestSuite) TestInsertExit_OtherError() {
	s.mock.ExpectExec(`INSERT INTO zone_exits`).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "foreign key violation"})

	err := s.zones.InsertExit(s.ctx, domain.ZoneExitEvent{ProfileID: uuid.New(), ZoneID: uuid.New(), ExitTime: time.Now()})
	s.ErrorIs(err, apperrors.ErrDatabaseError)
	s.NotErrorIs(err, repository.ErrAlreadyExists)
}

func (s *RepositoryTestSuite) TestHasExitToday() {
	profileID, zoneID := uuid.New(), uuid.New()
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	s.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(profileID, zoneID, day).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	// время внутри дня обрезается до полуночи UTC
	exists, err := s.zones.HasExitToday(s.ctx, profileID, zoneID, day.Add(15*time.Hour))
	s.NoError(err)
	s.True(exists)
}

func (s *RepositoryTestSuite) TestUpsertDailyAggregate() {
	profileID, zoneID := uuid.New(), uuid.New()
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	s.mock.ExpectExec(`(?s)INSERT INTO zone_exit_daily.*ON CONFLICT \(profile_id, zone_id, exit_date\) DO NOTHING`).
		WithArgs(profileID, zoneID, day).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s.NoError(s.zones.UpsertDailyAggregate(s.ctx, profileID, zoneID, day))
}

func TestNewDBForTest_DefaultLogger(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectPing()
	db := postgres.NewDBForTest(sqlx.NewDb(sqlDB, "sqlmock"), nil)

	assert.NoError(t, db.Health(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
