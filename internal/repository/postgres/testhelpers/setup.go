package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// TestDB - подключение к тестовой базе с применёнными миграциями
type TestDB struct {
	DB     *sqlx.DB
	Logger *zap.Logger
}

// SetupTestDB подключается к TEST_DB_* и применяет migrations/.
// Без доступной базы тест пропускается
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5433"),
		getEnv("TEST_DB_USER", "postgres"),
		getEnv("TEST_DB_PASSWORD", "postgres"),
		getEnv("TEST_DB_NAME", "location_engine_test"),
		getEnv("TEST_DB_SSLMODE", "disable"),
	)

	// ждём базу с экспоненциальной паузой, контейнер может ещё подниматься
	var db *sqlx.DB
	var err error
	retryDelay := 200 * time.Millisecond
	for i := 0; i < 3; i++ {
		db, err = sqlx.Connect("pgx", connStr)
		if err == nil {
			break
		}
		time.Sleep(retryDelay)
		retryDelay *= 2
	}
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	if err := ApplyMigrations(db.DB, migrationsDir()); err != nil {
		db.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	tdb := &TestDB{DB: db, Logger: zap.NewNop()}
	t.Cleanup(func() {
		_ = tdb.Cleanup(context.Background())
		tdb.Close()
	})
	return tdb
}

func (tdb *TestDB) Close() {
	if tdb.DB != nil {
		tdb.DB.Close()
	}
}

// Cleanup очищает таблицы с учётом внешних ключей
func (tdb *TestDB) Cleanup(ctx context.Context) error {
	_, err := tdb.DB.ExecContext(ctx, "TRUNCATE TABLE zone_exit_daily, zone_exits, zones, profiles CASCADE")
	return err
}

// migrationsDir - корень модуля/migrations относительно этого файла
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
