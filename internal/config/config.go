package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	metersPerMile = 1609.344

	LocationSourceRedis = "redis"
	LocationSourceMQTT  = "mqtt"
	LocationSourceBoth  = "both"

	KVBackendRedis = "redis"
	KVBackendFile  = "file"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Log      LogConfig
	Worker   WorkerConfig
	Engine   EngineConfig
	Coverage CoverageConfig
	Storage  StorageConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

type LogConfig struct {
	Level string
}

type WorkerConfig struct {
	Enabled         bool
	LocationSource  string
	ConsumerGroup   string
	BatchSize       int
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
}

// EngineConfig - параметры конвейера обработки точек
type EngineConfig struct {
	UploadInterval     time.Duration
	UploadDistance     float64
	DailyAggregate     bool
	ZoneCacheTTL       time.Duration
	ZoneCacheSizeMB    int
	SessionIdleTimeout time.Duration
}

// CoverageConfig - параметры "тумана войны"
type CoverageConfig struct {
	OriginLat         float64
	OriginLon         float64
	TileSizeMeters    float64
	BoundRadiusMeters float64
}

type StorageConfig struct {
	KVBackend string
	FileDir   string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// .env необязателен: в контейнере всё приходит из окружения
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return FromViper(viper.GetViper()), nil
}

// FromViper собирает конфиг из уже заполненного экземпляра viper и проставляет значения по умолчанию
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("API_HOST"),
			Port: v.GetInt("API_PORT"),
			Env:  v.GetString("API_ENV"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxConns:        v.GetInt("DB_MAX_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			ConnMaxIdleTime: time.Duration(v.GetInt("DB_CONN_MAX_IDLE_TIME")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MQTT: MQTTConfig{
			Broker:   v.GetString("MQTT_BROKER"),
			ClientID: v.GetString("MQTT_CLIENT_ID"),
			Topic:    v.GetString("MQTT_TOPIC"),
			QoS:      byte(v.GetInt("MQTT_QOS")),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Worker: WorkerConfig{
			Enabled:         v.GetBool("WORKER_ENABLED"),
			LocationSource:  strings.ToLower(strings.TrimSpace(v.GetString("LOCATION_SOURCE"))),
			ConsumerGroup:   v.GetString("WORKER_CONSUMER_GROUP"),
			BatchSize:       v.GetInt("WORKER_BATCH_SIZE"),
			PollInterval:    time.Duration(v.GetInt("WORKER_POLL_INTERVAL_MS")) * time.Millisecond,
			ShutdownTimeout: time.Duration(v.GetInt("WORKER_SHUTDOWN_TIMEOUT")) * time.Second,
		},
		Engine: EngineConfig{
			UploadInterval:     time.Duration(v.GetInt("UPLOAD_INTERVAL_SECONDS")) * time.Second,
			UploadDistance:     v.GetFloat64("UPLOAD_DISTANCE_METERS"),
			DailyAggregate:     v.GetBool("EXIT_DAILY_AGGREGATE"),
			ZoneCacheTTL:       time.Duration(v.GetInt("ZONE_CACHE_TTL")) * time.Second,
			ZoneCacheSizeMB:    v.GetInt("ZONE_CACHE_SIZE_MB"),
			SessionIdleTimeout: time.Duration(v.GetInt("SESSION_IDLE_TIMEOUT")) * time.Second,
		},
		Coverage: CoverageConfig{
			OriginLat:         v.GetFloat64("COVERAGE_ORIGIN_LAT"),
			OriginLon:         v.GetFloat64("COVERAGE_ORIGIN_LON"),
			TileSizeMeters:    v.GetFloat64("COVERAGE_TILE_SIZE_METERS"),
			BoundRadiusMeters: v.GetFloat64("COVERAGE_BOUND_RADIUS_MILES") * metersPerMile,
		},
		Storage: StorageConfig{
			KVBackend: strings.ToLower(strings.TrimSpace(v.GetString("KV_BACKEND"))),
			FileDir:   v.GetString("KV_FILE_DIR"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}

	cfg.applyDefaults(v)
	return cfg
}

// Set default values if not provided
func (c *Config) applyDefaults(v *viper.Viper) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Worker.LocationSource == "" {
		c.Worker.LocationSource = LocationSourceRedis
	}
	if c.Worker.ConsumerGroup == "" {
		c.Worker.ConsumerGroup = "location-engine-workers"
	}
	if !v.IsSet("WORKER_ENABLED") {
		c.Worker.Enabled = true
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 100 * time.Millisecond
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "location-engine"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "/profiles/+/location"
	}
	if !v.IsSet("MQTT_QOS") {
		c.MQTT.QoS = 1
	}
	if c.Engine.UploadInterval == 0 {
		c.Engine.UploadInterval = 60 * time.Second
	}
	if c.Engine.UploadDistance == 0 {
		c.Engine.UploadDistance = 50
	}
	if !v.IsSet("EXIT_DAILY_AGGREGATE") {
		c.Engine.DailyAggregate = true
	}
	if c.Engine.ZoneCacheTTL == 0 {
		c.Engine.ZoneCacheTTL = 60 * time.Second
	}
	if c.Engine.ZoneCacheSizeMB == 0 {
		c.Engine.ZoneCacheSizeMB = 16
	}
	if c.Engine.SessionIdleTimeout == 0 {
		c.Engine.SessionIdleTimeout = 30 * time.Minute
	}
	// Ann Arbor, MI
	if !v.IsSet("COVERAGE_ORIGIN_LAT") && !v.IsSet("COVERAGE_ORIGIN_LON") {
		c.Coverage.OriginLat = 42.2808
		c.Coverage.OriginLon = -83.7430
	}
	if c.Coverage.TileSizeMeters == 0 {
		c.Coverage.TileSizeMeters = 100
	}
	if c.Coverage.BoundRadiusMeters == 0 {
		c.Coverage.BoundRadiusMeters = 100 * metersPerMile
	}
	if c.Storage.KVBackend == "" {
		c.Storage.KVBackend = KVBackendRedis
	}
	if c.Storage.FileDir == "" {
		c.Storage.FileDir = "./data"
	}
	if !v.IsSet("METRICS_ENABLED") {
		c.Metrics.Enabled = true
	}
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	switch c.Worker.LocationSource {
	case LocationSourceRedis, LocationSourceMQTT, LocationSourceBoth:
	default:
		return fmt.Errorf("unknown LOCATION_SOURCE %q", c.Worker.LocationSource)
	}
	switch c.Storage.KVBackend {
	case KVBackendRedis, KVBackendFile:
	default:
		return fmt.Errorf("unknown KV_BACKEND %q", c.Storage.KVBackend)
	}
	if c.Coverage.TileSizeMeters <= 0 {
		return fmt.Errorf("COVERAGE_TILE_SIZE_METERS must be positive")
	}
	if c.Coverage.BoundRadiusMeters <= 0 {
		return fmt.Errorf("COVERAGE_BOUND_RADIUS_MILES must be positive")
	}
	return nil
}

func (c *Config) UsesRedisSource() bool {
	return c.Worker.LocationSource == LocationSourceRedis || c.Worker.LocationSource == LocationSourceBoth
}

func (c *Config) UsesMQTTSource() bool {
	return c.Worker.LocationSource == LocationSourceMQTT || c.Worker.LocationSource == LocationSourceBoth
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
