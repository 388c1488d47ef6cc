package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/location-engine/internal/config"
	deliveryhttp "github.com/location-engine/internal/delivery/http"
	"github.com/location-engine/internal/delivery/http/handler"
	"github.com/location-engine/internal/delivery/mqtt"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"github.com/location-engine/internal/pkg/codec"
	"github.com/location-engine/internal/pkg/logger"
	"github.com/location-engine/internal/pkg/metrics"
	"github.com/location-engine/internal/repository/cache"
	"github.com/location-engine/internal/repository/file"
	"github.com/location-engine/internal/repository/postgres"
	redisRepo "github.com/location-engine/internal/repository/redis"
	"github.com/location-engine/internal/session"
	"github.com/location-engine/internal/usecase"
	"github.com/location-engine/internal/worker"
	"github.com/location-engine/internal/worker/location"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid config: %v", err))
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Location Engine",
		zap.String("env", cfg.Server.Env),
		zap.String("location_source", cfg.Worker.LocationSource),
		zap.String("kv_backend", cfg.Storage.KVBackend),
		zap.Float64("origin_lat", cfg.Coverage.OriginLat),
		zap.Float64("origin_lon", cfg.Coverage.OriginLon))

	// 3. Connect to PostgreSQL
	db, err := postgres.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}()

	// 4. Connect to Redis
	redisClient, err := cache.NewRedis(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	// 5. Repositories
	profileRepo := postgres.NewProfileRepository(db)
	zoneRepo := postgres.NewZoneRepository(db)
	streamRepo := redisRepo.NewStreamRepository(redisClient.Client(), logger.Component(log, "streams"))
	publisher := redisRepo.NewEventPublisher(streamRepo)
	zoneCache := cache.NewZoneCache(cfg.Engine.ZoneCacheSizeMB, cfg.Engine.ZoneCacheTTL, logger.Component(log, "zone-cache"))

	kv, err := newKVStore(cfg, redisClient, log)
	if err != nil {
		log.Fatal("Failed to initialize KV store", zap.Error(err))
	}

	tileCodec, err := codec.NewTileSetCodec()
	if err != nil {
		log.Fatal("Failed to initialize tile codec", zap.Error(err))
	}
	defer tileCodec.Close()

	// 6. Metrics
	var (
		registry      *prometheus.Registry
		engineMetrics metrics.EngineMetrics = metrics.Noop{}
		sessions      *session.Manager
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		engineMetrics = metrics.NewPrometheus(registry, func() float64 {
			return float64(sessions.ActiveSessions())
		})
	}

	// 7. Engine per profile
	coverageCfg := usecase.CoverageConfig{
		Origin:            domain.Coordinate{Latitude: cfg.Coverage.OriginLat, Longitude: cfg.Coverage.OriginLon},
		TileSizeMeters:    cfg.Coverage.TileSizeMeters,
		BoundRadiusMeters: cfg.Coverage.BoundRadiusMeters,
	}
	newCoverage := func(profileID uuid.UUID) *usecase.CoverageTracker {
		return usecase.NewCoverageTracker(profileID, coverageCfg, kv, tileCodec, engineMetrics, logger.Component(log, "coverage"))
	}
	zoneProvider := usecase.NewZoneProvider(zoneRepo, zoneCache, logger.Component(log, "zones"))
	recorder := usecase.NewExitEventRecorder(zoneRepo, cfg.Engine.DailyAggregate, logger.Component(log, "exits"))
	engineLog := logger.Component(log, "engine")

	newEngine := func(profileID uuid.UUID) *usecase.Engine {
		return usecase.NewEngine(profileID, usecase.EngineDeps{
			Throttle:    usecase.NewUploadThrottle(cfg.Engine.UploadInterval, cfg.Engine.UploadDistance),
			Tracker:     usecase.NewZoneBoundaryTracker(profileID),
			Recorder:    recorder,
			Coverage:    newCoverage(profileID),
			Zones:       zoneProvider,
			ProfileRepo: profileRepo,
			Publisher:   publisher,
			Membership:  kv,
			Metrics:     engineMetrics,
			Logger:      engineLog,
		})
	}

	sessions = session.NewManager(
		newEngine,
		session.LocationSharingAuthorizer(profileRepo),
		session.ManagerConfig{IdleTimeout: cfg.Engine.SessionIdleTimeout},
		logger.Component(log, "sessions"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineWorkers := worker.NewWorkerManager(log, cfg.Worker.ShutdownTimeout)
	engineWorkers.Register(sessions)
	if err := engineWorkers.Start(ctx); err != nil {
		log.Fatal("Failed to start session manager", zap.Error(err))
	}

	// 8. Location sources
	healthChecks := map[string]handler.HealthChecker{
		"postgres": db,
		"redis":    redisClient,
	}

	sourceWorkers := worker.NewWorkerManager(log, cfg.Worker.ShutdownTimeout)
	if cfg.Worker.Enabled {
		if cfg.UsesRedisSource() {
			sourceWorkers.Register(location.NewStreamWorker(streamRepo, sessions, location.StreamWorkerConfig{
				ConsumerGroup: cfg.Worker.ConsumerGroup,
				BatchSize:     cfg.Worker.BatchSize,
				PollInterval:  cfg.Worker.PollInterval,
			}, log))
		}
		if cfg.UsesMQTTSource() {
			mqttClient, err := mqtt.NewClient(cfg.MQTT, log)
			if err != nil {
				log.Fatal("Failed to connect to MQTT", zap.Error(err))
			}
			defer mqttClient.Disconnect(250)

			healthChecks["mqtt"] = mqtt.NewHealth(mqttClient)
			sourceWorkers.Register(mqtt.NewLocationSubscriber(mqttClient, cfg.MQTT.Topic, cfg.MQTT.QoS, sessions, log))
		}

		if err := sourceWorkers.Start(ctx); err != nil {
			log.Fatal("Failed to start location sources", zap.Error(err))
		}
	} else {
		log.Warn("Location sources disabled, serving queries only. Set WORKER_ENABLED=true to enable")
	}

	// 9. HTTP
	coverageQuery := usecase.NewCoverageQueryUseCase(sessions, newCoverage)

	var gatherer prometheus.Gatherer
	if registry != nil {
		gatherer = registry
	}
	server := deliveryhttp.NewServer(
		cfg,
		log,
		handler.NewCoverageHandler(coverageQuery, logger.Component(log, "http")),
		handler.NewHealthHandler(healthChecks, logger.Component(log, "health")),
		gatherer,
	)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Received shutdown signal")

	// сначала источники, чтобы сессии дообработали уже принятые точки
	if cfg.Worker.Enabled {
		if err := sourceWorkers.Stop(); err != nil {
			log.Error("Error stopping location sources", zap.Error(err))
		}
	}
	if err := engineWorkers.Stop(); err != nil {
		log.Error("Error stopping sessions", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	log.Info("Location Engine shutdown complete")
}

func newKVStore(cfg *config.Config, redisClient *cache.Redis, log *zap.Logger) (repository.KeyValueStore, error) {
	switch cfg.Storage.KVBackend {
	case config.KVBackendFile:
		return file.NewKVStore(cfg.Storage.FileDir, logger.Component(log, "kv-file"))
	default:
		return cache.NewKVStore(redisClient), nil
	}
}
