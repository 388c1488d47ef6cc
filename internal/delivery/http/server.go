package http

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/location-engine/internal/config"
	"github.com/location-engine/internal/delivery/http/handler"
	"github.com/location-engine/internal/delivery/http/middleware"
	apperrors "github.com/location-engine/internal/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server - HTTP сервер на основе Fiber: покрытие, health и метрики
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *zap.Logger

	coverageHandler *handler.CoverageHandler
	healthHandler   *handler.HealthHandler
	gatherer        prometheus.Gatherer
}

// NewServer - gatherer nil отключает /metrics
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	coverageHandler *handler.CoverageHandler,
	healthHandler *handler.HealthHandler,
	gatherer prometheus.Gatherer,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Location Engine",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          customErrorHandler(logger),
	})

	s := &Server{
		app:             app,
		config:          cfg,
		logger:          logger,
		coverageHandler: coverageHandler,
		healthHandler:   healthHandler,
		gatherer:        gatherer,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Logger(s.logger))
	s.app.Use(middleware.CORS())
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

func (s *Server) setupRoutes() {
	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api/v1")

	api.Get("/health", s.healthHandler.Health)

	coverage := api.Group("/coverage/:profile_id")
	coverage.Get("/stats", s.coverageHandler.GetStats)
	coverage.Get("/tiles", s.coverageHandler.GetTiles)
}

// App - для тестов через app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown - graceful shutdown HTTP сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler - ошибки fiber (404, 405) в формате ErrorResponse
func customErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errCode := apperrors.ErrInternalServer.Code

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			errCode = "HTTP_ERROR"
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("HTTP Error",
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}

		return c.Status(code).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    errCode,
				"message": err.Error(),
			},
		})
	}
}
