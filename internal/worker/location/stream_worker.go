package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"github.com/location-engine/internal/pkg/validator"
	"github.com/location-engine/internal/session"
	"github.com/location-engine/internal/worker"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 20
	defaultPollInterval = 100 * time.Millisecond
	errorBackoff        = time.Second
)

// StreamWorkerConfig - параметры чтения stream:location:update
type StreamWorkerConfig struct {
	ConsumerGroup string
	BatchSize     int
	PollInterval  time.Duration
}

// StreamWorker читает обновления местоположения из Redis Stream
// и раздаёт их по сессиям профилей в порядке стрима
type StreamWorker struct {
	*worker.BaseWorker
	streamRepo   repository.StreamRepository
	dispatcher   repository.LocationDispatcher
	consumerName string
	batchSize    int
	pollInterval time.Duration
}

func NewStreamWorker(
	streamRepo repository.StreamRepository,
	dispatcher repository.LocationDispatcher,
	cfg StreamWorkerConfig,
	logger *zap.Logger,
) *StreamWorker {
	hostname, _ := os.Hostname()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &StreamWorker{
		BaseWorker:   worker.NewBaseWorker("location-stream", cfg.ConsumerGroup, logger),
		streamRepo:   streamRepo,
		dispatcher:   dispatcher,
		consumerName: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
	}
}

func (w *StreamWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting location stream worker",
		zap.String("stream", domain.StreamLocationUpdate),
		zap.String("consumer_group", w.ConsumerGroup()),
		zap.String("consumer_name", w.consumerName),
		zap.Int("batch_size", w.batchSize))

	if err := w.streamRepo.CreateConsumerGroup(ctx, domain.StreamLocationUpdate, w.ConsumerGroup()); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := w.processBatch(ctx)
		switch {
		case errors.Is(err, session.ErrManagerClosed):
			logger.Info("Sessions closed, worker exits")
			return nil
		case err != nil:
			logger.Error("Failed to process batch", zap.Error(err))
			w.Pause(ctx, errorBackoff)
		case processed == 0:
			w.Pause(ctx, w.pollInterval)
		}
	}
}

// processBatch возвращает число прочитанных сообщений.
// Если сессии уже закрыты, недоставленные сообщения остаются неподтверждёнными
func (w *StreamWorker) processBatch(ctx context.Context) (int, error) {
	logger := w.Logger()

	messages, err := w.streamRepo.ConsumeBatch(ctx, domain.StreamLocationUpdate, w.ConsumerGroup(), w.consumerName, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to consume batch: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	logger.Debug("Processing batch", zap.Int("message_count", len(messages)))

	acked := make([]string, 0, len(messages))
	var dispatchErr error

	for _, msg := range messages {
		event, err := parseMessage(msg)
		if err != nil {
			logger.Warn("Failed to parse message, skipping",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			// битое сообщение подтверждаем сразу, чтобы не застревало
			_ = w.streamRepo.AckMessage(ctx, domain.StreamLocationUpdate, w.ConsumerGroup(), msg.ID)
			continue
		}

		err = w.dispatcher.Dispatch(ctx, event.ProfileID, event.GeoPoint())
		if errors.Is(err, session.ErrManagerClosed) {
			dispatchErr = err
			break
		}
		if err != nil {
			logger.Warn("Location update rejected",
				zap.String("message_id", msg.ID),
				zap.String("profile_id", event.ProfileID.String()),
				zap.Error(err))
		}
		acked = append(acked, msg.ID)
	}

	if len(acked) > 0 {
		if err := w.streamRepo.AckMessages(ctx, domain.StreamLocationUpdate, w.ConsumerGroup(), acked); err != nil {
			logger.Error("Failed to ack messages", zap.Error(err))
		}
	}

	return len(messages), dispatchErr
}

// parseMessage достаёт событие из поля "data" и проверяет его
func parseMessage(msg domain.StreamMessage) (*domain.LocationUpdateEvent, error) {
	data, ok := msg.Data["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var event domain.LocationUpdateEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if err := validator.Validate(&event); err != nil {
		return nil, fmt.Errorf("invalid event: %s", validator.Describe(err))
	}

	return &event, nil
}
