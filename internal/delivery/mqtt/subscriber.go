package mqtt

import (
	"context"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	"github.com/location-engine/internal/pkg/validator"
	"github.com/location-engine/internal/worker"
	"go.uber.org/zap"
)

// locationMessage - полезная нагрузка MQTT. profile_id можно не передавать,
// тогда он берётся из топика /profiles/<id>/location
type locationMessage struct {
	ProfileID string  `json:"profile_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// LocationSubscriber - источник точек из MQTT
type LocationSubscriber struct {
	*worker.BaseWorker
	client     pahomqtt.Client
	topic      string
	qos        byte
	dispatcher repository.LocationDispatcher
}

func NewLocationSubscriber(client pahomqtt.Client, topic string, qos byte, dispatcher repository.LocationDispatcher, logger *zap.Logger) *LocationSubscriber {
	return &LocationSubscriber{
		BaseWorker: worker.NewBaseWorker("location-mqtt", "", logger),
		client:     client,
		topic:      topic,
		qos:        qos,
		dispatcher: dispatcher,
	}
}

// Start подписывается на топик и держит подписку до остановки
func (s *LocationSubscriber) Start(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, s.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handleMessage(ctx, msg)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", s.topic, err)
	}

	s.Logger().Info("Subscribed", zap.String("topic", s.topic), zap.Uint8("qos", s.qos))

	var err error
	select {
	case <-s.StopChan():
	case <-ctx.Done():
		err = ctx.Err()
	}

	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.Logger().Warn("Failed to unsubscribe", zap.Error(token.Error()))
	}
	return err
}

func (s *LocationSubscriber) handleMessage(ctx context.Context, msg pahomqtt.Message) {
	logger := s.Logger().With(zap.String("topic", msg.Topic()))

	event, err := parseLocation(msg.Topic(), msg.Payload())
	if err != nil {
		logger.Warn("Invalid location message", zap.Error(err))
		return
	}

	if err := s.dispatcher.Dispatch(ctx, event.ProfileID, event.GeoPoint()); err != nil {
		logger.Warn("Location update rejected",
			zap.String("profile_id", event.ProfileID.String()),
			zap.Error(err))
	}
}

func parseLocation(topic string, payload []byte) (*domain.LocationUpdateEvent, error) {
	var raw locationMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	id := raw.ProfileID
	if id == "" {
		id = profileIDFromTopic(topic)
	}
	profileID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("profile_id: %w", err)
	}

	event := &domain.LocationUpdateEvent{
		ProfileID: profileID,
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Timestamp: raw.Timestamp,
	}
	if err := validator.Validate(event); err != nil {
		return nil, fmt.Errorf("invalid event: %s", validator.Describe(err))
	}
	return event, nil
}

// profileIDFromTopic - сегмент перед последним: /profiles/<id>/location
func profileIDFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
