package mqtt

import (
	"context"
	"errors"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

var errNotConnected = errors.New("mqtt not connected")

// Health - проверка соединения с брокером для /health
type Health struct {
	client pahomqtt.Client
}

func NewHealth(client pahomqtt.Client) *Health {
	return &Health{client: client}
}

func (h *Health) Health(_ context.Context) error {
	if !h.client.IsConnected() {
		return errNotConnected
	}
	return nil
}
