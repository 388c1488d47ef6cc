package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/location-engine/internal/config"
	"go.uber.org/zap"
)

// NewClient подключается к брокеру. Порядок доставки сообщений сохраняется
func NewClient(cfg config.MQTTConfig, logger *zap.Logger) (pahomqtt.Client, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("MQTT connection lost", zap.Error(err))
		})

	client := pahomqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	return client, nil
}
