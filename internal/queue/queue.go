package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/i474232898/weather-collector/internal/weather"
)

// Supported publisher kinds.
const (
	KindAMQP = "amqp"
	KindMQTT = "mqtt"
)

// Config selects and configures the publisher.
type Config struct {
	Kind string     `yaml:"kind" validate:"oneof=amqp mqtt"`
	AMQP AMQPConfig `yaml:"amqp"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// New builds the publisher selected by cfg.Kind.
func New(cfg Config, logger *zap.SugaredLogger) (weather.Publisher, error) {
	switch cfg.Kind {
	case KindAMQP, "":
		return NewAMQPPublisher(cfg.AMQP, logger), nil
	case KindMQTT:
		if cfg.MQTT.Broker == "" {
			return nil, fmt.Errorf("mqtt publisher requires a broker address")
		}
		return NewMQTTPublisher(cfg.MQTT, logger), nil
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
	}
}
