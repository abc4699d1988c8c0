package queue

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/i474232898/weather-collector/internal/weather"
)

// MQTTConfig represents the config of the MQTT publisher.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Topic          string        `yaml:"topic"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MQTTPublisher publishes observations to an MQTT topic, connecting per publish.
type MQTTPublisher struct {
	config MQTTConfig
	logger *zap.SugaredLogger

	newClient func(opts *paho.ClientOptions) paho.Client
}

// NewMQTTPublisher creates a new MQTTPublisher.
func NewMQTTPublisher(config MQTTConfig, logger *zap.SugaredLogger) *MQTTPublisher {
	if config.Topic == "" {
		config.Topic = DefaultQueue
	}
	if config.ClientID == "" {
		config.ClientID = "weather-collector"
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &MQTTPublisher{
		config:    config,
		logger:    logger,
		newClient: paho.NewClient,
	}
}

// Publish sends obs to the configured topic and waits for the broker to take it.
func (p *MQTTPublisher) Publish(ctx context.Context, obs weather.Observation) error {
	body, err := Encode(obs)
	if err != nil {
		return err
	}

	opts := paho.NewClientOptions().
		AddBroker(p.config.Broker).
		SetClientID(p.config.ClientID).
		SetConnectTimeout(p.config.ConnectTimeout).
		SetAutoReconnect(false)

	client := p.newClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return fmt.Errorf("publisher: mqtt connect %s: %w", p.config.Broker, err)
	}
	defer client.Disconnect(250)

	if err := waitToken(ctx, client.Publish(p.config.Topic, p.config.QoS, false, body)); err != nil {
		return fmt.Errorf("publisher: mqtt publish to %q: %w", p.config.Topic, err)
	}

	p.logger.Infow("publisher: sent", "topic", p.config.Topic, "body", string(body))
	return nil
}

func waitToken(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
