package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/i474232898/weather-collector/internal/queue"
	"github.com/i474232898/weather-collector/internal/weather"
)

type AppConfig struct {
	// LogEnv selects the logger flavour ("dev" or anything else for production).
	LogEnv string `yaml:"log_env"`

	// Location is the single point we collect weather for.
	Location weather.Coordinates `yaml:"location"`

	// FetchInterval controls how often a tick runs.
	FetchInterval time.Duration `yaml:"fetch_interval" validate:"gt=0"`
	// TickTimeout bounds one fetch and publish.
	TickTimeout time.Duration `yaml:"tick_timeout" validate:"gte=0"`

	HTTPTimeout     time.Duration `yaml:"http_timeout" validate:"gte=0"`
	FetchMaxRetries int           `yaml:"fetch_max_retries" validate:"gte=0,lte=10"`
	OpenMeteoURL    string        `yaml:"open_meteo_url" validate:"omitempty,url"`

	Publisher queue.Config `yaml:"publisher"`

	// APIAddr enables the read API when non-empty.
	APIAddr string `yaml:"api_addr"`

	// In-memory store retention.
	StoreMaxHistory int           `yaml:"store_max_history"` // max number of observations kept (0 = unlimited)
	StoreMaxAge     time.Duration `yaml:"store_max_age"`     // max age of observations (0 = unlimited)
}

var validate = validator.New()

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *AppConfig {
	return &AppConfig{
		LogEnv: "prod",
		Location: weather.Coordinates{
			Latitude:  -9.4072,
			Longitude: -36.6275,
		},
		FetchInterval: 12 * time.Minute,
		TickTimeout:   60 * time.Second,
		HTTPTimeout:   10 * time.Second,
		Publisher: queue.Config{
			Kind: queue.KindAMQP,
			AMQP: queue.AMQPConfig{
				Host:         "localhost",
				Port:         5672,
				User:         "guest",
				Password:     "guest",
				Vhost:        "/",
				Queue:        queue.DefaultQueue,
				DialAttempts: 1,
				DialDelay:    time.Second,
			},
			MQTT: queue.MQTTConfig{
				ClientID: "weather-collector",
				Topic:    queue.DefaultQueue,
				QoS:      1,
			},
		},
		StoreMaxHistory: 120, // a day at 12-minute intervals
		StoreMaxAge:     24 * time.Hour,
	}
}

// Load reads configuration from an optional .env file, an optional YAML file
// named by CONFIG_FILE and the environment, in increasing precedence.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	amqpCfg := &cfg.Publisher.AMQP
	mqttCfg := &cfg.Publisher.MQTT

	setString(&cfg.LogEnv, "LOG_ENV")
	setString(&cfg.OpenMeteoURL, "OPEN_METEO_URL")
	setString(&cfg.APIAddr, "API_ADDR")
	setString(&cfg.Publisher.Kind, "PUBLISHER")

	// The broker host is resolved here, at runtime, never baked in.
	setString(&amqpCfg.URL, "RABBITMQ_URL")
	setString(&amqpCfg.Host, "RABBITMQ_HOST")
	setString(&amqpCfg.User, "RABBITMQ_USER")
	setString(&amqpCfg.Password, "RABBITMQ_PASSWORD")
	setString(&amqpCfg.Vhost, "RABBITMQ_VHOST")
	setString(&amqpCfg.Queue, "QUEUE_NAME")

	setString(&mqttCfg.Broker, "MQTT_BROKER")
	setString(&mqttCfg.ClientID, "MQTT_CLIENT_ID")
	setString(&mqttCfg.Topic, "MQTT_TOPIC")

	steps := []error{
		setFloat(&cfg.Location.Latitude, "WEATHER_LATITUDE"),
		setFloat(&cfg.Location.Longitude, "WEATHER_LONGITUDE"),
		setDuration(&cfg.FetchInterval, "FETCH_INTERVAL"),
		setDuration(&cfg.TickTimeout, "TICK_TIMEOUT"),
		setDuration(&cfg.HTTPTimeout, "HTTP_TIMEOUT"),
		setInt(&cfg.FetchMaxRetries, "FETCH_MAX_RETRIES"),
		setInt(&amqpCfg.Port, "RABBITMQ_PORT"),
		setBool(&amqpCfg.Confirm, "AMQP_CONFIRM"),
		setUint(&amqpCfg.DialAttempts, "AMQP_DIAL_ATTEMPTS"),
		setDuration(&amqpCfg.DialDelay, "AMQP_DIAL_DELAY"),
		setInt(&cfg.StoreMaxHistory, "STORE_MAX_HISTORY"),
		setDuration(&cfg.StoreMaxAge, "STORE_MAX_AGE"),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setUint(dst *uint, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = uint(n)
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}
