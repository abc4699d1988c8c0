package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/i474232898/weather-collector/internal/weather"
)

// DefaultQueue is the durable queue observations are published to.
const DefaultQueue = "weather_data"

var errNacked = errors.New("broker did not acknowledge publish")

// AMQPConfig represents the config of the AMQP publisher.
// URL wins over the individual host fields when set.
type AMQPConfig struct {
	URL          string        `yaml:"url"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Vhost        string        `yaml:"vhost"`
	Queue        string        `yaml:"queue"`
	Confirm      bool          `yaml:"confirm"`
	DialAttempts uint          `yaml:"dial_attempts"`
	DialDelay    time.Duration `yaml:"dial_delay"`
}

// DSN returns the broker address.
func (c AMQPConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	host, port, vhost := c.Host, c.Port, c.Vhost
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 5672
	}

	u := url.URL{
		Scheme: "amqp",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/",
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	if vhost != "" && vhost != "/" {
		u.Path = "/" + vhost
		u.RawPath = "/" + url.PathEscape(vhost)
	}
	return u.String()
}

// redactedDSN hides the password for log output.
func (c AMQPConfig) redactedDSN() string {
	u, err := url.Parse(c.DSN())
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// connection is the subset of *amqp.Connection the publisher needs.
type connection interface {
	Channel() (channel, error)
	Close() error
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// dialTimeout bounds connection setup when the caller sets no deadline.
const dialTimeout = 30 * time.Second

func dialAMQP(ctx context.Context, dsn string) (connection, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := amqp.DialConfig(dsn, amqp.Config{
		Locale: "en_US",
		Dial:   amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// ctxErr is ctx.Err that also reports a deadline which has passed but whose
// timer has not fired yet.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

// untilDeadline shortens d so a wait never outlives ctx's deadline.
func untilDeadline(ctx context.Context, d time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return d
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		return 0
	}
	if remaining < d {
		return remaining
	}
	return d
}

// AMQPPublisher publishes observations to a durable queue on the default exchange.
// A connection is opened and closed around every publish.
type AMQPPublisher struct {
	config AMQPConfig
	logger *zap.SugaredLogger

	dial func(ctx context.Context, dsn string) (connection, error)
	now  func() time.Time
}

// NewAMQPPublisher creates a new AMQPPublisher.
func NewAMQPPublisher(config AMQPConfig, logger *zap.SugaredLogger) *AMQPPublisher {
	if config.Queue == "" {
		config.Queue = DefaultQueue
	}
	if config.DialAttempts == 0 {
		config.DialAttempts = 1
	}
	if config.DialDelay <= 0 {
		config.DialDelay = time.Second
	}
	return &AMQPPublisher{
		config: config,
		logger: logger,
		dial:   dialAMQP,
		now:    time.Now,
	}
}

// connect dials the broker, retrying up to DialAttempts times with exponential
// backoff. It gives up as soon as ctx is done.
func (p *AMQPPublisher) connect(ctx context.Context) (connection, error) {
	var conn connection

	err := retry.Do(
		func() error {
			if err := ctxErr(ctx); err != nil {
				return err
			}
			c, err := p.dial(ctx, p.config.DSN())
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Attempts(p.config.DialAttempts),
		retry.Delay(p.config.DialDelay),
		retry.DelayType(func(n uint, config *retry.Config) time.Duration {
			return untilDeadline(ctx, retry.BackOffDelay(n, config))
		}),
		retry.RetryIf(func(err error) bool {
			return ctxErr(ctx) == nil
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warnw("publisher: dial failed, retrying", "attempt", n+1, "broker", p.config.redactedDSN(), "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("publisher: dial %s: %w", p.config.redactedDSN(), err)
	}

	return conn, nil
}

// Publish declares the queue and publishes obs as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, obs weather.Observation) error {
	body, err := Encode(obs)
	if err != nil {
		return err
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer p.closeQuietly("connection", conn.Close)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("publisher: open channel: %w", err)
	}
	defer p.closeQuietly("channel", ch.Close)

	q, err := ch.QueueDeclare(
		p.config.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("publisher: declare queue %q: %w", p.config.Queue, err)
	}

	var confirms chan amqp.Confirmation
	if p.config.Confirm {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("publisher: enable confirms: %w", err)
		}
		confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	err = ch.PublishWithContext(ctx,
		"",     // default exchange
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    p.now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publisher: publish to %q: %w", q.Name, err)
	}

	if confirms != nil {
		select {
		case c, ok := <-confirms:
			if !ok || !c.Ack {
				return fmt.Errorf("publisher: %w (queue %q)", errNacked, q.Name)
			}
		case <-ctx.Done():
			return fmt.Errorf("publisher: waiting for confirm: %w", ctx.Err())
		}
	}

	p.logger.Infow("publisher: sent", "queue", q.Name, "body", string(body))
	return nil
}

func (p *AMQPPublisher) closeQuietly(what string, closeFn func() error) {
	if err := closeFn(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.logger.Debugw("publisher: close failed", "resource", what, "error", err)
	}
}
