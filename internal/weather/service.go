package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Collector fetches the current conditions for one location and publishes them.
type Collector struct {
	location  Coordinates
	provider  Provider
	publisher Publisher
	recorder  Recorder
	timeout   time.Duration
	logger    *zap.SugaredLogger

	now func() time.Time
}

// CollectorOption customizes a Collector.
type CollectorOption func(*Collector)

// WithRecorder saves every published observation into r.
func WithRecorder(r Recorder) CollectorOption {
	return func(c *Collector) { c.recorder = r }
}

// WithTickTimeout bounds a whole tick (fetch and publish).
func WithTickTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) { c.timeout = d }
}

// WithClock overrides the clock used to stamp observations.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a new Collector.
func NewCollector(location Coordinates, provider Provider, publisher Publisher, logger *zap.SugaredLogger, opts ...CollectorOption) *Collector {
	c := &Collector{
		location:  location,
		provider:  provider,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect fetches the current conditions and stamps them with the capture time.
func (c *Collector) Collect(ctx context.Context) (Observation, error) {
	r, err := c.provider.Current(ctx, c.location)
	if err != nil {
		return Observation{}, err
	}

	return Observation{
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		Temperature:   r.Temperature,
		Humidity:      r.Humidity,
		IsDay:         r.IsDay,
		Precipitation: r.Precipitation,
		Timestamp:     c.now().Format(TimestampLayout),
	}, nil
}

// Tick runs one collection and publish. Failures are logged, never returned:
// a bad upstream response or a broker hiccup must not stop the schedule.
func (c *Collector) Tick(ctx context.Context) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Infow("collector: fetching weather data", "provider", c.provider.Name(), "location", c.location.Key())

	obs, err := c.Collect(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCurrentData) {
			c.logger.Infow("collector: no current weather data found; skipping publish", "location", c.location.Key())
			return
		}
		c.logger.Errorw("collector: error fetching weather data", "location", c.location.Key(), "error", err)
		return
	}

	if err := c.publish(ctx, obs); err != nil {
		c.logger.Errorw("collector: publish failed", "location", c.location.Key(), "error", err)
		return
	}

	if c.recorder != nil {
		c.recorder.Save(c.location, obs)
	}
}

func (c *Collector) publish(ctx context.Context, obs Observation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	return c.publisher.Publish(ctx, obs)
}
