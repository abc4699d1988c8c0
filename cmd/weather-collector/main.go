package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	httpapi "github.com/i474232898/weather-collector/internal/api/http"
	"github.com/i474232898/weather-collector/internal/config"
	"github.com/i474232898/weather-collector/internal/logging"
	"github.com/i474232898/weather-collector/internal/queue"
	"github.com/i474232898/weather-collector/internal/scheduler"
	"github.com/i474232898/weather-collector/internal/store"
	"github.com/i474232898/weather-collector/internal/weather"
	"github.com/i474232898/weather-collector/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Infow("starting weather data collector",
		"location", cfg.Location.Key(),
		"interval", cfg.FetchInterval.String(),
		"publisher", cfg.Publisher.Kind,
	)

	provider := providers.NewOpenMeteoProvider(
		providers.NewHTTPClient(cfg.HTTPTimeout),
		cfg.OpenMeteoURL,
		providers.BackoffConfig{
			MaxRetries:      cfg.FetchMaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		cfg.FetchInterval,
	)

	publisher, err := queue.New(cfg.Publisher, logger)
	if err != nil {
		logger.Fatalw("failed to build publisher", "error", err)
	}

	opts := []weather.CollectorOption{weather.WithTickTimeout(cfg.TickTimeout)}

	// The observation history and its API only exist when API_ADDR is set.
	var app *fiber.App
	if cfg.APIAddr != "" {
		memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
		opts = append(opts, weather.WithRecorder(memStore))
		app = httpapi.NewApp(memStore, cfg.Location)
	}

	collector := weather.NewCollector(cfg.Location, provider, publisher, logger, opts...)

	sched := scheduler.New(cfg.FetchInterval, collector.Tick, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalw("failed to start scheduler", "error", err)
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app != nil {
		go func() {
			logger.Infow("api: listening", "addr", cfg.APIAddr)
			if err := app.Listen(cfg.APIAddr); err != nil {
				logger.Errorw("api: server stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Errorw("error during api shutdown", "error", err)
		}
	}
}
