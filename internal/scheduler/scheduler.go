package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// DefaultInterval is used when a non-positive interval is configured (0.2 hours).
const DefaultInterval = 12 * time.Minute

// Job is the work run on every tick.
type Job func(ctx context.Context)

// Scheduler runs a job immediately and then at a fixed interval.
// Runs never overlap: a slow run delays the next one.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       Job
	interval  time.Duration
	logger    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(interval time.Duration, job Job, logger *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.Local),
		job:       job,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Interval reports the effective tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens right away.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().StartImmediately().Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Infow("scheduler: started", "interval", s.interval.String())
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("scheduler: job panicked", "panic", r)
		}
	}()

	start := time.Now()
	s.logger.Debug("scheduler: running job")
	s.job(s.ctx)
	s.logger.Debugw("scheduler: completed job", "took", time.Since(start).String())
}

// Stop stops the scheduler and cancels the context handed to a running job.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.logger.Info("scheduler: stopped")
}
