package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron specs. Runs of the same job never overlap.
type Scheduler struct {
	c       *cron.Cron
	log     zerolog.Logger
	timeout time.Duration
}

func NewScheduler(log zerolog.Logger, jobTimeout time.Duration) *Scheduler {
	log = log.With().Str("component", "cron").Logger()
	adapter := cronLogger{log: log}
	return &Scheduler{
		c: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		log:     log,
		timeout: jobTimeout,
	}
}

func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.c.AddFunc(spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("could not schedule %s (%q): %w", job.Name(), spec, err)
	}
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop stops scheduling and waits for running jobs, at most until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("stopped before running jobs finished")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
