// workers/daemon.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"bounty-challenge-system/metrics"
	"bounty-challenge-system/utils"
)

// Task is one unit of scheduled work.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// Schedule describes how often a task runs.
type Schedule struct {
	Name             string
	Interval         time.Duration
	StartImmediately bool
	Task             Task
}

// Daemon runs tasks on a gocron scheduler. Each job runs in singleton mode, so a
// slow run delays the next one instead of overlapping it.
type Daemon struct {
	scheduler gocron.Scheduler
	log       *slog.Logger
	clock     clockwork.Clock
}

func NewDaemon(log *slog.Logger, clock clockwork.Clock) (*Daemon, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	scheduler, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(log),
		gocron.WithStopTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Daemon{scheduler: scheduler, log: log, clock: clock}, nil
}

func (d *Daemon) Add(s Schedule) error {
	if s.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", s.Name)
	}
	opts := []gocron.JobOption{
		gocron.WithName(s.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if s.StartImmediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(d.runner(s.Name, s.Task)),
		opts...,
	); err != nil {
		return fmt.Errorf("failed to create job %s: %w", s.Name, err)
	}
	d.log.Info("jobs: scheduled", "job", s.Name, "interval", s.Interval, "start_immediately", s.StartImmediately)
	return nil
}

func (d *Daemon) Start() {
	d.scheduler.Start()
}

func (d *Daemon) Stop() error {
	if err := d.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

func (d *Daemon) runner(name string, task Task) func(ctx context.Context) {
	return func(ctx context.Context) {
		span := sentry.StartSpan(ctx, "job.run", sentry.WithDescription(name))
		defer span.Finish()

		start := d.clock.Now()
		err := task.Run(span.Context())
		metrics.JobRunDuration.WithLabelValues(name).Observe(d.clock.Since(start).Seconds())

		if err != nil {
			span.Status = sentry.SpanStatusInternalError
			metrics.JobRunsTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
			d.log.Error("jobs: run failed", "job", name, "error", err)
			utils.ReportError(ctx, err, map[string]string{"job": name})
			return
		}
		span.Status = sentry.SpanStatusOK
		metrics.JobRunsTotal.WithLabelValues(name, metrics.OutcomeSuccess).Inc()
		d.log.Debug("jobs: run finished", "job", name)
	}
}
