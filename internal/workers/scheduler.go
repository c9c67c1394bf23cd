// Package workers implements the Background Workers component: a small set of independent, ticker-scheduled tasks — reservation
// sweep, ACK TTL monitor, FD-health monitor, retention/quota report, and
// tool metrics snapshot — each cooperatively cancelable on shutdown.
package workers

import (
	"context"
	"log/slog"
	"time"
)

// Job is one schedulable background task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduledJob struct {
	job      Job
	interval time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
}

// Scheduler runs a set of Jobs on independent tickers, each its own
// goroutine, stopped together on Stop or context cancellation.
type Scheduler struct {
	logger *slog.Logger
	jobs   []scheduledJob
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// AddJob registers job to run every interval. Must be called before Start.
func (s *Scheduler) AddJob(job Job, interval time.Duration) {
	s.jobs = append(s.jobs, scheduledJob{job: job, interval: interval, stop: make(chan struct{})})
}

// Start launches one goroutine per registered job. Each job also runs once
// immediately, rather than waiting a full interval for its first tick.
func (s *Scheduler) Start(ctx context.Context) {
	for i := range s.jobs {
		sj := &s.jobs[i]
		sj.ticker = time.NewTicker(sj.interval)

		go func(sj *scheduledJob) {
			s.logger.Info("starting background worker", "job", sj.job.Name(), "interval", sj.interval)
			s.runOnce(ctx, sj.job)

			for {
				select {
				case <-sj.ticker.C:
					s.runOnce(ctx, sj.job)
				case <-sj.stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}(sj)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		s.logger.Error("background worker failed", "job", job.Name(), "error", err)
	}
}

// Stop halts every job and waits for none of them — callers that need a
// drain guarantee should cancel the context passed to Start and wait on
// their own sync.WaitGroup around job bodies that need it.
func (s *Scheduler) Stop() {
	for i := range s.jobs {
		if s.jobs[i].ticker != nil {
			s.jobs[i].ticker.Stop()
		}
		close(s.jobs[i].stop)
	}
	s.logger.Info("background workers stopped")
}
