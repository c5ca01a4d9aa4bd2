// Package scheduler runs periodic jobs with single-flight execution and a wall-clock timeout.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/clock"
	"go.uber.org/zap"
)

// Run outcomes reported to Metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
	StatusSkipped = "skipped"
)

// Job is a unit of periodic work. An Interval of zero disables the job.
type Job struct {
	Name       string
	Work       func(ctx context.Context) error
	StartDelay time.Duration
	Interval   time.Duration
	Timeout    time.Duration
}

// Scheduler invokes every enabled job on its interval. A job never overlaps
// itself: ticks that fire while it is still running are dropped. When a run
// outlives its timeout the run's context is canceled, but the job keeps its
// slot until the work actually returns.
type Scheduler struct {
	logger  *zap.Logger
	metrics Metrics
	jobs    []Job
	sleep   func(context.Context, time.Duration) error
}

// New validates jobs and constructs a Scheduler.
func New(logger *zap.Logger, metrics Metrics, jobs ...Job) (*Scheduler, error) {
	if metrics == nil {
		return nil, errors.New("scheduler metrics is required")
	}
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job.Name == "" {
			return nil, errors.New("job name is required")
		}
		if _, ok := seen[job.Name]; ok {
			return nil, fmt.Errorf("job %s registered twice", job.Name)
		}
		seen[job.Name] = struct{}{}
		if job.Work == nil {
			return nil, fmt.Errorf("job %s: work is required", job.Name)
		}
		if job.Interval < 0 || job.StartDelay < 0 {
			return nil, fmt.Errorf("job %s: negative interval or start delay", job.Name)
		}
		if job.Interval > 0 && job.Timeout <= 0 {
			return nil, fmt.Errorf("job %s: timeout must be positive", job.Name)
		}
	}

	return &Scheduler{
		logger:  logger,
		metrics: metrics,
		jobs:    jobs,
		sleep:   clock.SleepWithContext,
	}, nil
}

// Run drives all enabled jobs until ctx is canceled, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	wg := sync.WaitGroup{}
	for _, job := range s.jobs {
		logger := s.logger.With(zap.String("job", job.Name))
		if job.Interval == 0 {
			logger.Info("job disabled")
			continue
		}

		r := &runner{job: job, logger: logger, metrics: s.metrics, sleep: s.sleep}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()

	return ctx.Err()
}

type runner struct {
	job     Job
	logger  *zap.Logger
	metrics Metrics
	sleep   func(context.Context, time.Duration) error
	running atomic.Bool
}

func (r *runner) loop(ctx context.Context) {
	inflight := sync.WaitGroup{}
	defer inflight.Wait()

	r.logger.Info("job scheduled",
		zap.Duration("start_delay", r.job.StartDelay),
		zap.Duration("interval", r.job.Interval),
		zap.Duration("timeout", r.job.Timeout),
	)
	if err := r.sleep(ctx, r.job.StartDelay); err != nil {
		return
	}

	ticker := time.NewTicker(r.job.Interval)
	defer ticker.Stop()

	for {
		r.tick(ctx, &inflight)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *runner) tick(ctx context.Context, inflight *sync.WaitGroup) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Debug("previous run still in progress, tick skipped")
		r.metrics.ObserveRun(r.job.Name, StatusSkipped, time.Now())
		return
	}

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		defer r.running.Store(false)
		r.execute(ctx)
	}()
}

func (r *runner) execute(ctx context.Context) {
	started := time.Now()
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("job panicked: %v", p)
			}
		}()
		done <- r.job.Work(workCtx)
	}()

	timer := time.NewTimer(r.job.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		elapsed := time.Since(started)
		switch {
		case err == nil:
			r.logger.Info("job completed", zap.Duration("elapsed", elapsed))
			r.metrics.ObserveRun(r.job.Name, StatusSuccess, started)
		case ctx.Err() != nil && errors.Is(err, context.Canceled):
			r.logger.Info("job stopped by shutdown", zap.Duration("elapsed", elapsed))
			r.metrics.ObserveRun(r.job.Name, StatusError, started)
		default:
			r.logger.Error("job faulted", zap.Duration("elapsed", elapsed), zap.Error(err))
			r.metrics.ObserveRun(r.job.Name, StatusError, started)
		}
	case <-timer.C:
		cancel()
		r.logger.Warn("job timed out, cancellation requested",
			zap.Duration("elapsed", time.Since(started)),
			zap.Duration("timeout", r.job.Timeout),
		)
		r.metrics.ObserveRun(r.job.Name, StatusTimeout, started)

		err := <-done
		r.logger.Info("timed out job returned", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
	}
}
