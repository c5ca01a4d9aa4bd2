package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chiaindexer",
		Subsystem: "scheduler",
		Name:      "refresh_runs_total",
		Help:      "Count of scheduled job ticks by outcome.",
	}, []string{"job", "status"})
	schedulerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chiaindexer",
		Subsystem: "scheduler",
		Name:      "refresh_run_duration_seconds",
		Help:      "Duration of scheduled job runs.",
		Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1500, 3000},
	}, []string{"job", "status"})
)

// Scheduler tracks refresh scheduler outcomes.
type Scheduler struct{}

// NewScheduler creates a Scheduler metrics collector.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// ObserveRun records a tick outcome. Skipped ticks are counted but not timed.
func (m Scheduler) ObserveRun(job, status string, started time.Time) {
	if job == "" {
		job = "unknown"
	}
	schedulerRunsTotal.WithLabelValues(job, status).Inc()
	if status == "skipped" {
		return
	}
	schedulerRunDuration.WithLabelValues(job, status).Observe(time.Since(started).Seconds())
}
