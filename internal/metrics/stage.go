package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageBatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chiaindexer",
		Subsystem: "stage",
		Name:      "batches_total",
		Help:      "Count of processed stage batches.",
	}, []string{"stage", "status"})
	stageBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chiaindexer",
		Subsystem: "stage",
		Name:      "batch_duration_seconds",
		Help:      "Duration of a stage batch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage", "status"})
	stageBatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chiaindexer",
		Subsystem: "stage",
		Name:      "items_total",
		Help:      "Count of rows written by stage batches.",
	}, []string{"stage"})
	stageItemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chiaindexer",
		Subsystem: "stage",
		Name:      "item_failures_total",
		Help:      "Count of items isolated as failed within a batch.",
	}, []string{"stage"})
	stageWatermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chiaindexer",
		Subsystem: "stage",
		Name:      "watermark",
		Help:      "Last committed watermark of a stage.",
	}, []string{"stage", "cursor"})
)

// Stage tracks batch metrics of one indexing stage.
type Stage struct {
	stage string
}

// NewStage constructs a Stage collector.
func NewStage(stage string) *Stage {
	if stage == "" {
		stage = "unknown"
	}
	return &Stage{stage: stage}
}

// ObserveBatch records a batch outcome, its duration and the rows it wrote.
func (m Stage) ObserveBatch(err error, items int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	stageBatchTotal.WithLabelValues(m.stage, status).Inc()
	stageBatchDuration.WithLabelValues(m.stage, status).Observe(time.Since(started).Seconds())
	if err == nil && items > 0 {
		stageBatchItems.WithLabelValues(m.stage).Add(float64(items))
	}
}

// ObserveItemFailures records items isolated as failed.
func (m Stage) ObserveItemFailures(count int) {
	if count <= 0 {
		return
	}
	stageItemFailures.WithLabelValues(m.stage).Add(float64(count))
}

// ObserveWatermark exports the committed value of a cursor.
func (m Stage) ObserveWatermark(cursor string, value int64) {
	stageWatermark.WithLabelValues(m.stage, cursor).Set(float64(value))
}
