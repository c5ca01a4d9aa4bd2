package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mirrorSourceQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chiaindexer",
		Subsystem: "mirror_source",
		Name:      "queries_total",
		Help:      "Count of queries against the local ledger mirror database.",
	}, []string{"operation", "status"})
	mirrorSourceQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chiaindexer",
		Subsystem: "mirror_source",
		Name:      "query_duration_seconds",
		Help:      "Duration of queries against the local ledger mirror database.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "status"})
)

// MirrorSource tracks metrics for reads of the ledger mirror database.
type MirrorSource struct{}

func NewMirrorSource() *MirrorSource {
	return &MirrorSource{}
}

// Observe records duration and status of a mirror query.
func (m MirrorSource) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	mirrorSourceQueriesTotal.WithLabelValues(operation, status).Inc()
	mirrorSourceQueryDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
