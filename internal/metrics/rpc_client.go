package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chiaindexer",
		Subsystem: "rpc_client",
		Name:      "operations_total",
		Help:      "Count of outbound calls to the full node and the decoder.",
	}, []string{"client", "operation", "status"})
	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chiaindexer",
		Subsystem: "rpc_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of outbound calls.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300, 1000},
	}, []string{"client", "operation", "status"})
)

// RPCClient tracks metrics for calls to one upstream dependency.
type RPCClient struct {
	client string
}

// NewRPCClient constructs a metrics collector labeled with the upstream name.
func NewRPCClient(client string) *RPCClient {
	if client == "" {
		client = "unknown"
	}
	return &RPCClient{client: client}
}

// Observe records a single call outcome and duration.
func (m RPCClient) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	rpcRequestsTotal.WithLabelValues(m.client, operation, status).Inc()
	rpcRequestDuration.WithLabelValues(m.client, operation, status).Observe(time.Since(started).Seconds())
}
