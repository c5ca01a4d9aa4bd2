package decoder

import "time"

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// RPCMetrics records metrics for decoder calls.
	RPCMetrics interface {
		Observe(operation string, err error, started time.Time)
	}
)
