package influxdb

import "errors"

// Connect and HealthCheck wrap the underlying cause in these, so match
// them with errors.Is.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// The core runs without telemetry in that case.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	ErrConnectionFailed = errors.New("influxdb: cannot reach server")
	ErrUnhealthy        = errors.New("influxdb: server reports unhealthy")

	// ErrNotConnected is returned once the client has been closed.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps batched write failures passed to the
	// SetOnError callback. Points in a failed batch are not retried.
	ErrWriteFailed = errors.New("influxdb: point write failed")
)
