package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "export off", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the ping error when Connect cannot reach a
	// healthy server.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by Record and HealthCheck on a client that
	// was never connected or has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")
)
