// Package metrics exposes Prometheus metrics for the dryer core.
//
// A Collector owns its own registry, so tests and multiple servers in one
// process never collide on metric names. The API serves it at
// /api/v1/metrics/prometheus.
//
// Metric families (namespace "paddydryer"):
//
//	auth_logins_total{outcome}             success, invalid_pin, locked_out, error
//	auth_session_ends_total{reason}        logout, expired, inactive, corrupt
//	batch_events_total{type}               batch.started, batch.reading, ...
//	http_requests_total{method,route,code} one per routed request
//	http_request_duration_seconds{route}
//
// Gauges registered by other components (for example connected WebSocket
// clients) are added with GaugeFunc.
package metrics
