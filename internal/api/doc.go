// Package api implements the HTTP REST API and WebSocket server for the
// paddy dryer terminal.
//
// This package provides:
//   - PIN login, logout and session endpoints backed by the auth engine
//   - REST endpoints for the dashboard, batches, readings and batch history
//   - WebSocket hub relaying batch events and forced logouts to the kiosk UI
//   - Middleware stack (request ID, logging, recovery, CORS, body limit,
//     session and permission checks, activity refresh)
//   - Prometheus exposition at /metrics/prometheus when a collector is set
//   - The kiosk web bundle at /kiosk/
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between the kiosk UI and the batch lifecycle. Every
// mutation goes through the lifecycle, which checks the operator's
// permission itself; the middleware here only rejects requests early so a
// logged-out terminal gets a 401 before any body is parsed.
//
// # Sessions
//
// The terminal runs a single kiosk session held by the auth engine. Login
// issues a random credential in an HttpOnly cookie, and a request is
// authenticated only when the terminal has a live session and the request
// carries that credential (cookie or Bearer header). Cross-origin callers
// are refused unless listed in api.cors.allowed_origins.
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. Health reports them as
// disabled and the batch endpoints keep working.
package api
