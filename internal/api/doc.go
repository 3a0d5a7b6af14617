// Package api implements the read-only HTTP API and WebSocket server of the
// presence service.
//
// This package provides:
//   - REST endpoints for the router, its device registry and presence history
//   - A scan trigger that joins any scan already in flight
//   - A WebSocket hub broadcasting device.updated and device.new events
//   - Middleware (request ID, logging, recovery, CORS, optional JWT)
//
// # Security
//
// When security.jwt.secret is set every /api/v1 route except /health requires
// an HS256 bearer token signed with that secret. WebSocket clients that cannot
// set headers pass the token as the "token" query parameter.
//
// # Graceful Degradation
//
// The server serves an empty registry when the engine failed setup, and the
// history route answers 503 when no history store is configured.
package api
