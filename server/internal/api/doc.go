// Package api implements the HTTP boundary of beacon-server.
//
// New(Deps) returns a chi router that serves:
//
//	GET /healthz                       liveness plus dispatcher and store counts
//	GET /activity/{userID}             latest activities; [] when unknown or stale
//	GET /live-activity/{userID}        SSE stream of activity changes
//	GET /ws/live-activity/{userID}     WebSocket stream, when Deps.Stream is set
//	GET /metrics                       Prometheus text exposition
//
// /activity answers with CBOR when the request accepts application/cbor and
// with JSON otherwise. The live streams refuse users outside the allow list
// with 400, then send the last known value followed by every change.
// Consecutive identical values are suppressed per stream.
package api
