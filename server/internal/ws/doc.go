// Package ws serves the WebSocket variant of the live activity stream.
//
// Hub.ServeHTTP is mounted by package api at /ws/live-activity/{userID}.
// It refuses users outside the allow list with 400 before upgrading, then
// subscribes to the user's event source and forwards every change, after
// the last known value, as a JSON envelope:
//
//	{"event": "activity", "user_id": "<id>", "data": [ /* activities */ ]}
//
// Consecutive identical values are suppressed per connection. Hub.Run(ctx)
// blocks until ctx is cancelled, then closes every open connection.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level.
package ws
