// Package shipper sends presence updates to beacon-server over gRPC
// (PresenceService.SendPresence).
//
// Shipper.Ship is non-blocking. Updates wait in an in-memory buffer of
// agent.buffer_size entries; when it is full the oldest update is dropped.
//
// Shipper.Run drains the buffer in order, reconnecting with truncated
// exponential backoff (1s to 60s, ±25% jitter) on connection or send errors.
// An update whose send failed transiently is retried before anything newer,
// so the server never sees a user's updates out of order. Permanent errors
// (Unauthenticated, PermissionDenied, InvalidArgument) discard the update.
//
// Auth: mTLS via credentials.NewTLS, API key via a gRPC metadata header, or
// plaintext for local development.
package shipper
