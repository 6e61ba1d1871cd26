// Package receiver implements presencerpc.PresenceServiceServer, the gRPC
// endpoint that accepts presence updates from beacon-agent instances.
//
// Receiver.SendPresence rejects a zero user_id with codes.InvalidArgument
// and users outside the allow list with codes.PermissionDenied. Accepted
// updates are normalized and handed to the ingestion adapter, which stores
// them and fans them out to live subscribers. Authentication runs upstream
// in the gRPC interceptor (see package auth).
package receiver
