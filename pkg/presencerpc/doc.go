// Package presencerpc is the wire contract between beacon-agent and
// beacon-server: the beacon.v1.PresenceService gRPC service and its
// messages.
//
// Messages are plain Go structs carried by a JSON codec registered under
// the "json" content-subtype, so no generated code is involved. Clients
// built with NewPresenceServiceClient always request that subtype; the
// server picks the codec from the request's content-type.
//
//	rpc SendPresence(PresenceUpdate) returns (SendResponse)
package presencerpc
