package api

import "github.com/beaconrelay/beacon/pkg/activity"

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	Sources     int    `json:"sources"`
	Subscribers int    `json:"subscribers"`
	Snapshots   int    `json:"snapshots"`
	SnapshotTTL string `json:"snapshot_ttl"`

	// AllowedUsers are decimal user ids, ascending.
	AllowedUsers []string `json:"allowed_users"`
}

// ActivityList is the payload for GET /activity/{userID} and for each SSE
// data frame. It is never nil so it always encodes as a list.
type ActivityList []activity.Activity

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
