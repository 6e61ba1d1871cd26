package receiver

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/beaconrelay/beacon/pkg/activity"
	"github.com/beaconrelay/beacon/pkg/presencerpc"
	"github.com/beaconrelay/beacon/server/internal/allowlist"
	"github.com/beaconrelay/beacon/server/internal/events"
	"github.com/beaconrelay/beacon/server/internal/metrics"
)

// Ingester applies a normalized update. *ingest.Adapter satisfies it.
type Ingester interface {
	Ingest(userID uint64, acts []activity.Activity) events.PublishResult
}

// Receiver implements presencerpc.PresenceServiceServer.
type Receiver struct {
	presencerpc.UnimplementedPresenceServiceServer
	ing     Ingester
	allow   *allowlist.List
	metrics *metrics.Registry
}

// New creates a Receiver. m may be nil.
func New(ing Ingester, allow *allowlist.List, m *metrics.Registry) *Receiver {
	return &Receiver{ing: ing, allow: allow, metrics: m}
}

// SendPresence is called by beacon-agent for every observed presence change.
func (r *Receiver) SendPresence(ctx context.Context, u *presencerpc.PresenceUpdate) (*presencerpc.SendResponse, error) {
	if u.UserID == 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	if !r.allow.Allowed(u.UserID) {
		if r.metrics != nil {
			r.metrics.Rejected()
		}
		slog.Debug("receiver: user not in allow list", "user_id", u.UserID)
		return nil, status.Error(codes.PermissionDenied, "user not in allow list")
	}

	acts := activity.FromPresence(u.Presence())
	res := r.ing.Ingest(u.UserID, acts)

	slog.Debug("receiver: presence ingested",
		"user_id", u.UserID,
		"activities", len(acts),
		"delivered", res.Delivered,
	)

	return &presencerpc.SendResponse{Ok: true, Delivered: int32(res.Delivered)}, nil
}
