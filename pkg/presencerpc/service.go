package presencerpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/beaconrelay/beacon/pkg/activity"
)

// Fully-qualified names.
const (
	ServiceName        = "beacon.v1.PresenceService"
	SendPresenceMethod = "/beacon.v1.PresenceService/SendPresence"
)

// PresenceUpdate is one observed presence change for a user.
type PresenceUpdate struct {
	UserID     uint64                 `json:"user_id,string"`
	Activities []activity.RawActivity `json:"activities"`
}

// Presence converts the update to the domain type.
func (u *PresenceUpdate) Presence() activity.Presence {
	return activity.Presence{UserID: u.UserID, Activities: u.Activities}
}

// SendResponse acknowledges a PresenceUpdate.
type SendResponse struct {
	Ok bool `json:"ok"`
	// Delivered is the number of live subscribers the update reached.
	Delivered int32  `json:"delivered"`
	Message   string `json:"message,omitempty"`
}

// PresenceServiceServer is implemented by the ingestion endpoint.
type PresenceServiceServer interface {
	SendPresence(context.Context, *PresenceUpdate) (*SendResponse, error)
}

// UnimplementedPresenceServiceServer can be embedded for forward compatibility.
type UnimplementedPresenceServiceServer struct{}

func (UnimplementedPresenceServiceServer) SendPresence(context.Context, *PresenceUpdate) (*SendResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SendPresence not implemented")
}

// RegisterPresenceServiceServer registers srv with s.
func RegisterPresenceServiceServer(s grpc.ServiceRegistrar, srv PresenceServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PresenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendPresence", Handler: sendPresenceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "beacon/v1/presence.proto",
}

func sendPresenceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PresenceUpdate)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServiceServer).SendPresence(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendPresenceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PresenceServiceServer).SendPresence(ctx, req.(*PresenceUpdate))
	}
	return interceptor(ctx, in, info, handler)
}

// PresenceServiceClient is the client API for PresenceService.
type PresenceServiceClient interface {
	SendPresence(ctx context.Context, in *PresenceUpdate, opts ...grpc.CallOption) (*SendResponse, error)
}

type presenceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPresenceServiceClient returns a client that speaks the JSON codec.
func NewPresenceServiceClient(cc grpc.ClientConnInterface) PresenceServiceClient {
	return &presenceServiceClient{cc: cc}
}

func (c *presenceServiceClient) SendPresence(ctx context.Context, in *PresenceUpdate, opts ...grpc.CallOption) (*SendResponse, error) {
	out := new(SendResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, SendPresenceMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
