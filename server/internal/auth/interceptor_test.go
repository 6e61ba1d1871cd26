package auth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/beaconrelay/beacon/pkg/presencerpc"
)

var info = &grpc.UnaryServerInfo{FullMethod: presencerpc.SendPresenceMethod}

func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func withHeader(header, val string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(header, val))
}

func TestAPIKeyInterceptor_PassThrough(t *testing.T) {
	cases := []struct {
		name, mode, key string
	}{
		{"mode none", "none", "secret"},
		{"mode empty", "", "secret"},
		{"no key configured", ModeAPIKey, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i := APIKeyInterceptor(tc.mode, "x-api-key", tc.key)
			res, err := i(context.Background(), nil, info, passHandler)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor_CorrectKey_Passes(t *testing.T) {
	i := APIKeyInterceptor(ModeAPIKey, "x-api-key", "supersecret")
	res, err := i(withHeader("x-api-key", "supersecret"), nil, info, passHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok" {
		t.Errorf("result: got %v, want ok", res)
	}
}

func TestAPIKeyInterceptor_Rejects(t *testing.T) {
	cases := []struct {
		name string
		ctx  context.Context
	}{
		{"wrong key", withHeader("x-api-key", "wrong")},
		{"key prefix", withHeader("x-api-key", "super")},
		{"other header", withHeader("x-beacon-token", "supersecret")},
		{"empty metadata", metadata.NewIncomingContext(context.Background(), metadata.MD{})},
		{"no metadata", context.Background()},
	}
	i := APIKeyInterceptor(ModeAPIKey, "x-api-key", "supersecret")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := i(tc.ctx, nil, info, passHandler)
			if code := status.Code(err); code != codes.Unauthenticated {
				t.Errorf("code: got %v, want Unauthenticated", code)
			}
		})
	}
}

func TestAPIKeyInterceptor_CustomHeader(t *testing.T) {
	i := APIKeyInterceptor(ModeAPIKey, "x-beacon-token", "mytoken")
	if _, err := i(withHeader("x-beacon-token", "mytoken"), nil, info, passHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
