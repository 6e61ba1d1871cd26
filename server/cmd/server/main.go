package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/beaconrelay/beacon/pkg/activity"
	"github.com/beaconrelay/beacon/pkg/presencerpc"
	"github.com/beaconrelay/beacon/server/internal/allowlist"
	"github.com/beaconrelay/beacon/server/internal/api"
	"github.com/beaconrelay/beacon/server/internal/auth"
	"github.com/beaconrelay/beacon/server/internal/config"
	"github.com/beaconrelay/beacon/server/internal/events"
	"github.com/beaconrelay/beacon/server/internal/ingest"
	"github.com/beaconrelay/beacon/server/internal/metrics"
	"github.com/beaconrelay/beacon/server/internal/receiver"
	"github.com/beaconrelay/beacon/server/internal/store"
	"github.com/beaconrelay/beacon/server/internal/ws"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	pflag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("beacon-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.SlogLevel())

	ids, err := cfg.Server.AllowedUsers()
	if err != nil {
		slog.Error("failed to read allow list", "err", err)
		os.Exit(1)
	}
	allow := allowlist.New(ids)

	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"allowed_users", allow.Len(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Snapshot store with background TTL eviction, and the live dispatcher.
	st := store.New[uint64, []activity.Activity](cfg.Server.Snapshot.TTL)
	go st.Run(ctx)
	slog.Info("snapshot store ready", "ttl", st.TTL())
	disp := events.NewDispatcher[uint64, []activity.Activity]()

	reg := metrics.New()
	reg.SetGauge(metrics.Sources, func() float64 { return float64(disp.Stats().Sources) })
	reg.SetGauge(metrics.Subscribers, func() float64 { return float64(disp.Stats().Subscribers) })
	reg.SetGauge(metrics.SnapshotEntries, func() float64 { return float64(st.Len()) })
	reg.SetGauge(metrics.AllowListEntries, func() float64 { return float64(allow.Len()) })

	adapter := ingest.New[uint64, []activity.Activity](st, disp, reg)

	// Hot-reload the allow list and log level.
	go func() {
		err := config.Watch(ctx, *configPath, func(c *config.Config) {
			ids, err := c.Server.AllowedUsers()
			if err != nil {
				slog.Warn("config: allow list not applied", "err", err)
				return
			}
			allow.Replace(ids)
			level.Set(c.Server.SlogLevel())
			slog.Info("allow list updated", "allowed_users", allow.Len())
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	if every := cfg.Server.ReapInterval; every > 0 {
		go reap(ctx, disp, reg, every)
	}

	// gRPC ingestion with optional API key authentication.
	interceptor := auth.APIKeyInterceptor(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	presencerpc.RegisterPresenceServiceServer(grpcSrv, receiver.New(adapter, allow, reg))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port",
			"port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC receiver listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	hub := ws.New(disp, allow, reg)
	go hub.Run(ctx)

	// HTTP: query, SSE, WebSocket and metrics on HTTPPort. No write timeout,
	// streams are long-lived and end when ctx is cancelled.
	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.New(api.Deps{
			Store:      st,
			Dispatcher: disp,
			AllowList:  allow,
			Metrics:    reg,
			KeepAlive:  cfg.Server.Stream.KeepAlive,
			Stream:     hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("beacon-server shutting down")
	grpcSrv.GracefulStop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// reap prunes closed outlets every interval instead of waiting for the next
// publish on their key.
func reap(ctx context.Context, disp *events.Dispatcher[uint64, []activity.Activity], reg *metrics.Registry, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := disp.Reap(); n > 0 {
				reg.Reaped(n)
				slog.Debug("reaped closed subscribers", "count", n)
			}
		}
	}
}
