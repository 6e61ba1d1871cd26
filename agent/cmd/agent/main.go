package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/beaconrelay/beacon/agent/internal/config"
	"github.com/beaconrelay/beacon/agent/internal/feed"
	"github.com/beaconrelay/beacon/agent/internal/shipper"
	"github.com/beaconrelay/beacon/pkg/presencerpc"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	feedPath := pflag.String("feed", "", "presence feed to read, overriding agent.feed (\"-\" for stdin)")
	pflag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("beacon-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Agent.SlogLevel())
	if *feedPath != "" {
		cfg.Agent.Feed = *feedPath
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"feed", cfg.Agent.Feed,
		"buffer_size", cfg.Agent.BufferSize,
		"auth_mode", cfg.Agent.ServerAuth.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := feed.Open(cfg.Agent.Feed)
	if err != nil {
		slog.Error("failed to open feed", "err", err)
		os.Exit(1)
	}
	defer src.Close()

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	// Read the feed until EOF; keep shipping the backlog until signalled.
	go func() {
		st, err := feed.Run(ctx, src, func(u *presencerpc.PresenceUpdate) {
			ship.Ship(u)
		})
		if err != nil {
			slog.Error("feed stopped", "err", err)
		}
		slog.Info("feed finished",
			"lines", st.Lines, "decoded", st.Decoded, "skipped", st.Skipped)
	}()

	<-ctx.Done()
	st := ship.Stats()
	slog.Info("beacon-agent shutting down",
		"sent", st.Sent, "dropped", st.Dropped, "discarded", st.Discarded)
}
