// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort      : port for the presence ingestion endpoint (default 50051)
//   - HTTPPort      : port for queries, SSE and WebSocket streams (default 2223)
//   - LogLevel      : debug | info | warn | error (default info)
//   - Auth.Mode     : "apikey" or "none"
//   - Auth.KeyEnv   : environment variable holding the expected API key
//   - Auth.Header   : gRPC metadata key (default "x-api-key")
//   - Snapshot.TTL  : how long a user's last state answers queries (default 1h)
//   - Stream.KeepAlive: SSE keep-alive interval (default 10s)
//   - ReapInterval  : periodic pruning of closed subscribers (default off)
//   - AllowList     : user ids to relay, merged with AllowListEnv (default ALLOW_LIST)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on change via fsnotify; the
// server uses it to apply allow-list edits without a restart.
package config
