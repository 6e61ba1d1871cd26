package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/beaconrelay/beacon/agent/internal/config"
	"github.com/beaconrelay/beacon/pkg/presencerpc"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// Stats counts shipping outcomes.
type Stats struct {
	Sent      uint64
	Dropped   uint64
	Discarded uint64
}

// Shipper buffers presence updates and ships them to beacon-server.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan *presencerpc.PresenceUpdate
	dialFn dialFunc // injectable for tests

	// pending is an update whose send failed transiently. Only Run touches it.
	pending *presencerpc.PresenceUpdate

	sent, dropped, discarded atomic.Uint64
}

// dialFunc opens a gRPC connection. Tests replace it to reach a loopback
// server.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *presencerpc.PresenceUpdate, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues u. If the buffer is full the oldest entry is evicted.
func (s *Shipper) Ship(u *presencerpc.PresenceUpdate) {
	for {
		select {
		case s.buf <- u:
			return
		default:
		}
		select {
		case old := <-s.buf:
			s.dropped.Add(1)
			slog.Warn("shipper: buffer full, evicted oldest update",
				"user_id", old.UserID, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Stats returns the counts so far.
func (s *Shipper) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Dropped: s.dropped.Load(), Discarded: s.discarded.Load()}
}

// Run drains the buffer, reconnecting with backoff when the connection is
// lost. It blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)

		err = s.drain(ctx, conn, bo)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends the pending update, then buffered ones, until a send fails
// transiently or ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn, bo *backoff) error {
	client := presencerpc.NewPresenceServiceClient(conn)

	for {
		u := s.pending
		if u == nil {
			select {
			case <-ctx.Done():
				return nil
			case u = <-s.buf:
			}
		}

		err := s.send(ctx, client, u)
		switch {
		case err == nil:
			s.pending = nil
			bo.reset()
		case isPermanentError(err):
			s.pending = nil
			s.discarded.Add(1)
			slog.Error("shipper: permanent send error, discarding update",
				"user_id", u.UserID, "err", err)
		default:
			s.pending = u
			return fmt.Errorf("send: %w", err)
		}
	}
}

func (s *Shipper) send(ctx context.Context, client presencerpc.PresenceServiceClient, u *presencerpc.PresenceUpdate) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	if s.cfg.ServerAuth.Mode == "apikey" {
		sendCtx = metadata.AppendToOutgoingContext(sendCtx,
			s.cfg.ServerAuth.EffectiveHeader(), s.cfg.ServerAuth.Key())
	}

	resp, err := client.SendPresence(sendCtx, u)
	if err != nil {
		return err
	}
	s.sent.Add(1)
	if !resp.Ok {
		slog.Warn("shipper: server did not accept update",
			"user_id", u.UserID, "message", resp.Message)
		return nil
	}
	slog.Debug("shipper: update delivered",
		"user_id", u.UserID, "subscribers", resp.Delivered)
	return nil
}

// isPermanentError reports whether retrying err cannot succeed.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied, codes.Unimplemented:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // DialContext is deprecated but still supported
}

// dialOptions picks transport credentials from the server auth config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	auth := cfg.ServerAuth
	switch {
	case auth.Mode == "mtls":
		creds, err := buildTLSCreds(auth, true)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	case auth.Mode == "apikey" && auth.CAFile != "":
		creds, err := buildTLSCreds(auth, false)
		if err != nil {
			return nil, fmt.Errorf("shipper: build tls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default:
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildTLSCreds loads the CA and, when withClientCert is set, the client
// key pair.
func buildTLSCreds(auth config.AuthConfig, withClientCert bool) (credentials.TransportCredentials, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if withClientCert {
		cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
