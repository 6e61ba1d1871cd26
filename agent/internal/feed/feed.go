package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/beaconrelay/beacon/pkg/presencerpc"
)

// maxLine bounds a single feed line.
const maxLine = 1 << 20

var errNoUserID = errors.New("missing user_id")

// Stats counts what a Reader has seen.
type Stats struct {
	Lines   int
	Decoded int
	Skipped int
}

// Reader decodes presence updates from a line-oriented stream.
type Reader struct {
	sc    *bufio.Scanner
	stats Stats
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Reader{sc: sc}
}

// Next returns the next valid update. It returns io.EOF at the end of the
// stream and a non-nil error if the stream itself fails.
func (r *Reader) Next() (*presencerpc.PresenceUpdate, error) {
	for r.sc.Scan() {
		r.stats.Lines++
		line := r.sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		u, err := decode(line)
		if err != nil {
			r.stats.Skipped++
			slog.Warn("feed: skipping malformed line", "line", r.stats.Lines, "err", err)
			continue
		}
		r.stats.Decoded++
		return u, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("feed: read: %w", err)
	}
	return nil, io.EOF
}

// Stats returns the counts so far.
func (r *Reader) Stats() Stats { return r.stats }

// Run decodes r until EOF or ctx is cancelled, calling fn for each update.
// Cancellation is observed between lines.
func Run(ctx context.Context, src io.Reader, fn func(*presencerpc.PresenceUpdate)) (Stats, error) {
	r := NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return r.Stats(), nil
		}
		u, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Stats(), nil
		}
		if err != nil {
			return r.Stats(), err
		}
		fn(u)
	}
}

// Open returns the feed named by path; "-" is stdin.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open: %w", err)
	}
	return f, nil
}

func decode(line []byte) (*presencerpc.PresenceUpdate, error) {
	var u presencerpc.PresenceUpdate
	if err := json.Unmarshal(line, &u); err != nil {
		return nil, err
	}
	if u.UserID == 0 {
		return nil, errNoUserID
	}
	return &u, nil
}
