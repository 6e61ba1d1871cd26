package allowlist

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// List is a concurrency-safe, atomically replaceable set of user ids.
type List struct {
	ids atomic.Pointer[map[uint64]struct{}]
}

// New creates a List holding ids.
func New(ids []uint64) *List {
	l := &List{}
	l.Replace(ids)
	return l
}

// Allowed reports whether id is in the list.
func (l *List) Allowed(id uint64) bool {
	_, ok := (*l.ids.Load())[id]
	return ok
}

// Replace swaps in a new set of ids.
func (l *List) Replace(ids []uint64) {
	m := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	l.ids.Store(&m)
}

// Len returns the number of ids in the list.
func (l *List) Len() int { return len(*l.ids.Load()) }

// IDs returns the ids in ascending order.
func (l *List) IDs() []uint64 {
	m := *l.ids.Load()
	out := make([]uint64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseIDs parses a comma-separated list of user ids. Blank entries are
// skipped.
func ParseIDs(s string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("allowlist: invalid user id %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}
