package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/beaconrelay/beacon/pkg/activity"
)

// liveActivity streams a user's activities as server-sent events. Each
// change is one data frame holding the JSON activity list.
func (h *Handler) liveActivity(w http.ResponseWriter, r *http.Request) {
	id, err := CheckUser(r, h.AllowList, h.Metrics)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonErr(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	out, initial, hasInitial := h.Dispatcher.Subscribe(id)
	defer out.Close()
	defer h.Metrics.StreamOpened()()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	flush := func() error {
		if err := bw.Flush(); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := flush(); err != nil {
		return
	}

	slog.Debug("api: stream opened", "user_id", id, "subscriber", out.ID())
	defer slog.Debug("api: stream closed", "user_id", id, "subscriber", out.ID())

	var dedup Dedup
	if hasInitial && dedup.Changed(initial) {
		if writeEvent(bw, initial) != nil || flush() != nil {
			return
		}
	}

	keepAlive := time.NewTicker(h.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := bw.WriteString(":\n\n"); err != nil {
				return
			}
			if flush() != nil {
				return
			}
		case <-out.Ready():
			for _, acts := range out.Drain() {
				if !dedup.Changed(acts) {
					continue
				}
				if err := writeEvent(bw, acts); err != nil {
					return
				}
			}
			if flush() != nil {
				return
			}
		}
	}
}

func writeEvent(bw *bufio.Writer, acts []activity.Activity) error {
	list := ActivityList(acts)
	if list == nil {
		list = ActivityList{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(bw, "data: %s\n\n", b)
	return err
}

// Dedup remembers the last value shown on one stream.
type Dedup struct {
	last []activity.Activity
	seen bool
}

// Changed reports whether acts differs from the previous value and records
// it as the last value shown.
func (d *Dedup) Changed(acts []activity.Activity) bool {
	if d.seen && activity.Equal(d.last, acts) {
		return false
	}
	d.last, d.seen = acts, true
	return true
}
