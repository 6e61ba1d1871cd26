package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/beaconrelay/beacon/pkg/activity"
	"github.com/beaconrelay/beacon/server/internal/allowlist"
	"github.com/beaconrelay/beacon/server/internal/events"
	"github.com/beaconrelay/beacon/server/internal/metrics"
	"github.com/beaconrelay/beacon/server/internal/store"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"

	// DefaultKeepAlive is the SSE keep-alive interval used when Deps.KeepAlive
	// is zero.
	DefaultKeepAlive = 10 * time.Second
)

// ErrNotAllowed is returned by CheckUser for users outside the allow list.
var ErrNotAllowed = errors.New("user not in allow list")

var cborEnc cbor.EncMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("api: CBOR encoder initialization failed: " + err.Error())
	}
}

// Deps are the collaborators of the HTTP boundary.
type Deps struct {
	Store      *store.Store[uint64, []activity.Activity]
	Dispatcher *events.Dispatcher[uint64, []activity.Activity]
	AllowList  *allowlist.List
	Metrics    *metrics.Registry
	KeepAlive  time.Duration

	// Stream serves GET /ws/live-activity/{userID} when non-nil.
	Stream http.Handler
}

// Handler serves the beacon HTTP API.
type Handler struct {
	Deps
	router chi.Router
}

// New creates a Handler and registers all routes.
func New(d Deps) *Handler {
	if d.KeepAlive <= 0 {
		d.KeepAlive = DefaultKeepAlive
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	h := &Handler{Deps: d}

	r := chi.NewRouter()
	r.Use(permissiveCORS())
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/activity/{userID}", h.activity)
	r.Get("/live-activity/{userID}", h.liveActivity)
	if d.Stream != nil {
		r.Method(http.MethodGet, "/ws/live-activity/{userID}", d.Stream)
	}
	r.Method(http.MethodGet, "/metrics", d.Metrics)

	h.router = r
	return h
}

// permissiveCORS lets browser clients on any origin read the API. The
// request origin is mirrored so credentialed requests work too.
func permissiveCORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(*http.Request, string) bool { return true },
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	st := h.Dispatcher.Stats()
	allowed := []string{}
	for _, id := range h.AllowList.IDs() {
		allowed = append(allowed, strconv.FormatUint(id, 10))
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Sources:      st.Sources,
		Subscribers:  st.Subscribers,
		Snapshots:    h.Store.Len(),
		SnapshotTTL:  h.Store.TTL().String(),
		AllowedUsers: allowed,
	})
}

// activity returns the stored activities for a user. Unknown and stale
// users get an empty list, never an error.
func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	id, err := UserID(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	acts, ok := h.Store.Get(id)
	h.Metrics.SnapshotLookup(ok)
	list := ActivityList(acts)
	if list == nil {
		list = ActivityList{}
	}

	if strings.Contains(r.Header.Get("Accept"), contentTypeCBOR) {
		b, err := cborEnc.Marshal(list)
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, "encode failed")
			return
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		w.WriteHeader(http.StatusOK)
		w.Write(b) //nolint:errcheck
		return
	}
	jsonResp(w, http.StatusOK, list)
}

// --- helpers ----------------------------------------------------------------

// UserID parses the {userID} URL parameter.
func UserID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// CheckUser parses the {userID} parameter and checks it against the allow
// list, counting refusals in m. Streaming handlers call it before upgrading.
func CheckUser(r *http.Request, allow *allowlist.List, m *metrics.Registry) (uint64, error) {
	id, err := UserID(r)
	if err != nil {
		return 0, err
	}
	if !allow.Allowed(id) {
		if m != nil {
			m.Rejected()
		}
		return 0, ErrNotAllowed
	}
	return id, nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			slog.Debug("api: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// JSONError writes a JSON error body.
func JSONError(w http.ResponseWriter, code int, msg string) { jsonErr(w, code, msg) }

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
