package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beaconrelay/beacon/pkg/activity"
	"github.com/beaconrelay/beacon/server/internal/allowlist"
	"github.com/beaconrelay/beacon/server/internal/api"
	"github.com/beaconrelay/beacon/server/internal/events"
	"github.com/beaconrelay/beacon/server/internal/store"
	wsHub "github.com/beaconrelay/beacon/server/internal/ws"
)

const alice = uint64(111)

type dispatcher = events.Dispatcher[uint64, []activity.Activity]

// --- helpers ----------------------------------------------------------------

// startHub serves the hub behind the api router so the {userID} parameter
// is resolved the same way as in production.
func startHub(t *testing.T) (baseURL string, hub *wsHub.Hub, disp *dispatcher, cancel func()) {
	t.Helper()

	disp = events.NewDispatcher[uint64, []activity.Activity]()
	allow := allowlist.New([]uint64{alice})
	hub = wsHub.New(disp, allow, nil)
	h := api.New(api.Deps{
		Store:      store.New[uint64, []activity.Activity](time.Hour),
		Dispatcher: disp,
		AllowList:  allow,
		Stream:     hub,
	})

	ctx, cancelFn := context.WithCancel(context.Background())
	srv := httptest.NewServer(h)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})
	return srv.URL, hub, disp, cancelFn
}

func dial(t *testing.T, baseURL string, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/live-activity/" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func playing(name string) []activity.Activity {
	return []activity.Activity{{Name: name, Type: "playing"}}
}

// waitCount polls hub.Count until it equals want.
func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Count: got %d, want %d", hub.Count(), want)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesLastValue(t *testing.T) {
	url, _, disp, _ := startHub(t)
	disp.Publish(alice, playing("Foo"))

	conn := dial(t, url, "111")
	m := readMessage(t, conn)

	if m.Event != "activity" || m.UserID != alice {
		t.Errorf("envelope: got event=%q user_id=%d", m.Event, m.UserID)
	}
	if !activity.Equal(m.Data, playing("Foo")) {
		t.Errorf("data: got %+v, want Foo", m.Data)
	}
}

func TestHub_EnvelopeUserIDIsString(t *testing.T) {
	url, hub, disp, _ := startHub(t)
	conn := dial(t, url, "111")
	waitCount(t, hub, 1)
	disp.Publish(alice, nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(raw, &m) //nolint:errcheck
	if m["user_id"] != "111" {
		t.Errorf("user_id: got %#v, want \"111\"", m["user_id"])
	}
	if data, ok := m["data"].([]interface{}); !ok || len(data) != 0 {
		t.Errorf("data: got %#v, want []", m["data"])
	}
}

func TestHub_ForwardsChangesWithoutRepeats(t *testing.T) {
	url, hub, disp, _ := startHub(t)
	conn := dial(t, url, "111")
	waitCount(t, hub, 1)

	disp.Publish(alice, playing("Foo"))
	disp.Publish(alice, playing("Foo"))
	disp.Publish(alice, playing("Bar"))

	if m := readMessage(t, conn); !activity.Equal(m.Data, playing("Foo")) {
		t.Fatalf("first: got %+v, want Foo", m.Data)
	}
	if m := readMessage(t, conn); !activity.Equal(m.Data, playing("Bar")) {
		t.Errorf("second: got %+v, want Bar", m.Data)
	}
}

func TestHub_CountClients(t *testing.T) {
	url, hub, _, _ := startHub(t)
	for i := 0; i < 3; i++ {
		dial(t, url, "111")
	}
	waitCount(t, hub, 3)
}

func TestHub_DisconnectPrunesSubscription(t *testing.T) {
	url, hub, disp, _ := startHub(t)

	conn := dial(t, url, "111")
	waitCount(t, hub, 1)
	conn.Close()
	waitCount(t, hub, 0)

	if res := disp.Publish(alice, playing("Foo")); res.Delivered != 0 || res.Pruned != 1 {
		t.Errorf("publish after disconnect: got %+v, want Pruned=1", res)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	url, hub, _, cancel := startHub(t)

	conn := dial(t, url, "111")
	waitCount(t, hub, 1)

	cancel()
	waitCount(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage after shutdown: got %v, want going-away close", err)
	}
}

func TestHub_RefusesClientsAfterShutdown(t *testing.T) {
	url, hub, _, cancel := startHub(t)
	cancel()

	u := "ws" + strings.TrimPrefix(url, "http") + "/ws/live-activity/111"
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
		if err != nil {
			if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
				t.Fatalf("dial after shutdown: got %v (resp %v), want 503", err, resp)
			}
			break
		}
		// Run has not observed the cancellation yet.
		conn.Close()
		if time.Now().After(deadline) {
			t.Fatal("hub kept accepting clients after shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitCount(t, hub, 0)
}

func TestHub_NotAllowed_Returns400(t *testing.T) {
	url, _, disp, _ := startHub(t)

	u := "ws" + strings.TrimPrefix(url, "http") + "/ws/live-activity/222"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("dial: expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %v, want 400", resp)
	}
	if st := disp.Stats(); st.Sources != 0 {
		t.Errorf("refused stream created %d sources", st.Sources)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	url, _, _, _ := startHub(t)

	resp, err := http.Get(url + "/ws/live-activity/111")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
