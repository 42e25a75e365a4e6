package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"amora-platform/internal/callstore"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(userID, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func waitConnected(t *testing.T, hub *Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Connected(userID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %s never connected", userID)
}

func TestHub_SendToUser(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "bob")
	waitConnected(t, hub, "bob")

	if ok := hub.SendToUser("bob", EventIncomingCall, map[string]string{"call_id": "c1"}); !ok {
		t.Fatalf("send to connected user failed")
	}
	env := readEnvelope(t, conn)
	if env.Type != EventIncomingCall {
		t.Fatalf("type = %s", env.Type)
	}

	if ok := hub.SendToUser("nobody", EventIncomingCall, nil); ok {
		t.Fatalf("send to absent user reported success")
	}
}

// storeSubscriber adapts a bare MemoryStore to the CallSubscriber contract.
type storeSubscriber struct{ *callstore.MemoryStore }

func (s storeSubscriber) Get(ctx context.Context, id string) (callstore.Record, error) {
	rec, ok, err := s.MemoryStore.Get(ctx, id)
	if err != nil {
		return callstore.Record{}, err
	}
	if !ok {
		return callstore.Record{}, callstore.ErrNotFound
	}
	return rec, nil
}

func TestHub_WatchCallForwardsUpdatesAndTombstone(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "callee")
	waitConnected(t, hub, "callee")

	store := callstore.NewMemoryStore()
	ctx := context.Background()
	rec := callstore.Record{ID: "c1", From: "caller", To: "callee", Status: callstore.StatusRinging}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	hub.WatchCall(storeSubscriber{store}, rec)

	if _, err := store.SetStatus(ctx, "c1", callstore.StatusAccepted); err != nil {
		t.Fatalf("set status: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != EventCallUpdate {
		t.Fatalf("type = %s, want call.update", env.Type)
	}
	var got callstore.Record
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.Status != callstore.StatusAccepted {
		t.Fatalf("status = %s", got.Status)
	}

	if err := store.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	env = readEnvelope(t, conn)
	if env.Type != EventCallGone {
		t.Fatalf("type = %s, want call.gone", env.Type)
	}
}

func TestHub_WatchCallCatchesWriteBeforeSubscribe(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "caller")
	waitConnected(t, hub, "caller")

	store := callstore.NewMemoryStore()
	ctx := context.Background()
	rec := callstore.Record{ID: "c1", From: "caller", To: "callee", Status: callstore.StatusRinging}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The status write lands before the watcher subscribes; the snapshot
	// re-read must still surface it.
	if _, err := store.SetStatus(ctx, "c1", callstore.StatusRejected); err != nil {
		t.Fatalf("set status: %v", err)
	}
	hub.WatchCall(storeSubscriber{store}, rec)

	env := readEnvelope(t, conn)
	if env.Type != EventCallUpdate {
		t.Fatalf("type = %s, want call.update", env.Type)
	}
	var got callstore.Record
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.Status != callstore.StatusRejected {
		t.Fatalf("status = %s, want rejected", got.Status)
	}
}

func TestHub_SecondConnectionReplacesFirst(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	first := dial(t, srv, "bob")
	waitConnected(t, hub, "bob")
	second := dial(t, srv, "bob")

	// The first connection gets closed by the replacement.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SendToUser("bob", EventCallUpdate, map[string]string{"call_id": "c2"}) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	env := readEnvelope(t, second)
	if env.Type != EventCallUpdate {
		t.Fatalf("second connection got %s", env.Type)
	}
}
