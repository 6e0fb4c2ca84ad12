package pool_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/assetpool/pool-engine/internal/pool"
)

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) pool.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ws read failed: %v", err)
	}
	var ev pool.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	return ev
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := pool.NewHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c1 := dialWS(t, url)
	defer c1.Close()
	c2 := dialWS(t, url)
	defer c2.Close()

	// Registration runs on the hub goroutine after the handshake.
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(pool.Event{Type: "pool_updated", PoolID: "pool-1"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		ev := readEvent(t, conn)
		if ev.Type != "pool_updated" || ev.PoolID != "pool-1" {
			t.Errorf("unexpected event %+v", ev)
		}
	}
}

func TestHub_BroadcastSurvivesClosedClient(t *testing.T) {
	hub := pool.NewHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	survivor := dialWS(t, url)
	defer survivor.Close()
	doomed := dialWS(t, url)

	time.Sleep(100 * time.Millisecond)
	doomed.Close()

	// Broadcasting with a dead connection in the set must still deliver
	// to the live one.
	for i := 0; i < 5; i++ {
		hub.Broadcast(pool.Event{Type: "staked", PoolID: "pool-1"})
		time.Sleep(20 * time.Millisecond)
	}

	ev := readEvent(t, survivor)
	if ev.Type != "staked" {
		t.Errorf("expected staked event, got %+v", ev)
	}
}
