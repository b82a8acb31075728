package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/layout-engine/internal/layout"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	ws := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(ws.Close)

	url := "ws" + strings.TrimPrefix(ws.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsProgress(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialTestHub(t, hub)
	waitForClients(t, hub, 1)

	hub.PublishProgress(layout.Progress{Iteration: 10, Total: 100, Nodes: 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "progress" {
		t.Errorf("message type = %q, want progress", msg.Type)
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("re-marshal payload: %v", err)
	}
	var p layout.Progress
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Iteration != 10 || p.Total != 100 || p.Nodes != 42 {
		t.Errorf("payload = %+v, want iteration 10/100 over 42 nodes", p)
	}
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialTestHub(t, hub)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	// No Run loop draining the broadcast channel
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.PublishProgress(layout.Progress{Iteration: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked with no consumer")
	}
}
