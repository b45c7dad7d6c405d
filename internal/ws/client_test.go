package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientPingsWhenSilent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgCh := make(chan map[string]any, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			select {
			case msgCh <- msg:
			default:
			}
		}
	}))
	defer server.Close()

	client := New(wsURL(server), 10*time.Millisecond, 40*time.Millisecond, map[string]any{"op": "ping"}, zap.NewNop())
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, nil)
	}()

	select {
	case msg := <-msgCh:
		if msg["op"] != "ping" {
			t.Fatalf("expected ping message, got %v", msg)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for ping")
	}
}

func TestClientResubscribesAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var accepts atomic.Int32
	subCh := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		n := accepts.Add(1)
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		subCh <- string(data)
		if n == 1 {
			_ = conn.Close(websocket.StatusGoingAway, "bye")
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"channel":"ok"}`))
		<-ctx.Done()
	}))
	defer server.Close()

	client := New(wsURL(server), 10*time.Millisecond, 0, nil, zap.NewNop())
	if err := client.Subscribe(ctx, map[string]any{"op": "subscribe", "data": []string{"ticker:ETH:PERPETUAL"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	frames := make(chan json.RawMessage, 1)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, func(raw json.RawMessage) {
			select {
			case frames <- raw:
			default:
			}
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case sub := <-subCh:
			if !strings.Contains(sub, "ticker:ETH:PERPETUAL") {
				t.Fatalf("unexpected subscription %s", sub)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for subscription %d", i+1)
		}
	}
	select {
	case raw := <-frames:
		if !strings.Contains(string(raw), "ok") {
			t.Fatalf("unexpected frame %s", raw)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for frame")
	}
}
