package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchase-confirmation-service/internal/domain"
)

const merchant = "MerchantWallet1111111111111111111111111111"

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (h *recordingHandler) HandleSignature(ctx context.Context, event domain.LedgerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHandler) snapshot() []domain.LedgerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.LedgerEvent(nil), h.events...)
}

func testConfig(url string) Config {
	return Config{
		WSURL:             url,
		Merchant:          merchant,
		HeartbeatInterval: 30 * time.Millisecond,
		PingTimeout:       30 * time.Millisecond,
		ReconnectDelay:    10 * time.Millisecond,
		MaxInflight:       8,
	}
}

func TestReconnectsIndefinitely(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections.Add(1)
		// drop the connection before acknowledging the subscription
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(testConfig(wsURL(srv)), &recordingHandler{})
	go w.Run(ctx)

	assert.Eventually(t, func() bool {
		return connections.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond, "watcher must keep reconnecting under sustained failure")
}

func TestHeartbeatTimeoutTearsDownConnection(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)

		// swallow pings so every probe times out
		conn.SetPingHandler(func(string) error { return nil })

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":23}`)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(testConfig(wsURL(srv)), &recordingHandler{})
	go w.Run(ctx)

	assert.Eventually(t, func() bool {
		return connections.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond, "a probe timeout must tear down the connection and trigger a reconnect")
}

func TestSubscribesAndDispatchesNotifications(t *testing.T) {
	notification := `{"jsonrpc":"2.0","method":"logsNotification","params":{"result":{"value":{"signature":"sigA","logs":["Program log: Memo (len 9): \"ud:3 pl30\""]}},"subscription":23}}`

	var subscribeReq atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribeReq.Store(string(raw))

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":23}`)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(notification)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &recordingHandler{}
	cfg := testConfig(wsURL(srv))
	cfg.HeartbeatInterval = time.Second
	w := New(cfg, handler)
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return len(handler.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := handler.snapshot()[0]
	assert.Equal(t, "sigA", event.Signature)
	require.Len(t, event.Logs, 1)
	assert.Contains(t, event.Logs[0], "ud:3 pl30")

	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(t, json.Unmarshal([]byte(subscribeReq.Load().(string)), &req))
	assert.Equal(t, "logsSubscribe", req.Method)
	require.Len(t, req.Params, 2)
	assert.Contains(t, string(req.Params[0]), merchant)
	assert.Contains(t, string(req.Params[1]), "confirmed")
}

type blockingHandler struct {
	started chan string
	release chan struct{}
}

func (h *blockingHandler) HandleSignature(ctx context.Context, event domain.LedgerEvent) {
	h.started <- event.Signature
	<-h.release
}

func TestDispatchDropsWhenPoolSaturated(t *testing.T) {
	handler := &blockingHandler{
		started: make(chan string, 4),
		release: make(chan struct{}),
	}
	cfg := testConfig("ws://unused")
	cfg.MaxInflight = 1
	w := New(cfg, handler)

	ctx := context.Background()
	w.dispatch(ctx, domain.LedgerEvent{Signature: "sigA"})

	select {
	case sig := <-handler.started:
		assert.Equal(t, "sigA", sig)
	case <-time.After(time.Second):
		t.Fatal("first event never reached the handler")
	}

	// pool is full; this one must be dropped without blocking
	done := make(chan struct{})
	go func() {
		w.dispatch(ctx, domain.LedgerEvent{Signature: "sigB"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a saturated pool")
	}

	close(handler.release)
	select {
	case sig := <-handler.started:
		t.Fatalf("dropped event %s unexpectedly reached the handler", sig)
	case <-time.After(50 * time.Millisecond):
	}
}
