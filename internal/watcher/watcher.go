package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"purchase-confirmation-service/internal/domain"
	"purchase-confirmation-service/internal/metrics"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultPingTimeout       = 10 * time.Second
	defaultReconnectDelay    = 5 * time.Second
	defaultMaxInflight       = 64
	handshakeTimeout         = 10 * time.Second
)

// SignatureHandler receives one dispatched ledger event. Implementations
// own the event exclusively and must not assume any ordering across
// concurrent calls.
type SignatureHandler interface {
	HandleSignature(ctx context.Context, event domain.LedgerEvent)
}

// Config carries the connection parameters. Zero values fall back to the
// defaults above.
type Config struct {
	WSURL             string
	Merchant          string
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	ReconnectDelay    time.Duration
	MaxInflight       int64
}

// Watcher owns one long-lived logsSubscribe stream against the ledger node
// and retries forever: any transport failure routes back through the outer
// loop after a fixed delay.
type Watcher struct {
	cfg      Config
	handler  SignatureHandler
	inflight *semaphore.Weighted
}

func New(cfg Config, handler SignatureHandler) *Watcher {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = defaultMaxInflight
	}
	return &Watcher{
		cfg:      cfg,
		handler:  handler,
		inflight: semaphore.NewWeighted(cfg.MaxInflight),
	}
}

// Run blocks until ctx is cancelled. It never gives up on its own.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if err := w.connectAndListen(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Ledger stream connection error")
		}
		if ctx.Err() != nil {
			log.Info("Watcher stopping")
			return
		}

		log.Infof("Reconnecting in %s", w.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			log.Info("Watcher stopping")
			return
		case <-time.After(w.cfg.ReconnectDelay):
			metrics.ReconnectAttempts.Inc()
		}
	}
}

func (w *Watcher) connectAndListen(ctx context.Context) error {
	log.Info("Connecting to ledger log stream")
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the process shuts down.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := w.subscribe(conn); err != nil {
		return err
	}

	var lastPong atomic.Int64
	lastPong.Store(time.Now().UnixNano())
	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		lastPong.Store(time.Now().UnixNano())
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	hbCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		w.heartbeat(hbCtx, conn, &lastPong, pongCh)
	}()

	readErr := w.readLoop(ctx, conn)
	cancelHeartbeat()
	<-hbDone
	return readErr
}

func (w *Watcher) subscribe(conn *websocket.Conn) error {
	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{"mentions": []string{w.cfg.Merchant}},
			map[string]any{"commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(request); err != nil {
		return fmt.Errorf("subscribe request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, ack, err := conn.ReadMessage()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		return fmt.Errorf("subscription ack: %w", err)
	}
	log.WithField("ack", string(ack)).Info("Log subscription acknowledged")
	return nil
}

// heartbeat probes the connection every interval. A probe with no pong
// within the timeout closes the connection, which fails the read loop and
// re-enters the retry cycle. A stale pong alone only warns.
func (w *Watcher) heartbeat(ctx context.Context, conn *websocket.Conn, lastPong *atomic.Int64, pongCh <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if since := time.Since(time.Unix(0, lastPong.Load())); since > 2*w.cfg.HeartbeatInterval {
			log.WithField("since_last_pong", since).Warn("No pong received recently, connection may be dead")
		}

		// Drop any pong that arrived between probes so the wait below
		// only matches a response to this ping.
		select {
		case <-pongCh:
		default:
		}

		log.Debug("Sending heartbeat ping")
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.cfg.PingTimeout)); err != nil {
			log.WithError(err).Warn("Heartbeat ping failed")
			conn.Close()
			return
		}

		select {
		case <-pongCh:
			log.Debug("Received pong response")
		case <-time.After(w.cfg.PingTimeout):
			log.WithField("timeout", w.cfg.PingTimeout).Error("Heartbeat probe timed out")
			metrics.HeartbeatFailures.Inc()
			conn.Close()
			return
		case <-ctx.Done():
			return
		}
	}
}

type logsNotification struct {
	Params struct {
		Result struct {
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// readLoop does minimal work per message: parse, then hand off. Slow
// downstream processing must never stall the transport.
func (w *Watcher) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var note logsNotification
		if err := json.Unmarshal(raw, &note); err != nil {
			log.WithError(err).Debug("Ignoring unparseable stream message")
			continue
		}
		value := note.Params.Result.Value
		if value.Signature == "" {
			continue
		}

		metrics.EventsTotal.Inc()
		log.WithField("signature", value.Signature).Info("Received signature")
		w.dispatch(ctx, domain.LedgerEvent{Signature: value.Signature, Logs: value.Logs})
	}
}

// dispatch runs the handler in its own goroutine, bounded by the inflight
// semaphore. Saturation drops the event instead of blocking the read loop.
// In-flight handlers outlive the connection that produced them; only
// process shutdown cancels their context.
func (w *Watcher) dispatch(ctx context.Context, event domain.LedgerEvent) {
	if !w.inflight.TryAcquire(1) {
		metrics.EventsDropped.WithLabelValues(metrics.ReasonSaturated).Inc()
		log.WithField("signature", event.Signature).Warn("Handler pool saturated, dropping event")
		return
	}
	go func() {
		defer w.inflight.Release(1)
		w.handler.HandleSignature(ctx, event)
	}()
}
