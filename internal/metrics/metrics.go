package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as label values on EventsDropped.
const (
	ReasonSaturated     = "saturated"
	ReasonDuplicate     = "duplicate"
	ReasonResolveFailed = "resolve_failed"
	ReasonNoMemo        = "no_memo"
	ReasonNoCredit      = "no_credit"
	ReasonBadMemo       = "bad_memo"
	ReasonForwardFailed = "forward_failed"
)

var (
	EventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_ledger_events_total",
		Help: "Ledger events received from the log stream.",
	})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watcher_events_dropped_total",
		Help: "Ledger events dropped before a completion was forwarded.",
	}, []string{"reason"})
	CompletionsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_completions_forwarded_total",
		Help: "Completion reports accepted by the fulfillment service.",
	})
	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_reconnect_attempts_total",
		Help: "Reconnect attempts against the ledger log stream.",
	})
	HeartbeatFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watcher_heartbeat_failures_total",
		Help: "Heartbeat probes that timed out and tore down the connection.",
	})
)
