// Package telemetry provides Prometheus metrics for the bot core.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	Reconnects     prometheus.Counter
	InboundLines   prometheus.Counter
	FramingErrors  prometheus.Counter
	Dispatches     prometheus.Counter
	PluginFailures prometheus.Counter
	QueueDrops     prometheus.Counter
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "kestrel_reconnects_total", Help: "Number of reconnect attempts"})
		InboundLines = promauto.NewCounter(prometheus.CounterOpts{Name: "kestrel_inbound_messages_total", Help: "Number of inbound IRC messages processed"})
		FramingErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "kestrel_framing_errors_total", Help: "Number of malformed or oversized lines discarded"})
		Dispatches = promauto.NewCounter(prometheus.CounterOpts{Name: "kestrel_plugin_dispatches_total", Help: "Number of plugin invocations dispatched"})
		PluginFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "kestrel_plugin_failures_total", Help: "Number of plugin invocations that failed, timed out or panicked"})
		QueueDrops = promauto.NewCounter(prometheus.CounterOpts{Name: "kestrel_queue_drops_total", Help: "Number of outbound messages dropped due to queue overflow"})
	})
}

func IncReconnect() {
	if Reconnects != nil {
		Reconnects.Inc()
	}
}

func IncInbound() {
	if InboundLines != nil {
		InboundLines.Inc()
	}
}

func IncFramingError() {
	if FramingErrors != nil {
		FramingErrors.Inc()
	}
}

func IncDispatch() {
	if Dispatches != nil {
		Dispatches.Inc()
	}
}

func IncPluginFailure() {
	if PluginFailures != nil {
		PluginFailures.Inc()
	}
}

func IncQueueDrop() {
	if QueueDrops != nil {
		QueueDrops.Inc()
	}
}

// Serve exposes /metrics on addr. It blocks; run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
