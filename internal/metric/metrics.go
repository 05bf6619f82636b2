// Package metric holds the Prometheus collectors exported on /metrics.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for tool calls.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "misli_mcp_tool_calls_total",
	Help: "MCP tool calls by tool and outcome",
}, []string{"tool", "outcome"})

var indexBuild = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "misli_index_build_seconds",
	Help:    "time spent building the library index",
	Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
})

var indexedFiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "misli_indexed_note_files",
	Help: "note files in the library index by parse status",
}, []string{"status"})

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "misli_events_dropped_total",
	Help: "library events not delivered to a slow subscriber",
})

var eventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "misli_event_stream_subscribers",
	Help: "open /events websocket connections",
})

// IncToolCall counts one MCP tool call.
func IncToolCall(tool string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	toolCalls.WithLabelValues(tool, outcome).Inc()
}

// ToolCalls returns the counter for a tool and outcome.
func ToolCalls(tool, outcome string) prometheus.Counter {
	return toolCalls.WithLabelValues(tool, outcome)
}

// ObserveIndexBuild records a finished index build.
func ObserveIndexBuild(d time.Duration, ok, broken int) {
	indexBuild.Observe(d.Seconds())
	indexedFiles.WithLabelValues("ok").Set(float64(ok))
	indexedFiles.WithLabelValues("broken").Set(float64(broken))
}

// IndexedFiles returns the gauge for a parse status ("ok" or "broken").
func IndexedFiles(status string) prometheus.Gauge {
	return indexedFiles.WithLabelValues(status)
}

// AddEventsDropped counts events missed by slow subscribers.
func AddEventsDropped(n int) {
	eventsDropped.Add(float64(n))
}

// EventsDropped returns the dropped events counter.
func EventsDropped() prometheus.Counter {
	return eventsDropped
}

// SubscriberConnected tracks an /events connection and returns the
// function that marks it closed.
func SubscriberConnected() func() {
	eventSubscribers.Inc()
	return eventSubscribers.Dec
}

// EventSubscribers returns the open subscriber gauge.
func EventSubscribers() prometheus.Gauge {
	return eventSubscribers
}
