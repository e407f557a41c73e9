// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentrt",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentrt",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	agentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentrt",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Finished agent runs by source and status.",
		},
		[]string{"source", "status"},
	)
	debugSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentrt",
			Subsystem: "debug",
			Name:      "sessions_active",
			Help:      "Debugger sessions currently running.",
		},
	)
	sseStreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentrt",
			Subsystem: "sse",
			Name:      "streams_active",
			Help:      "Open server-sent event streams.",
		},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, agentRuns, debugSessionsActive, sseStreamsActive)
	})
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	Register()
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRun counts one finished agent run.
func RecordRun(source, status string) {
	Register()
	agentRuns.WithLabelValues(source, status).Inc()
}

// SessionStarted and SessionFinished track running debugger sessions.
func SessionStarted() {
	Register()
	debugSessionsActive.Inc()
}

func SessionFinished() {
	Register()
	debugSessionsActive.Dec()
}

// StreamOpened and StreamClosed track open SSE responses.
func StreamOpened() {
	Register()
	sseStreamsActive.Inc()
}

func StreamClosed() {
	Register()
	sseStreamsActive.Dec()
}
