package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session Metrics
var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "remotevibes",
		Subsystem: "session",
		Name:      "started_total",
		Help:      "Total number of sessions started successfully",
	})

	SessionsStoppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "remotevibes",
		Subsystem: "session",
		Name:      "stopped_total",
		Help:      "Total number of sessions stopped",
	})

	SessionStartErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "remotevibes",
		Subsystem: "session",
		Name:      "start_errors_total",
		Help:      "Total number of failed session starts",
	})

	SessionStartLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "remotevibes",
		Subsystem: "session",
		Name:      "start_latency_seconds",
		Help:      "Latency of starting a session container",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "remotevibes",
		Subsystem: "session",
		Name:      "active_count",
		Help:      "Number of sessions currently running",
	})
)

// Agent Proxy Metrics
var (
	ChatStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "remotevibes",
		Subsystem: "agent",
		Name:      "active_streams",
		Help:      "Number of currently open chat streams",
	})

	ChatStreamsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "remotevibes",
		Subsystem: "agent",
		Name:      "streams_total",
		Help:      "Total number of chat streams opened",
	})

	PullRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "remotevibes",
		Subsystem: "agent",
		Name:      "pull_requests_total",
		Help:      "Total number of pull requests triggered through the agent",
	})
)

// Housekeeping Metrics
var (
	StaleContainersRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "remotevibes",
		Subsystem: "housekeeping",
		Name:      "stale_containers_removed_total",
		Help:      "Total number of exited managed containers swept",
	})
)
