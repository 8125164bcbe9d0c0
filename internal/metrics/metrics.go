package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentplay",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "torrentplay",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentplay",
		Name:      "active_sessions",
		Help:      "Number of torrent sessions currently held by the manager.",
	})

	StreamServers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentplay",
		Name:      "stream_servers",
		Help:      "Number of bound local stream servers.",
	})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentplay",
		Name:      "commands_total",
		Help:      "Total commands processed by type and result.",
	}, []string{"type", "result"})

	DownloadSpeedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "torrentplay",
		Name:      "download_speed_bytes",
		Help:      "Current download speed in bytes per second per torrent.",
	}, []string{"torrent"})

	StreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentplay",
		Name:      "stream_requests_total",
		Help:      "Total requests served by local stream servers by status code.",
	}, []string{"status"})

	FSCleanupFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentplay",
		Name:      "fs_cleanup_failures_total",
		Help:      "Total number of session storage removals that failed.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		StreamServers,
		CommandsTotal,
		DownloadSpeedBytes,
		StreamRequestsTotal,
		FSCleanupFailuresTotal,
	)
}
