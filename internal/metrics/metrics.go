package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts handled commands by name and outcome
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jukebox",
			Name:      "commands_total",
			Help:      "Total number of handled commands",
		},
		[]string{"command", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jukebox",
			Name:      "command_duration_seconds",
			Help:      "Command handling duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"command"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jukebox",
			Name:      "active_sessions",
			Help:      "Guilds with an open media session",
		},
	)

	TracksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jukebox",
			Subsystem: "player",
			Name:      "tracks_started_total",
			Help:      "Tracks whose playback started",
		},
		[]string{"source"},
	)

	TracksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jukebox",
			Subsystem: "player",
			Name:      "tracks_failed_total",
			Help:      "Tracks that ended with a playback error",
		},
	)

	// CommandSyncTotal counts remote command sync runs per result
	CommandSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jukebox",
			Subsystem: "commands",
			Name:      "sync_total",
			Help:      "Remote command registry sync runs",
		},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jukebox",
			Subsystem: "status",
			Name:      "http_requests_total",
			Help:      "Status server requests",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveCommand records a command outcome. It matches the dispatcher's
// observer signature.
func ObserveCommand(command, outcome string) {
	CommandsTotal.WithLabelValues(command, outcome).Inc()
}
