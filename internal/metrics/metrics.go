// Package metrics collects per-run counters and exports them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/migrate"
)

// Metrics is a run's metric set on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	RoomsTotal       *prometheus.CounterVec
	MembersTotal     *prometheus.CounterVec
	MessagesPosted   *prometheus.CounterVec
	AnomaliesTotal   *prometheus.CounterVec
	APIRequestsTotal *prometheus.CounterVec
	ThrottleWaits    *prometheus.CounterVec
	ThrottleSeconds  prometheus.Counter
	LastRunTimestamp prometheus.Gauge
}

// New registers the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RoomsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatmig_rooms_total",
				Help: "Rooms processed, by final status",
			},
			[]string{"status"},
		),

		MembersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatmig_memberships_total",
				Help: "Membership additions, by outcome",
			},
			[]string{"outcome"}, // "added", "pre_existing" or "failed"
		),

		MessagesPosted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatmig_messages_posted_total",
				Help: "Messages posted to the destination",
			},
			[]string{"kind"}, // "text", "attachment" or "notice"
		),

		AnomaliesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatmig_anomalies_total",
				Help: "Recovered conditions, by kind",
			},
			[]string{"kind"},
		),

		APIRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatmig_api_requests_total",
				Help: "Destination API responses",
			},
			[]string{"op", "status"},
		),

		ThrottleWaits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatmig_api_throttled_total",
				Help: "Rate-limited destination API responses",
			},
			[]string{"op"},
		),

		ThrottleSeconds: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatmig_api_throttle_wait_seconds_total",
				Help: "Time spent waiting on rate limits",
			},
		),

		LastRunTimestamp: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatmig_last_run_timestamp_seconds",
				Help: "Unix time the run finished",
			},
		),
	}
}

// RoomDone implements migrate.Recorder.
func (m *Metrics) RoomDone(status migrate.Status) {
	m.RoomsTotal.WithLabelValues(string(status)).Inc()
}

// MemberAdded implements migrate.Recorder.
func (m *Metrics) MemberAdded(outcome string) {
	m.MembersTotal.WithLabelValues(outcome).Inc()
}

// MessagePosted implements migrate.Recorder.
func (m *Metrics) MessagePosted(kind string) {
	m.MessagesPosted.WithLabelValues(kind).Inc()
}

// Anomaly implements migrate.Recorder.
func (m *Metrics) Anomaly(kind domain.Kind) {
	m.AnomaliesTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveRequest implements webex.Recorder.
func (m *Metrics) ObserveRequest(op string, status int) {
	m.APIRequestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
}

// ObserveThrottle implements webex.Recorder.
func (m *Metrics) ObserveThrottle(op string, wait time.Duration) {
	m.ThrottleWaits.WithLabelValues(op).Inc()
	m.ThrottleSeconds.Add(wait.Seconds())
}

// WriteTextfile stamps the finish time and writes all metrics to path.
func (m *Metrics) WriteTextfile(path string, finished time.Time) error {
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	return prometheus.WriteToTextfile(path, m.Registry)
}
