package app

import (
	"time"

	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for expiry probes on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	expiryDays    *prometheus.GaugeVec
	inFlight      prometheus.Gauge
	lastRun       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_expiry_probes_total",
				Help: "Total number of expiry probes by outcome status",
			},
			[]string{"status"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_expiry_probe_duration_seconds",
				Help:    "Duration of expiry probes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"status"},
		),
		expiryDays: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "db_expiry_days",
				Help: "Days until the account expires, per database alias",
			},
			[]string{"db"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_expiry_probes_in_flight",
				Help: "Number of probes currently running",
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_expiry_last_run_timestamp_seconds",
				Help: "Unix time of the last completed batch",
			},
		),
	}
	m.registry.MustRegister(m.probesTotal, m.probeDuration, m.expiryDays, m.inFlight, m.lastRun)
	return m
}

func (m *Metrics) Observe(out types.Outcome) {
	status := string(out.Status)
	m.probesTotal.WithLabelValues(status).Inc()
	m.probeDuration.WithLabelValues(status).Observe(out.Elapsed.Seconds())

	switch out.Status {
	case types.StatusExpired, types.StatusExpiringSoon, types.StatusNominal:
		m.expiryDays.WithLabelValues(string(out.Target)).Set(float64(out.Days))
	default:
		m.expiryDays.DeleteLabelValues(string(out.Target))
	}
}

// BatchStarted drops per-database values from the previous batch so that
// aliases removed from the list stop being reported.
func (m *Metrics) BatchStarted() {
	m.expiryDays.Reset()
}

func (m *Metrics) BatchCompleted(at time.Time) {
	m.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
