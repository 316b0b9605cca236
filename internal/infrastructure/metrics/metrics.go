// Package metrics exposes backup, restore and scheduler counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dbbackup"

type Metrics struct {
	registry *prometheus.Registry

	backups        *prometheus.CounterVec
	backupDuration *prometheus.HistogramVec
	backupBytes    *prometheus.CounterVec
	inFlight       *prometheus.GaugeVec
	restores       *prometheus.CounterVec
	scheduleSkips  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Finished backup runs by outcome.",
		}, []string{"environment", "kind", "status"}),
		backupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Wall time of backup runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"environment", "kind"}),
		backupBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_total",
			Help:      "Bytes written by completed backups.",
		}, []string{"environment"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backups_in_flight",
			Help:      "Backup runs currently in progress.",
		}, []string{"environment"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore runs by outcome.",
		}, []string{"environment", "mode", "status"}),
		scheduleSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_skips_total",
			Help:      "Due schedules that were not started.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.backups, m.backupDuration, m.backupBytes, m.inFlight, m.restores, m.scheduleSkips,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) BackupStarted(env, kind string) {
	m.inFlight.WithLabelValues(env).Inc()
}

func (m *Metrics) BackupFinished(env, kind, status string, size int64, took time.Duration) {
	m.inFlight.WithLabelValues(env).Dec()
	m.backups.WithLabelValues(env, kind, status).Inc()
	m.backupDuration.WithLabelValues(env, kind).Observe(took.Seconds())
	if size > 0 {
		m.backupBytes.WithLabelValues(env).Add(float64(size))
	}
}

func (m *Metrics) RestoreFinished(env, mode string, ok bool) {
	status := "completed"
	if !ok {
		status = "failed"
	}
	m.restores.WithLabelValues(env, mode, status).Inc()
}

func (m *Metrics) ScheduleSkipped(reason string) {
	m.scheduleSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
