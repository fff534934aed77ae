// Package metrics exposes sync outcomes as Prometheus metrics on an
// isolated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync results.
const (
	ResultSuccess   = "success"
	ResultNoChanges = "no_changes"
	ResultError     = "error"
)

// Metrics holds the sync collectors.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	updatesTotal     *prometheus.CounterVec
	parseErrorsTotal *prometheus.CounterVec
	missingIfaces    *prometheus.GaugeVec
	duration         *prometheus.HistogramVec
	lastSuccess      *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swsync_sync_runs_total",
			Help: "Device syncs by result.",
		}, []string{"device", "result"}),
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swsync_interface_updates_total",
			Help: "Interface updates planned or applied.",
		}, []string{"device", "mode"}),
		parseErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swsync_parse_errors_total",
			Help: "Interface blocks rejected by the parser.",
		}, []string{"device"}),
		missingIfaces: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swsync_missing_interfaces",
			Help: "NetBox interfaces absent from the last running configuration.",
		}, []string{"device"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swsync_sync_duration_seconds",
			Help:    "Duration of a device sync.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"device"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swsync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful device sync.",
		}, []string{"device"}),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.updatesTotal,
		m.parseErrorsTotal,
		m.missingIfaces,
		m.duration,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Outcome describes one finished device sync.
type Outcome struct {
	Device      string
	Err         error
	Updates     int
	Executed    bool
	ParseErrors int
	Missing     int
	Duration    time.Duration
	Finished    time.Time
}

// Observe records a device sync. A nil receiver is a no-op.
func (m *Metrics) Observe(o Outcome) {
	if m == nil {
		return
	}

	result := ResultSuccess
	switch {
	case o.Err != nil:
		result = ResultError
	case o.Updates == 0:
		result = ResultNoChanges
	}
	m.runsTotal.WithLabelValues(o.Device, result).Inc()
	m.duration.WithLabelValues(o.Device).Observe(o.Duration.Seconds())
	m.parseErrorsTotal.WithLabelValues(o.Device).Add(float64(o.ParseErrors))

	if o.Err != nil {
		return
	}

	mode := "planned"
	if o.Executed {
		mode = "applied"
	}
	m.updatesTotal.WithLabelValues(o.Device, mode).Add(float64(o.Updates))
	m.missingIfaces.WithLabelValues(o.Device).Set(float64(o.Missing))

	finished := o.Finished
	if finished.IsZero() {
		finished = time.Now()
	}
	m.lastSuccess.WithLabelValues(o.Device).Set(float64(finished.Unix()))
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
