package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/extra-hours/extrahours"
)

// Metrics holds the Prometheus collectors of the sheet endpoints.
type Metrics struct {
	Sheets  *prometheus.CounterVec
	Compute prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sheets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extrahours_sheets_total",
			Help: "Sheet operations by outcome.",
		}, []string{"status"}),
		Compute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extrahours_compute_seconds",
			Help:    "Time spent computing and storing a sheet.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Sheets, m.Compute)
	}
	return m
}

// observe records the outcome of one sheet operation started at start.
func (m *Metrics) observe(start time.Time, status extrahours.SheetStatus, err error) {
	m.Compute.Observe(time.Since(start).Seconds())
	if err != nil {
		m.Sheets.WithLabelValues("failed").Inc()
		return
	}
	m.Sheets.WithLabelValues(statusLabel(status)).Inc()
}

func statusLabel(status extrahours.SheetStatus) string {
	switch status {
	case extrahours.StatusCreated:
		return "created"
	case extrahours.StatusExists:
		return "exists"
	case extrahours.StatusRecalculated:
		return "recalculated"
	}
	return "unknown"
}
