package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the application collectors registered on the default registry.
type Metrics struct {
	RedirectsTotal       *prometheus.CounterVec
	BurstRejectionsTotal prometheus.Counter
	FraudIncidentsTotal  *prometheus.CounterVec
	VisitsDrainedTotal   prometheus.Counter
	PoolSize             prometheus.Gauge
	AnalyticsQueueDepth  prometheus.Gauge
}

// NewMetrics registers and returns the shortener's collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		RedirectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_redirects_total",
			Help: "Redirect requests served, labelled by outcome status code.",
		}, []string{"status"}),
		BurstRejectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shortener_burst_rejections_total",
			Help: "Redirect requests rejected by burst protection.",
		}),
		FraudIncidentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_fraud_incidents_total",
			Help: "Fraud incidents recorded, labelled by incident type.",
		}, []string{"type"}),
		VisitsDrainedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shortener_visits_drained_total",
			Help: "Visit records drained from the analytics buffer into the database.",
		}),
		PoolSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shortener_code_pool_size",
			Help: "Current cardinality of the short-code pool set.",
		}),
		AnalyticsQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shortener_analytics_queue_depth",
			Help: "Length of the analytics visit buffer list.",
		}),
	}
}
