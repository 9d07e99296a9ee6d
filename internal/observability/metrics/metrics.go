// Package metrics exposes prometheus instrumentation for the consumption
// engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	Settlements     *prometheus.CounterVec
	Denials         *prometheus.CounterVec
	LedgerConflicts prometheus.Counter
	Grants          *prometheus.CounterVec
	CreditsCharged  prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Settlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creditrail_settlements_total",
			Help: "Settlements processed, partitioned by usage status.",
		}, []string{"status"}),
		Denials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creditrail_denials_total",
			Help: "Authorization denials, partitioned by reason.",
		}, []string{"reason"}),
		LedgerConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditrail_ledger_conflicts_total",
			Help: "Compare-and-swap conflicts absorbed by the settle retry loop.",
		}),
		Grants: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creditrail_grants_total",
			Help: "Credit grants applied, partitioned by transaction type.",
		}, []string{"type"}),
		CreditsCharged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditrail_credits_charged_total",
			Help: "Total credits debited across all settlements.",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "creditrail_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// GinMiddleware records request latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
