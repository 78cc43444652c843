package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はプローブ結果を記録するPrometheusメトリクス。
type Metrics struct {
	probes   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics はメトリクスを生成してregに登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "probes_total",
				Help:      "Total number of destination probes by cluster and status",
			},
			[]string{"cluster", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "probe_duration_seconds",
				Help:      "Destination probe duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"cluster"},
		),
	}
}

// observe はプローブ1件の結果を記録する。nilの場合は何もしない。
func (m *Metrics) observe(cluster string, v Verdict, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(cluster, string(v.Status)).Inc()
	m.duration.WithLabelValues(cluster).Observe(elapsed.Seconds())
}
