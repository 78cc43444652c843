package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はアドミッション判定の件数を記録するPrometheusメトリクス。
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics はメトリクスを生成してregに登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of admission decisions by result",
			},
			[]string{"decision"},
		),
	}
}

// observe は判定結果を1件記録する。nilの場合は何もしない。
func (m *Metrics) observe(d Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.String()).Inc()
}
