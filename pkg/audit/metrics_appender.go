package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsAppender - счетчики операций и гистограмма длительности в Prometheus
type MetricsAppender struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rows       *prometheus.CounterVec
}

// NewMetricsAppender регистрирует метрики в reg; nil дает собственный реестр
func NewMetricsAppender(reg prometheus.Registerer) (*MetricsAppender, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	ma := &MetricsAppender{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semlayer",
			Name:      "operations_total",
			Help:      "Operations by type, status and error kind.",
		}, []string{"operation", "status", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semlayer",
			Name:      "operation_duration_seconds",
			Help:      "Operation duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semlayer",
			Name:      "rows_total",
			Help:      "Rows returned or written by operations.",
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{ma.operations, ma.duration, ma.rows} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return ma, nil
}

// Append - учесть запись
func (ma *MetricsAppender) Append(ctx context.Context, entry *Entry) error {
	op := string(entry.Operation)
	ma.operations.WithLabelValues(op, string(entry.Status), string(entry.ErrorKind)).Inc()
	if entry.Duration > 0 {
		ma.duration.WithLabelValues(op).Observe(entry.Duration.Seconds())
	}
	if entry.Rows > 0 {
		ma.rows.WithLabelValues(op).Add(float64(entry.Rows))
	}
	return nil
}

// Operations - счетчик операций, для проверок и экспорта
func (ma *MetricsAppender) Operations() *prometheus.CounterVec {
	return ma.operations
}

// Close - noop
func (ma *MetricsAppender) Close() error {
	return nil
}
