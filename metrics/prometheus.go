// Package metrics exports scan telemetry to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/btree-query-bench/zscan/zorder"
)

var _ zorder.StatsSink = (*PrometheusSink)(nil)

// PrometheusSink implements zorder.StatsSink and records query latency. It
// is safe for concurrent use by any number of scans.
type PrometheusSink struct {
	probes         *prometheus.CounterVec
	rangeCheckTime prometheus.Counter
	bigminTime     prometheus.Counter
	queryLatency   *prometheus.HistogramVec
}

// NewPrometheusSink creates the collectors under namespace and registers
// them on reg.
func NewPrometheusSink(reg prometheus.Registerer, namespace string) (*PrometheusSink, error) {
	s := &PrometheusSink{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_checks_total",
			Help:      "Records range-checked against a search box, by outcome",
		}, []string{"result"}),
		rangeCheckTime: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_check_seconds_total",
			Help:      "Time spent in range checks",
		}),
		bigminTime: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bigmin_seconds_total",
			Help:      "Time spent computing BIGMIN seek keys",
		}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_latency_seconds",
			Help:      "Latency of box queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "status"}),
	}
	for _, c := range []prometheus.Collector{s.probes, s.rangeCheckTime, s.bigminTime, s.queryLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) RecordHit()  { s.probes.WithLabelValues("hit").Inc() }
func (s *PrometheusSink) RecordMiss() { s.probes.WithLabelValues("miss").Inc() }

func (s *PrometheusSink) AddRangeCheckTime(d time.Duration) {
	s.rangeCheckTime.Add(d.Seconds())
}

func (s *PrometheusSink) AddBigMinTime(d time.Duration) {
	s.bigminTime.Add(d.Seconds())
}

// ObserveQuery records one finished query. mode is "zorder" or "fullscan".
func (s *PrometheusSink) ObserveQuery(mode string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.queryLatency.WithLabelValues(mode, status).Observe(d.Seconds())
}
