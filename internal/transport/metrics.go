package transport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/dials/pkg/codec"
)

const namespace = "dials"

type metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	subscribers prometheus.Gauge
	dropped     prometheus.Counter
	codec       *codec.Metrics
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Open payload subscriptions.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers dropped because their queue was full.",
		}),
		codec: codec.NewMetrics(namespace),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.subscribers, m.dropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if err := m.codec.Register(reg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) observe(route, method string, code int, seconds float64) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(seconds)
}
