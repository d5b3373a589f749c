package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Metrics)(nil)

type Metrics struct {
	Requests         *prometheus.CounterVec
	GateRejections   prometheus.Counter
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of handled requests by route and status code",
		}, []string{"route", "status"}),
		GateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatgate",
			Subsystem: "gate",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected for a missing or invalid API key",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatgate",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of calls to the inference provider by result",
		}, []string{"result"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatgate",
			Subsystem: "upstream",
			Name:      "duration_seconds",
			Help:      "Latency of calls to the inference provider",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// ObserveRequest counts a handled request.
func (m *Metrics) ObserveRequest(route string, status int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveRejection counts a request refused by the access gate.
func (m *Metrics) ObserveRejection() {
	m.GateRejections.Inc()
}

// ObserveUpstream implements usecase.UpstreamObserver.
func (m *Metrics) ObserveUpstream(result string, elapsed time.Duration) {
	m.UpstreamRequests.WithLabelValues(result).Inc()
	m.UpstreamDuration.Observe(elapsed.Seconds())
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(c chan<- prometheus.Metric) {
	m.Requests.Collect(c)
	m.GateRejections.Collect(c)
	m.UpstreamRequests.Collect(c)
	m.UpstreamDuration.Collect(c)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(d chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(m, d)
}
