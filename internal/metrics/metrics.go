// Package metrics exports dispatcher and generator counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sxyafiq/snowflaked/snowflake"
)

const namespace = "snowflaked"

// Metrics observes a pool. It implements pool.Observer.
type Metrics struct {
	generated  *prometheus.CounterVec
	errors     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   prometheus.Histogram
}

// New creates the dispatch collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ids_generated_total",
			Help:      "Number of IDs issued, by node.",
		}, []string{"node"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_errors_total",
			Help:      "Number of served requests that failed, by error kind.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejections_total",
			Help:      "Number of requests refused before reaching a worker, by error kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_duration_seconds",
			Help:      "Time a worker spent on one request, retries included.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .002, .005, .01, .05},
		}),
	}

	for _, c := range []prometheus.Collector{m.generated, m.errors, m.rejections, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveGenerate records one served request.
func (m *Metrics) ObserveGenerate(nodeID int64, took time.Duration, err error) {
	m.duration.Observe(took.Seconds())
	if err != nil {
		m.errors.WithLabelValues(snowflake.KindOf(err).String()).Inc()
		return
	}
	m.generated.WithLabelValues(strconv.FormatInt(nodeID, 10)).Inc()
}

// ObserveRejected records a request refused by Submit.
func (m *Metrics) ObserveRejected(err error) {
	m.rejections.WithLabelValues(snowflake.KindOf(err).String()).Inc()
}

// PoolStats is the read-only view of a pool the collector samples at
// scrape time.
type PoolStats interface {
	QueueLen() int
	QueueCap() int
	NodeMetrics() map[int64]snowflake.Metrics
}

// RegisterPool registers gauges for the queue of p and the per-node
// generator counters.
func RegisterPool(reg prometheus.Registerer, p PoolStats) error {
	return reg.Register(newPoolCollector(p))
}

type poolCollector struct {
	pool PoolStats

	queueDepth         *prometheus.Desc
	queueCapacity      *prometheus.Desc
	clockRegressions   *prometheus.Desc
	sequenceOverflows  *prometheus.Desc
	timestampOverflows *prometheus.Desc
}

func newPoolCollector(p PoolStats) *poolCollector {
	node := []string{"node"}
	return &poolCollector{
		pool: p,
		queueDepth: prometheus.NewDesc(prometheus.BuildFQName(namespace, "queue", "depth"),
			"Requests waiting for a worker.", nil, nil),
		queueCapacity: prometheus.NewDesc(prometheus.BuildFQName(namespace, "queue", "capacity"),
			"Capacity of the request queue.", nil, nil),
		clockRegressions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "node", "clock_regressions_total"),
			"Generation attempts rejected because the clock moved backwards.", node, nil),
		sequenceOverflows: prometheus.NewDesc(prometheus.BuildFQName(namespace, "node", "sequence_overflows_total"),
			"Generation attempts that found the millisecond exhausted.", node, nil),
		timestampOverflows: prometheus.NewDesc(prometheus.BuildFQName(namespace, "node", "timestamp_overflows_total"),
			"Generation attempts whose timestamp did not fit the layout.", node, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.queueCapacity
	ch <- c.clockRegressions
	ch <- c.sequenceOverflows
	ch <- c.timestampOverflows
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.pool.QueueLen()))
	ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(c.pool.QueueCap()))

	for id, m := range c.pool.NodeMetrics() {
		node := strconv.FormatInt(id, 10)
		ch <- prometheus.MustNewConstMetric(c.clockRegressions, prometheus.CounterValue, float64(m.ClockRegressions), node)
		ch <- prometheus.MustNewConstMetric(c.sequenceOverflows, prometheus.CounterValue, float64(m.SequenceOverflows), node)
		ch <- prometheus.MustNewConstMetric(c.timestampOverflows, prometheus.CounterValue, float64(m.TimestampOverflows), node)
	}
}
