package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sxyafiq/snowflaked/pool"
	"github.com/sxyafiq/snowflaked/snowflake"
)

func TestObserveGenerate(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveGenerate(3, time.Millisecond, nil)
	m.ObserveGenerate(3, time.Millisecond, nil)
	m.ObserveGenerate(4, time.Millisecond, nil)
	m.ObserveGenerate(4, 2*time.Millisecond, &snowflake.RetryError{Attempts: 6, Last: snowflake.ErrSequenceOverflow})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generated.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generated.WithLabelValues("4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("retries_exhausted")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestObserveRejected(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRejected(snowflake.ErrQueueFull)
	m.ObserveRejected(snowflake.ErrQueueFull)
	m.ObserveRejected(snowflake.ErrPoolClosed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejections.WithLabelValues("queue_full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("pool_closed")))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

type fakePool struct {
	depth, capacity int
	nodes           map[int64]snowflake.Metrics
}

func (f fakePool) QueueLen() int                            { return f.depth }
func (f fakePool) QueueCap() int                            { return f.capacity }
func (f fakePool) NodeMetrics() map[int64]snowflake.Metrics { return f.nodes }

func TestRegisterPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPool(reg, fakePool{
		depth:    7,
		capacity: 100,
		nodes: map[int64]snowflake.Metrics{
			1: {Generated: 10, SequenceOverflows: 2},
			2: {ClockRegressions: 1},
		},
	}))

	expected := `
# HELP snowflaked_queue_depth Requests waiting for a worker.
# TYPE snowflaked_queue_depth gauge
snowflaked_queue_depth 7
# HELP snowflaked_queue_capacity Capacity of the request queue.
# TYPE snowflaked_queue_capacity gauge
snowflaked_queue_capacity 100
# HELP snowflaked_node_sequence_overflows_total Generation attempts that found the millisecond exhausted.
# TYPE snowflaked_node_sequence_overflows_total counter
snowflaked_node_sequence_overflows_total{node="1"} 2
snowflaked_node_sequence_overflows_total{node="2"} 0
# HELP snowflaked_node_clock_regressions_total Generation attempts rejected because the clock moved backwards.
# TYPE snowflaked_node_clock_regressions_total counter
snowflaked_node_clock_regressions_total{node="1"} 0
snowflaked_node_clock_regressions_total{node="2"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"snowflaked_queue_depth",
		"snowflaked_queue_capacity",
		"snowflaked_node_sequence_overflows_total",
		"snowflaked_node_clock_regressions_total",
	)
	assert.NoError(t, err)
}

func TestMetrics_ObservesPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.PanicLevel)

	cfg := pool.DefaultConfig()
	cfg.NodeIDs = []int64{5}
	cfg.QueueCapacity = 1
	cfg.Logger = logger
	cfg.Observer = m
	p, err := pool.New(cfg)
	require.NoError(t, err)
	require.NoError(t, RegisterPool(reg, p))

	// Not started: the first request sits in the queue, the second is refused.
	queued, err := p.Submit(context.Background())
	require.NoError(t, err)
	_, err = p.Submit(context.Background())
	require.ErrorIs(t, err, pool.ErrQueueFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("queue_full")))

	p.Start()
	defer p.Close()
	require.NoError(t, (<-queued).Err)
	_, err = p.Generate(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.generated.WithLabelValues("5")))
}
