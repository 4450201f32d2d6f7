// Package pool dispatches ID requests to a fixed set of snowflake nodes.
//
// Each node is owned by exactly one worker goroutine. Requests go onto one
// shared bounded queue; whichever worker is free takes the next request,
// generates under the retry policy and answers on the request's private
// reply channel. Node state is never shared, so nothing in the generation
// path takes a lock.
//
// Requests are not served in submission order. IDs from one node strictly
// increase; IDs from different nodes never collide because node identities
// are unique within a pool.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/sxyafiq/snowflaked/snowflake"
)

// Defaults for a pool built from DefaultConfig.
const (
	DefaultNodeCount     = 10
	DefaultQueueCapacity = 100
)

var (
	// ErrPoolClosed is returned by Submit after Close, and delivered to
	// requests that were queued on a pool that never started.
	ErrPoolClosed = snowflake.ErrPoolClosed

	// ErrQueueFull is returned by Submit when the queue is at capacity.
	ErrQueueFull = snowflake.ErrQueueFull
)

// Result is the outcome of one request.
type Result struct {
	ID snowflake.ID
	// NodeID is the node that served the request; -1 if none did.
	NodeID int64
	Err    error
}

// Observer receives dispatch events. Implementations must be safe for
// concurrent use; they are called from every worker.
type Observer interface {
	// ObserveGenerate is called once per request a worker served.
	ObserveGenerate(nodeID int64, took time.Duration, err error)
	// ObserveRejected is called when Submit refuses a request.
	ObserveRejected(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveGenerate(int64, time.Duration, error) {}
func (nopObserver) ObserveRejected(error)                       {}

// Config describes a pool.
type Config struct {
	// NodeIDs lists the node identities, one worker each. They must be
	// unique and fit the layout.
	NodeIDs []int64

	// Epoch in milliseconds since the UNIX epoch, shared by all nodes.
	Epoch int64

	// Layout shared by all nodes. The zero value means the default layout.
	Layout snowflake.BitLayout

	// QueueCapacity bounds the number of requests waiting for a worker.
	QueueCapacity int

	Retry snowflake.RetryPolicy

	// Clock is the nodes' time source. nil means the real clock.
	Clock clock.Clock

	Logger   logrus.FieldLogger
	Observer Observer
}

// DefaultConfig returns 10 nodes (0-9) behind a queue of 100, with the
// default epoch, layout and retry policy.
func DefaultConfig() Config {
	return Config{
		NodeIDs:       NodeRange(0, DefaultNodeCount),
		Epoch:         snowflake.Epoch,
		Layout:        snowflake.LayoutDefault,
		QueueCapacity: DefaultQueueCapacity,
		Retry:         snowflake.DefaultRetryPolicy(),
	}
}

// NodeRange returns count consecutive node IDs starting at first.
func NodeRange(first int64, count int) []int64 {
	ids := make([]int64, count)
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids
}

// Validate reports every problem with the configuration at once. Missing
// optional fields are filled in.
func (c *Config) Validate() error {
	if c.Layout == (snowflake.BitLayout{}) {
		c.Layout = snowflake.LayoutDefault
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}

	var errs error
	if err := c.Layout.Validate(); err != nil {
		errs = multierr.Append(errs, snowflake.NewConfigError("Layout", c.Layout, err.Error(), ""))
		// Node ranges are meaningless without a layout.
		return errs
	}

	if len(c.NodeIDs) == 0 {
		errs = multierr.Append(errs, snowflake.NewConfigError("NodeIDs", "[]", "no nodes", "at least one node is required"))
	}
	seen := make(map[int64]bool, len(c.NodeIDs))
	for i, id := range c.NodeIDs {
		field := fmt.Sprintf("NodeIDs[%d]", i)
		if id < 0 || id > c.Layout.MaxNodeID() {
			errs = multierr.Append(errs, snowflake.NewNodeIDError(field, id, c.Layout.MaxNodeID()))
			continue
		}
		if seen[id] {
			errs = multierr.Append(errs, snowflake.NewConfigError(field, id, "duplicate node id", "node ids must be unique"))
		}
		seen[id] = true
	}

	if c.QueueCapacity < 1 {
		errs = multierr.Append(errs, snowflake.NewConfigError("QueueCapacity", c.QueueCapacity, "must be positive", "must be >= 1"))
	}
	if c.Epoch < 0 {
		errs = multierr.Append(errs, snowflake.NewConfigError("Epoch", c.Epoch, "must not be negative", "must be >= 0"))
	}
	errs = multierr.Append(errs, c.Retry.Validate())
	return errs
}

type request struct {
	ctx   context.Context
	reply chan Result
}

// Pool owns a set of nodes and the workers serving them.
type Pool struct {
	retry    snowflake.RetryPolicy
	clock    clock.Clock
	log      logrus.FieldLogger
	observer Observer

	nodes []*snowflake.Node
	queue chan request

	// mu guards closed and started; Submit holds it shared while sending
	// so Close cannot close the queue under it.
	mu      sync.RWMutex
	closed  bool
	started bool

	wg   sync.WaitGroup
	done chan struct{}
}

// New validates cfg and builds one node per identity. No goroutines are
// started until Start.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nodes := make([]*snowflake.Node, 0, len(cfg.NodeIDs))
	for _, id := range cfg.NodeIDs {
		node, err := snowflake.NewNode(snowflake.NodeConfig{
			NodeID: id,
			Epoch:  cfg.Epoch,
			Layout: cfg.Layout,
			Clock:  cfg.Clock,
		})
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return &Pool{
		retry:    cfg.Retry,
		clock:    cfg.Clock,
		log:      cfg.Logger.WithField("component", "pool"),
		observer: cfg.Observer,
		nodes:    nodes,
		queue:    make(chan request, cfg.QueueCapacity),
		done:     make(chan struct{}),
	}, nil
}

// Start launches one worker per node. Calling it again, or after Close, is
// a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.wg.Add(len(p.nodes))
	for _, node := range p.nodes {
		go p.worker(node)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	p.log.WithFields(logrus.Fields{
		"nodes":    len(p.nodes),
		"queueCap": cap(p.queue),
	}).Info("pool started")
}

// Submit enqueues a request without blocking and returns the channel its
// Result will arrive on. The channel receives exactly one value.
//
// ctx is checked by the worker before generating and bounds any retry
// wait; it does not remove the request from the queue.
func (p *Pool) Submit(ctx context.Context) (<-chan Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.observer.ObserveRejected(ErrPoolClosed)
		return nil, ErrPoolClosed
	}

	reply := make(chan Result, 1)
	select {
	case p.queue <- request{ctx: ctx, reply: reply}:
		return reply, nil
	default:
		p.observer.ObserveRejected(ErrQueueFull)
		return nil, ErrQueueFull
	}
}

// Generate submits a request and waits for its result or for ctx to end.
// If ctx ends first the eventual reply is discarded.
func (p *Pool) Generate(ctx context.Context) (snowflake.ID, error) {
	reply, err := p.Submit(ctx)
	if err != nil {
		return 0, err
	}
	select {
	case res := <-reply:
		return res.ID, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *Pool) worker(node *snowflake.Node) {
	defer p.wg.Done()

	log := p.log.WithField("node", node.NodeID())
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	for req := range p.queue {
		p.serve(node, req, log)
	}
}

func (p *Pool) serve(node *snowflake.Node, req request, log logrus.FieldLogger) {
	if err := req.ctx.Err(); err != nil {
		respond(req, Result{NodeID: node.NodeID(), Err: err})
		return
	}

	start := p.clock.Now()
	id, err := snowflake.GenerateWithRetry(req.ctx, node, p.retry)
	p.observer.ObserveGenerate(node.NodeID(), p.clock.Since(start), err)

	if err != nil {
		switch kind := snowflake.KindOf(err); kind {
		case snowflake.KindClockRegression, snowflake.KindTimestampOverflow:
			log.WithError(err).WithField("kind", kind).Error("generation failed")
		case snowflake.KindRetriesExhausted:
			log.WithError(err).Warn("sequence still exhausted after retries")
		default:
			log.WithError(err).Debug("generation aborted")
		}
	}

	respond(req, Result{ID: id, NodeID: node.NodeID(), Err: err})
}

// respond never blocks: the reply channel has room for the single result,
// and a caller that stopped listening simply never reads it.
func respond(req request, res Result) {
	select {
	case req.reply <- res:
	default:
	}
}

// Close stops accepting requests. Workers finish every request already
// queued and then exit. On a pool that was never started, queued requests
// are answered with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if started {
		p.log.Info("pool closing")
		return
	}
	for req := range p.queue {
		respond(req, Result{NodeID: -1, Err: ErrPoolClosed})
	}
	close(p.done)
}

// Wait blocks until every worker has exited. It returns immediately after
// Close on a pool that was never started.
func (p *Pool) Wait() {
	<-p.done
}

// Shutdown closes the pool and waits for the workers, giving up when ctx
// ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// QueueLen is the number of requests waiting for a worker.
func (p *Pool) QueueLen() int { return len(p.queue) }

// QueueCap is the queue capacity.
func (p *Pool) QueueCap() int { return cap(p.queue) }

// NodeIDs returns the node identities in configuration order.
func (p *Pool) NodeIDs() []int64 {
	ids := make([]int64, len(p.nodes))
	for i, n := range p.nodes {
		ids[i] = n.NodeID()
	}
	return ids
}

// NodeMetrics returns a counter snapshot per node.
func (p *Pool) NodeMetrics() map[int64]snowflake.Metrics {
	m := make(map[int64]snowflake.Metrics, len(p.nodes))
	for _, n := range p.nodes {
		m[n.NodeID()] = n.Metrics()
	}
	return m
}
