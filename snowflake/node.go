// Package snowflake generates 64-bit, time-ordered unique identifiers
// ("snowflakes") from a timestamp, a node identity and a per-millisecond
// sequence.
//
// # ID Structure (default layout)
//
//	┌─────────────────────────────────────────────┬──────────────┬──────────────┐
//	│       41 bits: Timestamp (milliseconds)     │  10 bits:    │  12 bits:    │
//	│     Allows ~69 years from epoch (2024)      │  Node ID     │  Sequence    │
//	│                                             │  (0-1023)    │  (0-4095)    │
//	└─────────────────────────────────────────────┴──────────────┴──────────────┘
//
// # Ownership
//
// A Node holds mutable generation state and is not safe for concurrent use.
// It is meant to be owned by exactly one goroutine; package pool runs one
// worker goroutine per Node and routes requests to them.
//
// # Failures
//
// Node.Next never waits and never returns a default value. A clock
// regression, a timestamp outside the layout, or an exhausted sequence are
// all reported to the caller. Only sequence exhaustion is transient;
// GenerateWithRetry retries it under a RetryPolicy.
//
// # Usage
//
//	node, err := snowflake.NewNode(snowflake.DefaultNodeConfig(42))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id, err := snowflake.GenerateWithRetry(ctx, node, snowflake.DefaultRetryPolicy())
package snowflake

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Epoch is the default epoch (January 1, 2024 00:00:00 UTC) in milliseconds
// since the UNIX epoch.
const Epoch int64 = 1704067200000

// NodeConfig holds the settings of a single Node.
type NodeConfig struct {
	// NodeID uniquely identifies the node among all nodes sharing the epoch
	// and layout. Valid range is [0, Layout.MaxNodeID()].
	NodeID int64

	// Epoch is the custom epoch in milliseconds since the UNIX epoch.
	Epoch int64

	// Layout is the bit allocation. The zero value means LayoutDefault.
	//
	// IMPORTANT: IDs generated with different layouts are incompatible.
	Layout BitLayout

	// Clock is the time source. nil means the real clock.
	Clock clock.Clock
}

// DefaultNodeConfig returns a NodeConfig with the default epoch and layout
// and the real clock.
func DefaultNodeConfig(nodeID int64) NodeConfig {
	return NodeConfig{
		NodeID: nodeID,
		Epoch:  Epoch,
		Layout: LayoutDefault,
		Clock:  clock.New(),
	}
}

// Validate checks the configuration, filling in the zero-valued layout and
// clock with their defaults.
//
// A node identity outside the layout's range yields a ConfigError matching
// ErrInvalidNodeID; every other problem matches ErrInvalidConfig.
func (c *NodeConfig) Validate() error {
	if c.Layout == (BitLayout{}) {
		c.Layout = LayoutDefault
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}

	if err := c.Layout.Validate(); err != nil {
		return NewConfigError("Layout", c.Layout, err.Error(), "")
	}
	if c.NodeID < 0 || c.NodeID > c.Layout.MaxNodeID() {
		return NewNodeIDError("NodeID", c.NodeID, c.Layout.MaxNodeID())
	}
	if c.Epoch < 0 {
		return NewConfigError("Epoch", c.Epoch, "must not be negative",
			"epoch timestamp in milliseconds must be >= 0")
	}
	return nil
}

// Metrics is a snapshot of a node's counters.
type Metrics struct {
	Generated          int64 // IDs successfully issued
	ClockRegressions   int64 // Next calls rejected because the clock went back
	SequenceOverflows  int64 // Next calls rejected because the millisecond was exhausted
	TimestampOverflows int64 // Next calls rejected because the time did not fit the layout
}

// Node is the generation state machine for one node identity.
type Node struct {
	nodeID int64
	epoch  int64
	layout BitLayout
	clock  clock.Clock
	// start anchors readings on the monotonic clock when the time source
	// provides one.
	start time.Time

	lastTimestamp int64
	sequence      int64

	generated          atomic.Int64
	clockRegressions   atomic.Int64
	sequenceOverflows  atomic.Int64
	timestampOverflows atomic.Int64
}

// NewNode validates cfg and returns a Node with lastTimestamp and sequence
// at zero.
func NewNode(cfg NodeConfig) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Node{
		nodeID: cfg.NodeID,
		epoch:  cfg.Epoch,
		layout: cfg.Layout,
		clock:  cfg.Clock,
		start:  cfg.Clock.Now(),
	}, nil
}

// Next issues one ID or reports why it cannot.
//
// State transitions:
//   - time outside [0, MaxTimestamp]: *OverflowError (TimestampOverflowType), state unchanged
//   - time before the last issued timestamp: *ClockError, state unchanged
//   - same millisecond, sequence exhausted: *OverflowError (SequenceOverflowType), state unchanged
//   - same millisecond: sequence incremented
//   - later millisecond: timestamp advanced, sequence reset to zero
//
// Next does not sleep. IDs returned by one Node strictly increase.
func (n *Node) Next() (ID, error) {
	now := n.currentTimestamp()

	if now < 0 || now > n.layout.MaxTimestamp() {
		n.timestampOverflows.Add(1)
		return 0, newTimestampOverflowError(now, n.nodeID, n.layout.MaxTimestamp())
	}

	switch {
	case now < n.lastTimestamp:
		n.clockRegressions.Add(1)
		return 0, newClockError(now, n.lastTimestamp, n.nodeID)
	case now == n.lastTimestamp:
		if n.sequence >= n.layout.MaxSequence() {
			n.sequenceOverflows.Add(1)
			return 0, newSequenceOverflowError(now, n.sequence, n.nodeID, n.layout.MaxSequence())
		}
		n.sequence++
	default:
		n.lastTimestamp = now
		n.sequence = 0
	}

	n.generated.Add(1)
	return n.layout.Pack(n.lastTimestamp, n.nodeID, n.sequence), nil
}

// currentTimestamp returns milliseconds since the node's epoch.
func (n *Node) currentTimestamp() int64 {
	now := n.clock.Now()
	return n.start.Add(now.Sub(n.start)).UnixMilli() - n.epoch
}

// NodeID returns the node identity. It never changes.
func (n *Node) NodeID() int64 { return n.nodeID }

// Layout returns the bit layout the node packs IDs with.
func (n *Node) Layout() BitLayout { return n.layout }

// Epoch returns the node's epoch in milliseconds since the UNIX epoch.
func (n *Node) Epoch() int64 { return n.epoch }

// State returns the last issued timestamp and sequence. Like Next, it must
// only be called by the owning goroutine.
func (n *Node) State() (lastTimestamp, sequence int64) {
	return n.lastTimestamp, n.sequence
}

// Metrics returns a snapshot of the node's counters. Safe to call from any
// goroutine.
func (n *Node) Metrics() Metrics {
	return Metrics{
		Generated:          n.generated.Load(),
		ClockRegressions:   n.clockRegressions.Load(),
		SequenceOverflows:  n.sequenceOverflows.Load(),
		TimestampOverflows: n.timestampOverflows.Load(),
	}
}

// String describes the node for logs.
func (n *Node) String() string {
	return fmt.Sprintf("node(%d, layout=%s, epoch=%d)", n.nodeID, n.layout, n.epoch)
}
