// Package snowflake - layout.go defines the bit allocation of an ID and the
// pure packing/unpacking functions built on it.

package snowflake

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// BitLayout defines how the 63 usable bits of an ID are split between the
// timestamp, the node identity and the per-millisecond sequence.
//
// The layout is chosen once for a deployment. Generators and decoders that
// exchange IDs must agree on it; a mismatch is not detectable from the ID
// itself.
//
//	┌──────────────────────────┬───────────────┬─────────────────┐
//	│ TimestampBits (ms)       │ NodeBits      │ SequenceBits    │
//	└──────────────────────────┴───────────────┴─────────────────┘
type BitLayout struct {
	// TimestampBits is the width of the millisecond timestamp field.
	// Range: 38-42 bits (8.7 to 139 years).
	TimestampBits int

	// NodeBits is the width of the node identity field.
	// Range: 8-18 bits (256 to 262,144 nodes).
	NodeBits int

	// SequenceBits is the width of the per-millisecond counter.
	// Range: 6-14 bits (64 to 16,384 IDs per millisecond per node).
	SequenceBits int
}

// Pre-defined layouts. All of them use the full 63 bits.
var (
	// LayoutDefault is the classic 41/10/12 split: ~69 years, 1,024 nodes,
	// 4,096 IDs per millisecond per node.
	LayoutDefault = BitLayout{TimestampBits: 41, NodeBits: 10, SequenceBits: 12}

	// LayoutSuperior trades throughput for scale: ~35 years, 16,384 nodes,
	// 512 IDs per millisecond per node.
	LayoutSuperior = BitLayout{TimestampBits: 40, NodeBits: 14, SequenceBits: 9}

	// LayoutExtreme targets very large fleets: ~17 years, 131,072 nodes,
	// 128 IDs per millisecond per node.
	LayoutExtreme = BitLayout{TimestampBits: 39, NodeBits: 17, SequenceBits: 7}

	// LayoutUltra: ~17 years, 32,768 nodes, 512 IDs per millisecond per node.
	LayoutUltra = BitLayout{TimestampBits: 39, NodeBits: 15, SequenceBits: 9}

	// LayoutLongLife: ~139 years, 4,096 nodes, 512 IDs per millisecond per node.
	LayoutLongLife = BitLayout{TimestampBits: 42, NodeBits: 12, SequenceBits: 9}
)

var namedLayouts = map[string]BitLayout{
	"default":  LayoutDefault,
	"superior": LayoutSuperior,
	"extreme":  LayoutExtreme,
	"ultra":    LayoutUltra,
	"longlife": LayoutLongLife,
}

// ErrInvalidBitLayout is returned when a BitLayout is invalid or unknown.
var ErrInvalidBitLayout = errors.New("invalid bit layout")

// ParseLayout resolves a layout by its preset name (case-insensitive).
// An empty name resolves to LayoutDefault.
func ParseLayout(name string) (BitLayout, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return LayoutDefault, nil
	}
	l, ok := namedLayouts[name]
	if !ok {
		return BitLayout{}, fmt.Errorf("%w: unknown layout %q (known: %s)",
			ErrInvalidBitLayout, name, strings.Join(LayoutNames(), ", "))
	}
	return l, nil
}

// LayoutNames returns the preset names accepted by ParseLayout, sorted.
func LayoutNames() []string {
	names := make([]string, 0, len(namedLayouts))
	for n := range namedLayouts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the widths are positive, sum to exactly 63 bits and
// stay within practical ranges.
func (l BitLayout) Validate() error {
	if l.TimestampBits < 0 || l.NodeBits < 0 || l.SequenceBits < 0 {
		return fmt.Errorf("%w: field widths cannot be negative (%d+%d+%d)",
			ErrInvalidBitLayout, l.TimestampBits, l.NodeBits, l.SequenceBits)
	}

	total := l.TimestampBits + l.NodeBits + l.SequenceBits
	if total != 63 {
		return fmt.Errorf("%w: total bits must equal 63, got %d (%d+%d+%d)",
			ErrInvalidBitLayout, total, l.TimestampBits, l.NodeBits, l.SequenceBits)
	}

	if l.TimestampBits < 38 || l.TimestampBits > 42 {
		return fmt.Errorf("%w: timestamp bits should be 38-42, got %d",
			ErrInvalidBitLayout, l.TimestampBits)
	}
	if l.NodeBits < 8 || l.NodeBits > 18 {
		return fmt.Errorf("%w: node bits should be 8-18, got %d",
			ErrInvalidBitLayout, l.NodeBits)
	}
	if l.SequenceBits < 6 || l.SequenceBits > 14 {
		return fmt.Errorf("%w: sequence bits should be 6-14, got %d",
			ErrInvalidBitLayout, l.SequenceBits)
	}
	return nil
}

// MaxNodeID is the largest node identity the layout can hold.
func (l BitLayout) MaxNodeID() int64 { return 1<<l.NodeBits - 1 }

// MaxSequence is the largest sequence value within one millisecond.
func (l BitLayout) MaxSequence() int64 { return 1<<l.SequenceBits - 1 }

// MaxTimestamp is the largest representable number of milliseconds since
// the epoch.
func (l BitLayout) MaxTimestamp() int64 { return 1<<l.TimestampBits - 1 }

func (l BitLayout) nodeShift() uint      { return uint(l.SequenceBits) }
func (l BitLayout) timestampShift() uint { return uint(l.SequenceBits + l.NodeBits) }

// Pack composes an ID from its three fields.
//
// Pack performs no range checks: callers pass fields already known to fit
// their widths. Out-of-range input silently corrupts neighbouring fields.
//
//	ID = timestamp << (NodeBits+SequenceBits) | node << SequenceBits | sequence
func (l BitLayout) Pack(timestamp, nodeID, sequence int64) ID {
	return ID(timestamp<<l.timestampShift() | nodeID<<l.nodeShift() | sequence)
}

// Unpack is the exact inverse of Pack for every ID Pack produced.
func (l BitLayout) Unpack(id ID) (timestamp, nodeID, sequence int64) {
	v := int64(id)
	timestamp = v >> l.timestampShift()
	nodeID = (v >> l.nodeShift()) & l.MaxNodeID()
	sequence = v & l.MaxSequence()
	return
}

// Components is a decoded ID.
type Components struct {
	// Timestamp is milliseconds since the deployment epoch.
	Timestamp int64
	NodeID    int64
	Sequence  int64
	// Time is the absolute wall-clock time the ID was issued at.
	Time time.Time
}

// Decompose unpacks id and resolves its timestamp against epoch
// (milliseconds since the UNIX epoch).
func (l BitLayout) Decompose(id ID, epoch int64) Components {
	ts, node, seq := l.Unpack(id)
	return Components{
		Timestamp: ts,
		NodeID:    node,
		Sequence:  seq,
		Time:      time.UnixMilli(epoch + ts).UTC(),
	}
}

// LayoutCapacity describes the limits of a BitLayout.
type LayoutCapacity struct {
	MaxNodes          int64
	IDsPerMillisecond int64
	MaxTimestamp      int64
	Lifespan          time.Duration
	IDsPerSecPerNode  int64
}

// Capacity reports the theoretical limits of the layout.
func (l BitLayout) Capacity() LayoutCapacity {
	perMs := l.MaxSequence() + 1
	// 2^42 ms still fits comfortably in a time.Duration (~292 years).
	lifespan := time.Duration(l.MaxTimestamp()+1) * time.Millisecond
	return LayoutCapacity{
		MaxNodes:          l.MaxNodeID() + 1,
		IDsPerMillisecond: perMs,
		MaxTimestamp:      l.MaxTimestamp(),
		Lifespan:          lifespan,
		IDsPerSecPerNode:  perMs * 1000,
	}
}

// String returns a human-readable description of the capacity.
func (c LayoutCapacity) String() string {
	years := int(c.Lifespan.Hours() / 24 / 365)
	return fmt.Sprintf("nodes=%d ids/sec/node=%d lifespan=%dy", c.MaxNodes, c.IDsPerSecPerNode, years)
}

// String renders the layout as "41/10/12".
func (l BitLayout) String() string {
	return fmt.Sprintf("%d/%d/%d", l.TimestampBits, l.NodeBits, l.SequenceBits)
}
