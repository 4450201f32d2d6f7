// Package snowflake - errors.go defines the error taxonomy shared by the
// generator, the dispatcher and the service boundary.
//
// Every failure is reported with a sentinel usable with errors.Is and, where
// there is context worth keeping, a typed error usable with errors.As.

package snowflake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Typed errors below unwrap to exactly one of these.
var (
	// ErrClockRegression is returned when the clock reads earlier than the
	// last timestamp a node issued an ID for.
	ErrClockRegression = errors.New("clock moved backwards")

	// ErrTimestampOverflow is returned when the current time cannot be
	// represented in the timestamp field, either because it is before the
	// epoch or because the layout's lifespan is over.
	ErrTimestampOverflow = errors.New("timestamp overflow")

	// ErrSequenceOverflow is returned when a node has used every sequence
	// value of the current millisecond.
	ErrSequenceOverflow = errors.New("sequence overflow")

	// ErrRetriesExhausted is returned when a retry policy gives up while the
	// sequence is still exhausted.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrQueueFull is returned when a request cannot be enqueued because the
	// dispatcher's queue is at capacity.
	ErrQueueFull = errors.New("queue full")

	// ErrPoolClosed is returned when work is submitted to a dispatcher that
	// no longer accepts it.
	ErrPoolClosed = errors.New("pool closed")

	// ErrInvalidNodeID is returned when a node identity does not fit the
	// layout's node field.
	ErrInvalidNodeID = errors.New("invalid node id")

	// ErrInvalidConfig is returned for any other configuration problem.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ============================================================================
// Kinds
// ============================================================================

// Kind classifies an error for transport and metrics. The string form of a
// Kind is stable and appears on the wire.
type Kind int

const (
	KindUnknown Kind = iota
	KindClockRegression
	KindTimestampOverflow
	KindSequenceOverflow
	KindRetriesExhausted
	KindQueueFull
	KindNodeIDInvalid
	KindInvalidConfig
	KindPoolClosed
	KindTimeout
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindClockRegression:   "clock_regression",
	KindTimestampOverflow: "timestamp_overflow",
	KindSequenceOverflow:  "sequence_overflow",
	KindRetriesExhausted:  "retries_exhausted",
	KindQueueFull:         "queue_full",
	KindNodeIDInvalid:     "node_id_invalid",
	KindInvalidConfig:     "invalid_config",
	KindPoolClosed:        "pool_closed",
	KindTimeout:           "timeout",
}

// String returns the wire tag of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String. Unrecognised tags map to
// KindUnknown.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k)
		}
	}
	return KindUnknown
}

// Sentinel returns the sentinel error for the kind, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	switch k {
	case KindClockRegression:
		return ErrClockRegression
	case KindTimestampOverflow:
		return ErrTimestampOverflow
	case KindSequenceOverflow:
		return ErrSequenceOverflow
	case KindRetriesExhausted:
		return ErrRetriesExhausted
	case KindQueueFull:
		return ErrQueueFull
	case KindNodeIDInvalid:
		return ErrInvalidNodeID
	case KindInvalidConfig:
		return ErrInvalidConfig
	case KindPoolClosed:
		return ErrPoolClosed
	case KindTimeout:
		return context.DeadlineExceeded
	default:
		return nil
	}
}

// KindOf classifies err. A RetryError is reported as KindRetriesExhausted
// even though it also wraps the last sequence overflow.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, ErrClockRegression):
		return KindClockRegression
	case errors.Is(err, ErrTimestampOverflow):
		return KindTimestampOverflow
	case errors.Is(err, ErrSequenceOverflow):
		return KindSequenceOverflow
	case errors.Is(err, ErrQueueFull):
		return KindQueueFull
	case errors.Is(err, ErrPoolClosed):
		return KindPoolClosed
	case errors.Is(err, ErrInvalidNodeID):
		return KindNodeIDInvalid
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidBitLayout):
		return KindInvalidConfig
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	default:
		return KindUnknown
	}
}

// ============================================================================
// Custom Error Types
// ============================================================================

// ClockError reports a clock regression observed by a node.
//
// Example usage:
//
//	id, err := node.Next()
//	if clockErr, ok := GetClockError(err); ok {
//	    log.WithField("drift", clockErr.Drift()).Error("clock moved backwards")
//	}
type ClockError struct {
	// CurrentTimestamp is the offending reading, in ms since the epoch.
	CurrentTimestamp int64

	// LastTimestamp is the timestamp of the last issued ID.
	LastTimestamp int64

	NodeID int64
}

func (e *ClockError) Error() string {
	return fmt.Sprintf("clock moved backwards: drift=%dms current=%d last=%d node=%d",
		e.DriftMilliseconds(), e.CurrentTimestamp, e.LastTimestamp, e.NodeID)
}

func (e *ClockError) Unwrap() error { return ErrClockRegression }

// DriftMilliseconds is how far the clock went back. Always positive.
func (e *ClockError) DriftMilliseconds() int64 {
	return e.LastTimestamp - e.CurrentTimestamp
}

// Drift returns DriftMilliseconds as a time.Duration.
func (e *ClockError) Drift() time.Duration {
	return time.Duration(e.DriftMilliseconds()) * time.Millisecond
}

// OverflowType indicates which field overflowed.
type OverflowType int

const (
	// SequenceOverflowType: more IDs were requested in one millisecond than
	// the sequence field holds.
	SequenceOverflowType OverflowType = iota

	// TimestampOverflowType: the clock reading does not fit the timestamp
	// field.
	TimestampOverflowType
)

// String returns a human-readable name for the overflow type.
func (t OverflowType) String() string {
	switch t {
	case SequenceOverflowType:
		return "sequence_overflow"
	case TimestampOverflowType:
		return "timestamp_overflow"
	default:
		return "unknown_overflow"
	}
}

// OverflowError reports a sequence or timestamp overflow.
//
// A sequence overflow is transient and resolves on the next millisecond; a
// timestamp overflow is not and needs operator attention.
type OverflowError struct {
	Type OverflowType

	// Timestamp is the reading that overflowed, in ms since the epoch.
	Timestamp int64

	// Sequence is the sequence value that could not be incremented.
	// Only set for SequenceOverflowType.
	Sequence int64

	NodeID int64

	// Max is the largest value the overflowing field can hold.
	Max int64

	// BeforeEpoch is set when the clock reads earlier than the epoch.
	BeforeEpoch bool
}

func (e *OverflowError) Error() string {
	switch e.Type {
	case SequenceOverflowType:
		return fmt.Sprintf("sequence overflow: more than %d IDs in 1ms (node=%d, timestamp=%d)",
			e.Max+1, e.NodeID, e.Timestamp)
	case TimestampOverflowType:
		if e.BeforeEpoch {
			return fmt.Sprintf("timestamp overflow: clock is %dms before the epoch (node=%d)",
				-e.Timestamp, e.NodeID)
		}
		return fmt.Sprintf("timestamp overflow: %d exceeds max %d (node=%d)",
			e.Timestamp, e.Max, e.NodeID)
	default:
		return fmt.Sprintf("unknown overflow type: %d", e.Type)
	}
}

func (e *OverflowError) Unwrap() error {
	if e.Type == TimestampOverflowType {
		return ErrTimestampOverflow
	}
	return ErrSequenceOverflow
}

// RetryError is returned when a retry policy runs out of attempts. It
// matches both ErrRetriesExhausted and the last error seen.
type RetryError struct {
	// Attempts is the total number of generation attempts made.
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrRetriesExhausted}
	}
	return []error{ErrRetriesExhausted, e.Last}
}

// ConfigError represents a configuration validation error.
//
// Example usage:
//
//	if _, err := NewNode(cfg); err != nil {
//	    var configErr *ConfigError
//	    if errors.As(err, &configErr) {
//	        log.WithField("field", configErr.Field).Error(configErr.Reason)
//	    }
//	}
type ConfigError struct {
	// Field is the name of the configuration field that failed validation.
	Field string

	// Value is the invalid value (as string for logging).
	Value string

	// Reason is a human-readable explanation of why the value is invalid.
	Reason string

	// Constraint describes the valid range, e.g. "must be between 0 and 1023".
	Constraint string

	sentinel error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid configuration: %s=%s (%s)", e.Field, e.Value, e.Reason)
	if e.Constraint != "" {
		msg += " - " + e.Constraint
	}
	return msg
}

// Unwrap returns ErrInvalidNodeID for node identity problems and
// ErrInvalidConfig for everything else.
func (e *ConfigError) Unwrap() error {
	if e.sentinel != nil {
		return e.sentinel
	}
	return ErrInvalidConfig
}

// ============================================================================
// Error Helper Functions
// ============================================================================

// IsClockError checks if an error is or wraps a ClockError.
func IsClockError(err error) bool {
	var clockErr *ClockError
	return errors.As(err, &clockErr)
}

// IsConfigError checks if an error is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsOverflowError checks if an error is or wraps an OverflowError.
func IsOverflowError(err error) bool {
	var overflowErr *OverflowError
	return errors.As(err, &overflowErr)
}

// IsRetryError checks if an error is or wraps a RetryError.
func IsRetryError(err error) bool {
	var retryErr *RetryError
	return errors.As(err, &retryErr)
}

// GetClockError extracts the ClockError from an error chain.
func GetClockError(err error) (*ClockError, bool) {
	var clockErr *ClockError
	if errors.As(err, &clockErr) {
		return clockErr, true
	}
	return nil, false
}

// GetConfigError extracts the ConfigError from an error chain.
func GetConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetOverflowError extracts the OverflowError from an error chain.
//
// Example:
//
//	if overflowErr, ok := GetOverflowError(err); ok {
//	    fmt.Printf("Overflow type: %s\n", overflowErr.Type)
//	}
func GetOverflowError(err error) (*OverflowError, bool) {
	var overflowErr *OverflowError
	if errors.As(err, &overflowErr) {
		return overflowErr, true
	}
	return nil, false
}

// GetRetryError extracts the RetryError from an error chain.
func GetRetryError(err error) (*RetryError, bool) {
	var retryErr *RetryError
	if errors.As(err, &retryErr) {
		return retryErr, true
	}
	return nil, false
}

// ============================================================================
// Error Constructor Helpers
// ============================================================================

// NewConfigError creates a ConfigError that unwraps to ErrInvalidConfig.
func NewConfigError(field string, value any, reason, constraint string) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      fmt.Sprint(value),
		Reason:     reason,
		Constraint: constraint,
	}
}

// NewNodeIDError creates a ConfigError for a node identity outside
// [0, maxNodeID]. It unwraps to ErrInvalidNodeID.
func NewNodeIDError(field string, nodeID, maxNodeID int64) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      fmt.Sprint(nodeID),
		Reason:     "node id out of range",
		Constraint: fmt.Sprintf("must be between 0 and %d", maxNodeID),
		sentinel:   ErrInvalidNodeID,
	}
}

func newClockError(currentTs, lastTs, nodeID int64) *ClockError {
	return &ClockError{
		CurrentTimestamp: currentTs,
		LastTimestamp:    lastTs,
		NodeID:           nodeID,
	}
}

func newSequenceOverflowError(timestamp, sequence, nodeID, maxSequence int64) *OverflowError {
	return &OverflowError{
		Type:      SequenceOverflowType,
		Timestamp: timestamp,
		Sequence:  sequence,
		NodeID:    nodeID,
		Max:       maxSequence,
	}
}

func newTimestampOverflowError(timestamp, nodeID, maxTimestamp int64) *OverflowError {
	return &OverflowError{
		Type:        TimestampOverflowType,
		Timestamp:   timestamp,
		NodeID:      nodeID,
		Max:         maxTimestamp,
		BeforeEpoch: timestamp < 0,
	}
}
