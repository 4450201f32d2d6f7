// Package api holds the JSON wire types exchanged between the snowflaked
// HTTP service and its clients.
//
// Every response body is a single envelope object with exactly one of its
// fields set:
//
//	{"snowflake": "1234567890123456789"}
//	{"components": {"id": "...", "timestamp": 1500, ...}}
//	{"error": {"kind": "sequence_overflow", "message": "..."}}
//
// IDs travel as decimal strings so JavaScript clients do not lose precision.
package api

import (
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sxyafiq/snowflaked/snowflake"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyResponse is returned by Response.Result when the envelope holds
// neither a snowflake nor an error.
var ErrEmptyResponse = errors.New("api: response has neither snowflake nor error")

// Response is the envelope of every response body.
type Response struct {
	Snowflake  *snowflake.ID `json:"snowflake,omitempty"`
	Components *Components   `json:"components,omitempty"`
	Error      *Error        `json:"error,omitempty"`
}

// Error is the wire form of a failure.
type Error struct {
	// Kind is a snowflake.Kind tag such as "clock_regression".
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Components is the wire form of a decoded ID.
type Components struct {
	ID        snowflake.ID      `json:"id"`
	Timestamp int64             `json:"timestamp"`
	Time      time.Time         `json:"time"`
	NodeID    int64             `json:"nodeId"`
	Sequence  int64             `json:"sequence"`
	Layout    string            `json:"layout"`
	Encodings map[string]string `json:"encodings,omitempty"`
}

// NewComponents decodes id with the given layout and epoch, including every
// text encoding of it.
func NewComponents(id snowflake.ID, layout snowflake.BitLayout, epoch int64) *Components {
	c := layout.Decompose(id, epoch)
	enc := make(map[string]string, len(snowflake.Formats()))
	for _, f := range snowflake.Formats() {
		s, _ := id.Encode(f)
		enc[string(f)] = s
	}
	return &Components{
		ID:        id,
		Timestamp: c.Timestamp,
		Time:      c.Time,
		NodeID:    c.NodeID,
		Sequence:  c.Sequence,
		Layout:    layout.String(),
		Encodings: enc,
	}
}

// NewSnowflakeResponse wraps a generated ID.
func NewSnowflakeResponse(id snowflake.ID) Response {
	return Response{Snowflake: &id}
}

// NewErrorResponse wraps err, tagging it with its snowflake.Kind.
func NewErrorResponse(err error) Response {
	return Response{Error: &Error{
		Kind:    snowflake.KindOf(err).String(),
		Message: err.Error(),
	}}
}

// Result returns the ID carried by the envelope, or a *RemoteError.
func (r Response) Result() (snowflake.ID, error) {
	if r.Error != nil {
		return 0, r.Error.Err()
	}
	if r.Snowflake == nil {
		return 0, ErrEmptyResponse
	}
	return *r.Snowflake, nil
}

// Err rebuilds the failure as a *RemoteError.
func (e *Error) Err() *RemoteError {
	return &RemoteError{Kind: snowflake.ParseKind(e.Kind), Message: e.Message}
}

// RemoteError is a failure reported by the service. It unwraps to the
// snowflake sentinel of its kind, so errors.Is works across the wire:
//
//	if errors.Is(err, snowflake.ErrSequenceOverflow) { ... }
type RemoteError struct {
	Kind    snowflake.Kind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Kind.Sentinel()
}

// Encode writes v as JSON followed by a newline.
func Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// Decode reads one JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal parses JSON data into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
