// Package snowflake - id.go provides the ID type and its standard library
// integrations.

package snowflake

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"strconv"
)

// ID is a 64-bit snowflake identifier.
//
// The sign bit of a generated ID is always zero, so IDs sort numerically in
// issue order per node and roughly in time order across nodes.
//
// The ID implements standard Go interfaces:
//   - fmt.Stringer (decimal)
//   - json.Marshaler / json.Unmarshaler (as a string, JavaScript-safe)
//   - encoding.TextMarshaler / encoding.TextUnmarshaler
//   - encoding.BinaryMarshaler / encoding.BinaryUnmarshaler (8 bytes, big-endian)
//   - sql.Scanner / driver.Valuer (BIGINT)
//
// Decoding the fields of an ID needs the BitLayout and epoch it was issued
// with; see BitLayout.Decompose.
type ID int64

// ============================================================================
// Basic Conversions
// ============================================================================

// Int64 returns the ID as an int64.
func (id ID) Int64() int64 {
	return int64(id)
}

// Uint64 returns the ID as a uint64.
func (id ID) Uint64() uint64 {
	return uint64(id)
}

// String returns the decimal string representation of the ID.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ============================================================================
// Binary Encoding
// ============================================================================

// IntBytes returns the ID as an 8-byte big-endian integer.
func (id ID) IntBytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b
}

// ParseIntBytes is the inverse of IntBytes.
func ParseIntBytes(b [8]byte) ID {
	return ID(binary.BigEndian.Uint64(b[:]))
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (id ID) MarshalBinary() ([]byte, error) {
	b := id.IntBytes()
	return b[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. data must be
// exactly 8 bytes.
func (id *ID) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("%w: binary ID must be 8 bytes, got %d", ErrInvalidEncoding, len(data))
	}
	*id = ID(binary.BigEndian.Uint64(data))
	return nil
}

// ============================================================================
// JSON Marshaling
// ============================================================================

// MarshalJSON implements json.Marshaler.
//
// Returns the ID as a JSON string (not number) to avoid precision loss in
// JavaScript, whose numbers are only exact up to 2^53.
//
//	type User struct {
//	    ID snowflake.ID `json:"id"`
//	}
//	// Marshals as: {"id": "1234567890123456789"}
func (id ID) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 22)
	b = append(b, '"')
	b = strconv.AppendInt(b, int64(id), 10)
	return append(b, '"'), nil
}

// UnmarshalJSON implements json.Unmarshaler. Both the quoted and the bare
// number form are accepted.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return fmt.Errorf("%w: invalid JSON ID %s", ErrInvalidEncoding, data)
	}
	v, err := ParseString(s)
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ============================================================================
// Text Marshaling (for YAML, XML, etc.)
// ============================================================================

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	v, err := ParseString(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ============================================================================
// SQL Database Integration
// ============================================================================

// Scan implements sql.Scanner.
//
// Supported source types:
//   - int64: BIGINT / INTEGER columns
//   - []byte, string: VARCHAR / TEXT columns holding the decimal form
//   - nil: zero ID
//
// Example:
//
//	var id snowflake.ID
//	err := db.QueryRow("SELECT id FROM users WHERE email = ?", email).Scan(&id)
func (id *ID) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*id = 0
	case int64:
		*id = ID(v)
	case []byte:
		return id.UnmarshalText(v)
	case string:
		return id.UnmarshalText([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	return nil
}

// Value implements driver.Valuer. IDs are stored as BIGINT.
//
//	CREATE TABLE users (id BIGINT PRIMARY KEY, ...);
func (id ID) Value() (driver.Value, error) {
	return int64(id), nil
}

// ============================================================================
// Comparison
// ============================================================================

// Before reports whether id sorts before other.
func (id ID) Before(other ID) bool { return id < other }

// After reports whether id sorts after other.
func (id ID) After(other ID) bool { return id > other }

// Compare returns -1, 0 or +1.
func (id ID) Compare(other ID) int {
	switch {
	case id < other:
		return -1
	case id > other:
		return 1
	default:
		return 0
	}
}

// Shard maps the ID onto one of numShards buckets. It returns 0 when
// numShards is not positive.
func (id ID) Shard(numShards int64) int64 {
	if numShards <= 0 {
		return 0
	}
	return int64(uint64(id) % uint64(numShards))
}
