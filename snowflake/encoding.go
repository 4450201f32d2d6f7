// Package snowflake - encoding.go converts IDs to and from compact text forms.
//
// # Supported Encodings
//
//   - Base32: z-base-32, avoids visually similar characters
//   - Base58: Bitcoin-style, no confusing characters (0, O, I, l)
//   - Base62: URL-safe alphanumeric
//   - Hex: lowercase, decoding accepts uppercase
//
// Every encoding works on the 64-bit two's complement pattern of the ID, so
// any int64 round-trips, not only the non-negative values a generator emits.
//
// # Thread Safety
//
// Alphabets are built once at package init and are read-only afterwards.

package snowflake

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Maximum string lengths for each encoding of a 64-bit value.
const (
	MaxBase32Len = 13
	MaxBase58Len = 11
	MaxBase62Len = 11
	MaxHexLen    = 16
)

// Encoding errors returned when parsing invalid encoded strings.
var (
	ErrInvalidEncoding = errors.New("invalid encoding")
	ErrStringTooLong   = errors.New("encoded string exceeds maximum length")
	ErrIntegerOverflow = errors.New("decoded value would overflow 64 bits")
)

// Format names a text representation of an ID.
type Format string

const (
	FormatDecimal Format = "decimal"
	FormatBase32  Format = "base32"
	FormatBase58  Format = "base58"
	FormatBase62  Format = "base62"
	FormatHex     Format = "hex"
)

// Formats lists every supported Format.
func Formats() []Format {
	return []Format{FormatDecimal, FormatBase32, FormatBase58, FormatBase62, FormatHex}
}

// ParseFormatName resolves a format name (case-insensitive). An empty name
// resolves to FormatDecimal.
func ParseFormatName(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if f == "" {
		return FormatDecimal, nil
	}
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown format %q", ErrInvalidEncoding, name)
}

// alphabet is a positional numeral system over a fixed character set.
type alphabet struct {
	name   string
	chars  string
	maxLen int
	decode [256]byte
}

func newAlphabet(name, chars string, maxLen int, foldCase bool) *alphabet {
	a := &alphabet{name: name, chars: chars, maxLen: maxLen}
	for i := range a.decode {
		a.decode[i] = 0xFF
	}
	for i := 0; i < len(chars); i++ {
		a.decode[chars[i]] = byte(i)
		if foldCase && chars[i] >= 'a' && chars[i] <= 'z' {
			a.decode[chars[i]-32] = byte(i)
		}
	}
	return a
}

var (
	base32Alphabet = newAlphabet("base32", "ybndrfg8ejkmcpqxot1uwisza345h769", MaxBase32Len, false)
	base58Alphabet = newAlphabet("base58", "123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ", MaxBase58Len, false)
	base62Alphabet = newAlphabet("base62", "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ", MaxBase62Len, false)
	hexAlphabet    = newAlphabet("hex", "0123456789abcdef", MaxHexLen, true)
)

func (a *alphabet) encode(v uint64) string {
	if v == 0 {
		return a.chars[:1]
	}
	base := uint64(len(a.chars))
	var buf [64]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = a.chars[v%base]
		v /= base
	}
	return string(buf[i:])
}

func (a *alphabet) decodeString(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty %s string", ErrInvalidEncoding, a.name)
	}
	if len(s) > a.maxLen {
		return 0, fmt.Errorf("%w: %s string of %d chars", ErrStringTooLong, a.name, len(s))
	}
	base := uint64(len(a.chars))
	var v uint64
	for i := 0; i < len(s); i++ {
		d := a.decode[s[i]]
		if d == 0xFF {
			return 0, fmt.Errorf("%w: %q is not a %s character", ErrInvalidEncoding, s[i], a.name)
		}
		hi, lo := bits.Mul64(v, base)
		if hi != 0 {
			return 0, fmt.Errorf("%w: %s %q", ErrIntegerOverflow, a.name, s)
		}
		sum, carry := bits.Add64(lo, uint64(d), 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: %s %q", ErrIntegerOverflow, a.name, s)
		}
		v = sum
	}
	return v, nil
}

func (a *alphabet) parse(s string) (ID, error) {
	v, err := a.decodeString(s)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// Base32 returns the z-base-32 form of the ID.
func (id ID) Base32() string { return base32Alphabet.encode(uint64(id)) }

// Base58 returns the Bitcoin-style base58 form of the ID.
func (id ID) Base58() string { return base58Alphabet.encode(uint64(id)) }

// Base62 returns the URL-safe base62 form of the ID (0-9, a-z, A-Z).
func (id ID) Base62() string { return base62Alphabet.encode(uint64(id)) }

// Hex returns the lowercase hexadecimal form of the ID, without prefix.
func (id ID) Hex() string { return hexAlphabet.encode(uint64(id)) }

// Encode renders the ID in the given format.
func (id ID) Encode(f Format) (string, error) {
	switch f {
	case FormatDecimal, "":
		return id.String(), nil
	case FormatBase32:
		return id.Base32(), nil
	case FormatBase58:
		return id.Base58(), nil
	case FormatBase62:
		return id.Base62(), nil
	case FormatHex:
		return id.Hex(), nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrInvalidEncoding, f)
	}
}

// ParseBase32 parses a z-base-32 string produced by ID.Base32.
func ParseBase32(s string) (ID, error) { return base32Alphabet.parse(s) }

// ParseBase58 parses a base58 string produced by ID.Base58.
func ParseBase58(s string) (ID, error) { return base58Alphabet.parse(s) }

// ParseBase62 parses a base62 string produced by ID.Base62.
func ParseBase62(s string) (ID, error) { return base62Alphabet.parse(s) }

// ParseHex parses a hexadecimal string, with or without a 0x prefix.
func ParseHex(s string) (ID, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return hexAlphabet.parse(s)
}

// ParseFormat parses s in the given format.
func ParseFormat(s string, f Format) (ID, error) {
	switch f {
	case FormatDecimal, "":
		return ParseString(s)
	case FormatBase32:
		return ParseBase32(s)
	case FormatBase58:
		return ParseBase58(s)
	case FormatBase62:
		return ParseBase62(s)
	case FormatHex:
		return ParseHex(s)
	default:
		return 0, fmt.Errorf("%w: unknown format %q", ErrInvalidEncoding, f)
	}
}

// Parse accepts the decimal form or a 0x-prefixed hexadecimal form. The
// other encodings overlap with decimal digits and need ParseFormat.
//
// Example:
//
//	id, _ := snowflake.Parse("1234567890123456789")
//	id, _ = snowflake.Parse("0x112210f47de98115")
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return ParseHex(s)
	}
	return ParseString(s)
}

// ParseString parses a decimal string into an ID.
func ParseString(s string) (ID, error) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	return ID(i), nil
}
