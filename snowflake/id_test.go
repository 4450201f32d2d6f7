package snowflake

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

// sampleID is a realistic default-layout ID: ~1 year after the epoch,
// node 42, sequence 7.
var sampleID = LayoutDefault.Pack(31_536_000_000, 42, 7)

// TestIDEncodings tests all encoding formats
func TestIDEncodings(t *testing.T) {
	tests := []struct {
		name   string
		encode func(ID) string
		decode func(string) (ID, error)
	}{
		{"String", ID.String, ParseString},
		{"Base32", ID.Base32, ParseBase32},
		{"Base58", ID.Base58, ParseBase58},
		{"Base62", ID.Base62, ParseBase62},
		{"Hex", ID.Hex, ParseHex},
	}

	ids := []ID{0, 1, sampleID, math.MaxInt64, -1, math.MinInt64}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, id := range ids {
				encoded := tt.encode(id)
				decoded, err := tt.decode(encoded)
				if err != nil {
					t.Fatalf("%s decode(%q) error = %v", tt.name, encoded, err)
				}
				if decoded != id {
					t.Errorf("%s: decoded = %d, want %d (encoded: %s)",
						tt.name, decoded, id, encoded)
				}
			}
		})
	}
}

func TestIDEncodings_KnownValues(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{ID(0).Base58(), "1"},
		{ID(57).Base58(), "Z"},
		{ID(58).Base58(), "21"},
		{ID(61).Base62(), "Z"},
		{ID(62).Base62(), "10"},
		{ID(255).Hex(), "ff"},
		{ID(0).Base32(), "y"},
		{ID(32).Base32(), "by"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("encoding = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestIDEncode_Formats(t *testing.T) {
	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			s, err := sampleID.Encode(f)
			if err != nil {
				t.Fatalf("Encode(%s) error = %v", f, err)
			}
			got, err := ParseFormat(s, f)
			if err != nil {
				t.Fatalf("ParseFormat(%q, %s) error = %v", s, f, err)
			}
			if got != sampleID {
				t.Errorf("ParseFormat(Encode(%s)) = %d, want %d", f, got, sampleID)
			}
		})
	}

	if _, err := sampleID.Encode("base2"); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Encode(base2) error = %v, want ErrInvalidEncoding", err)
	}
}

func TestParseFormatName(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatDecimal, false},
		{"HEX", FormatHex, false},
		{" base58 ", FormatBase58, false},
		{"base64", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormatName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormatName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormatName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{sampleID.String(), sampleID, false},
		{" 42 ", 42, false},
		{"0x" + sampleID.Hex(), sampleID, false},
		{"0XFF", 255, false},
		{"abc", 0, true},
		{"", 0, true},
		{"0x", 0, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidEncoding", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// TestIDJSON tests JSON marshaling/unmarshaling
func TestIDJSON(t *testing.T) {
	type payload struct {
		ID ID `json:"id"`
	}

	data, err := json.Marshal(payload{ID: sampleID})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"id":"` + sampleID.String() + `"}`
	if string(data) != want {
		t.Errorf("json.Marshal() = %s, want %s", data, want)
	}

	var quoted payload
	if err := json.Unmarshal(data, &quoted); err != nil {
		t.Fatalf("json.Unmarshal(quoted) error = %v", err)
	}
	if quoted.ID != sampleID {
		t.Errorf("quoted: ID = %d, want %d", quoted.ID, sampleID)
	}

	var bare payload
	if err := json.Unmarshal([]byte(`{"id":`+sampleID.String()+`}`), &bare); err != nil {
		t.Fatalf("json.Unmarshal(bare) error = %v", err)
	}
	if bare.ID != sampleID {
		t.Errorf("bare: ID = %d, want %d", bare.ID, sampleID)
	}

	for _, bad := range []string{`{"id":""}`, `{"id":"x1"}`, `{"id":1.5}`} {
		var p payload
		if err := json.Unmarshal([]byte(bad), &p); err == nil {
			t.Errorf("json.Unmarshal(%s) should fail", bad)
		}
	}
}

func TestIDText(t *testing.T) {
	text, err := sampleID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	var got ID
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if got != sampleID {
		t.Errorf("UnmarshalText(MarshalText()) = %d, want %d", got, sampleID)
	}
}

// TestIDBinary tests binary marshaling
func TestIDBinary(t *testing.T) {
	data, err := sampleID.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if len(data) != 8 {
		t.Fatalf("MarshalBinary() length = %d, want 8", len(data))
	}

	var got ID
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got != sampleID {
		t.Errorf("UnmarshalBinary() = %d, want %d", got, sampleID)
	}

	if err := got.UnmarshalBinary(data[:7]); err == nil {
		t.Error("UnmarshalBinary() should reject 7 bytes")
	}

	if ParseIntBytes(sampleID.IntBytes()) != sampleID {
		t.Error("ParseIntBytes(IntBytes()) should round-trip")
	}
}

func TestIDScan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    ID
		wantErr bool
	}{
		{"int64", int64(sampleID), sampleID, false},
		{"bytes", []byte(sampleID.String()), sampleID, false},
		{"string", sampleID.String(), sampleID, false},
		{"nil", nil, 0, false},
		{"float", 1.5, 0, true},
		{"bad string", "nope", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ID
			err := got.Scan(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan(%v) error = %v, wantErr %v", tt.src, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Scan(%v) = %d, want %d", tt.src, got, tt.want)
			}
		})
	}

	v, err := sampleID.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != int64(sampleID) {
		t.Errorf("Value() = %v, want %d", v, int64(sampleID))
	}
}

// TestIDComparison tests ID comparison methods
func TestIDComparison(t *testing.T) {
	a, b := ID(100), ID(200)

	if !a.Before(b) || a.After(b) {
		t.Error("100 should be before 200")
	}
	if !b.After(a) || b.Before(a) {
		t.Error("200 should be after 100")
	}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Errorf("Compare() = %d/%d/%d, want -1/1/0", a.Compare(b), b.Compare(a), a.Compare(a))
	}
}

// TestIDSharding tests sharding distribution
func TestIDSharding(t *testing.T) {
	const shards = 16
	counts := make(map[int64]int)
	for i := 0; i < 1600; i++ {
		s := ID(i).Shard(shards)
		if s < 0 || s >= shards {
			t.Fatalf("Shard() = %d, out of [0, %d)", s, shards)
		}
		counts[s]++
	}
	for s, c := range counts {
		if c != 100 {
			t.Errorf("shard %d got %d IDs, want 100", s, c)
		}
	}
	if got := ID(-1).Shard(shards); got < 0 {
		t.Errorf("Shard() of a negative ID = %d, want non-negative", got)
	}
	for _, n := range []int64{0, -4} {
		if got := ID(12345).Shard(n); got != 0 {
			t.Errorf("Shard(%d) = %d, want 0", n, got)
		}
	}
}

func TestInvalidEncodings(t *testing.T) {
	tests := []struct {
		name    string
		parse   func(string) (ID, error)
		in      string
		wantErr error
	}{
		{"base58 empty", ParseBase58, "", ErrInvalidEncoding},
		{"base58 zero char", ParseBase58, "0", ErrInvalidEncoding},
		{"base58 too long", ParseBase58, "111111111111", ErrStringTooLong},
		{"base62 symbol", ParseBase62, "ab-c", ErrInvalidEncoding},
		{"base62 overflow", ParseBase62, "ZZZZZZZZZZZ", ErrIntegerOverflow},
		{"base32 uppercase", ParseBase32, "YBN", ErrInvalidEncoding},
		{"hex too long", ParseHex, "10000000000000000", ErrStringTooLong},
		{"hex bad char", ParseHex, "0xg1", ErrInvalidEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parse(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("parse(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func BenchmarkIDEncodings(b *testing.B) {
	b.Run("Base58", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = sampleID.Base58()
		}
	})
	b.Run("Base62", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = sampleID.Base62()
		}
	})
	b.Run("Hex", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = sampleID.Hex()
		}
	})
}
