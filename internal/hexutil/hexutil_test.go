package hexutil

import (
	"math/big"
	"testing"
)

func TestTrimPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0xabc", "abc"},
		{"0XABC", "ABC"},
		{"abc", "abc"},
		{"  0xabc  ", "abc"},
	}
	for _, tt := range tests {
		if got := TrimPrefix(tt.in); got != tt.want {
			t.Errorf("TrimPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	got := NormalizeAddress("0XABCDEF0000000000000000000000000000000001")
	want := "0xabcdef0000000000000000000000000000000001"
	if got != want {
		t.Errorf("NormalizeAddress(...) = %q, want %q", got, want)
	}
}

func TestQuantityToHexAndHexToUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 255, 1_000_000, 18_446_744_073_709_551_615}
	for _, v := range values {
		hex := QuantityToHex(v)
		got, err := HexToUint64(hex)
		if err != nil {
			t.Fatalf("HexToUint64(%q) error = %v", hex, err)
		}
		if got != v {
			t.Errorf("round trip(%d) = %d via %q", v, got, hex)
		}
	}
}

func TestQuantityToHexZero(t *testing.T) {
	if got := QuantityToHex(0); got != "0x0" {
		t.Errorf("QuantityToHex(0) = %q, want \"0x0\"", got)
	}
}

func TestHexToUint64EmptyIsError(t *testing.T) {
	if _, err := HexToUint64("0x"); err == nil {
		t.Error("HexToUint64(\"0x\") expected an error for an empty quantity")
	}
}

func TestHexToBigIntAndBigIntToHexRoundTrip(t *testing.T) {
	v := new(big.Int)
	v.SetString("123456789012345678901234567890", 10)

	hex := BigIntToHex(v)
	got, err := HexToBigInt(hex)
	if err != nil {
		t.Fatalf("HexToBigInt(%q) error = %v", hex, err)
	}
	if got.Cmp(v) != 0 {
		t.Errorf("round trip = %s, want %s", got, v)
	}
}

func TestBigIntToHexNil(t *testing.T) {
	if got := BigIntToHex(nil); got != "0x0" {
		t.Errorf("BigIntToHex(nil) = %q, want \"0x0\"", got)
	}
}

func TestHexToBigIntInvalid(t *testing.T) {
	if _, err := HexToBigInt("0xzz"); err == nil {
		t.Error("HexToBigInt(\"0xzz\") expected an error for invalid hex")
	}
}

func TestAddressFromTopicStripsLeftPadding(t *testing.T) {
	topic := "0x000000000000000000000000abcdef0000000000000000000000000000000001"
	got, err := AddressFromTopic(topic)
	if err != nil {
		t.Fatalf("AddressFromTopic(%q) error = %v", topic, err)
	}
	want := "0xabcdef0000000000000000000000000000000001"
	if got != want {
		t.Errorf("AddressFromTopic(...) = %q, want %q", got, want)
	}
}

func TestAddressFromTopicWrongLength(t *testing.T) {
	if _, err := AddressFromTopic("0xabcd"); err == nil {
		t.Error("AddressFromTopic with a short topic expected an error")
	}
}

func TestIsValidHex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0xabcdef", true},
		{"abcdef", true},
		{"0xabc", false}, // odd length
		{"0xzzzz", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidHex(tt.in); got != tt.want {
			t.Errorf("IsValidHex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
