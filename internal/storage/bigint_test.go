package storage

import (
	"math/big"
	"testing"
)

func TestBigStringNilIsZero(t *testing.T) {
	if got := bigString(nil); got != "0" {
		t.Fatalf("bigString(nil) = %q, want \"0\"", got)
	}
}

func TestBigStringRoundTripsThroughParseBig(t *testing.T) {
	tests := []*big.Int{
		big.NewInt(0),
		big.NewInt(12345),
		new(big.Int).Lsh(big.NewInt(1), 200), // exceeds int64/float64 precision
	}
	for _, v := range tests {
		s := bigString(v)
		got := parseBig(s)
		if got.Cmp(v) != 0 {
			t.Errorf("parseBig(bigString(%s)) = %s, want %s", v, got, v)
		}
	}
}

func TestParseBigMalformedFallsBackToZero(t *testing.T) {
	got := parseBig("not-a-number")
	if got.Sign() != 0 {
		t.Fatalf("parseBig(malformed) = %s, want 0", got)
	}
}
