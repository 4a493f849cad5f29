package storage

import (
	"testing"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

func TestEncodeDecodeFlagsRoundTrip(t *testing.T) {
	flags := map[models.BehavioralFlag]bool{
		models.FlagBot:       true,
		models.FlagLargeTx:   true,
		models.FlagExchange:  false, // explicitly off, must not round-trip as set
	}

	encoded := encodeFlags(flags)
	decoded := decodeFlags(encoded)

	if !decoded[models.FlagBot] {
		t.Errorf("decoded flags missing FlagBot: %v", decoded)
	}
	if !decoded[models.FlagLargeTx] {
		t.Errorf("decoded flags missing FlagLargeTx: %v", decoded)
	}
	if decoded[models.FlagExchange] {
		t.Errorf("decoded flags should not include an explicitly-false flag: %v", decoded)
	}
	if len(decoded) != 2 {
		t.Errorf("decoded flags len = %d, want 2", len(decoded))
	}
}

func TestEncodeFlagsIsDeterministic(t *testing.T) {
	flags := map[models.BehavioralFlag]bool{
		models.FlagSuspiciousPattern: true,
		models.FlagBot:               true,
		models.FlagHighFrequency:     true,
	}

	first := encodeFlags(flags)
	for i := 0; i < 5; i++ {
		if got := encodeFlags(flags); got != first {
			t.Fatalf("encodeFlags not deterministic across calls: %q != %q", got, first)
		}
	}
}

func TestDecodeFlagsEmptyString(t *testing.T) {
	decoded := decodeFlags("")
	if len(decoded) != 0 {
		t.Fatalf("decodeFlags(\"\") = %v, want empty map", decoded)
	}
}
