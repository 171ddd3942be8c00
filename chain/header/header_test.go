package header

import (
	"math/big"
	"testing"
	"time"
)

func TestHashNilReceiver(t *testing.T) {
	var h *Header
	got := h.Hash()
	if got != ([32]byte{}) {
		t.Fatalf("Hash() on nil receiver = %x, want zero hash", got)
	}
}

func TestHashDeterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	h1 := &Header{Height: 7, Timestamp: ts, TotalWeight: big.NewInt(42)}
	h2 := &Header{Height: 7, Timestamp: ts, TotalWeight: big.NewInt(42)}
	if h1.Hash() != h2.Hash() {
		t.Fatalf("identical headers produced different hashes")
	}
}

func TestHashDiffersOnHeight(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	h1 := &Header{Height: 7, Timestamp: ts, TotalWeight: big.NewInt(1)}
	h2 := &Header{Height: 8, Timestamp: ts, TotalWeight: big.NewInt(1)}
	if h1.Hash() == h2.Hash() {
		t.Fatalf("headers with different heights hashed the same")
	}
}

func TestWeightNilSafe(t *testing.T) {
	var h *Header
	if h.Weight().Sign() != 0 {
		t.Fatalf("Weight() on nil receiver should be zero")
	}
	h2 := &Header{}
	if h2.Weight().Sign() != 0 {
		t.Fatalf("Weight() with nil TotalWeight should be zero")
	}
}
