package chain

import (
	"math/big"
	"testing"
	"time"

	"shardchain/chain/config"
)

func testBlock(height uint64, nonce byte) *Block {
	return &Block{
		Header: BlockHeader{
			Height:      height,
			Approvals:   []byte{nonce},
			Timestamp:   time.Unix(int64(height), 0),
			TotalWeight: big.NewInt(int64(height)),
		},
	}
}

func TestOrphanPoolAddAndContains(t *testing.T) {
	p := NewOrphanPool()
	b := testBlock(10, 1)
	p.Add(b, ProvenanceNone)

	if !p.Contains(b.Hash()) {
		t.Fatalf("pool does not contain just-added orphan")
	}
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
}

func TestOrphanPoolRemoveByHeight(t *testing.T) {
	p := NewOrphanPool()
	a := testBlock(5, 1)
	b := testBlock(5, 2)
	c := testBlock(6, 3)
	p.Add(a, ProvenanceNone)
	p.Add(b, ProvenanceNone)
	p.Add(c, ProvenanceNone)

	got := p.RemoveByHeight(5)
	if len(got) != 2 {
		t.Fatalf("RemoveByHeight(5) returned %d orphans, want 2", len(got))
	}
	if p.Contains(a.Hash()) || p.Contains(b.Hash()) {
		t.Fatalf("removed orphans still reported as contained")
	}
	if !p.Contains(c.Hash()) {
		t.Fatalf("unrelated orphan at a different height was removed")
	}

	heights := p.AllHeights()
	if len(heights) != 1 || heights[0] != 6 {
		t.Fatalf("AllHeights() = %v, want [6]", heights)
	}
}

func TestOrphanPoolEvictsHighestHeightFirst(t *testing.T) {
	p := NewOrphanPool()

	// Fill past the cap with blocks at distinct heights, all fresh
	// enough to survive the age-based sweep, forcing eviction to fall
	// through to the height-based pass.
	for h := uint64(0); h < uint64(config.MaxOrphanSize)+10; h++ {
		p.Add(testBlock(h, byte(h)), ProvenanceNone)
	}

	if p.Len() > config.MaxOrphanSize {
		t.Fatalf("pool size %d exceeds cap %d after eviction", p.Len(), config.MaxOrphanSize)
	}
	if p.Evicted() == 0 {
		t.Fatalf("expected some evictions once the pool exceeded its cap")
	}

	// The lowest heights (most likely to resolve soon) must survive;
	// the highest must not.
	if !p.Contains(testBlock(0, 0).Hash()) {
		t.Fatalf("lowest-height orphan was evicted, want it kept")
	}
	top := uint64(config.MaxOrphanSize) + 9
	if p.Contains(testBlock(top, byte(top)).Hash()) {
		t.Fatalf("highest-height orphan survived eviction, want it dropped first")
	}
}
