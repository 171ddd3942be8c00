package chain

import (
	"math/big"
	"testing"
	"time"
)

// fakeRuntime is a hand-built RuntimeAdapter test double in the teacher's
// own mockChain style (core/difficulty_test.go): a plain struct backing
// the interface with in-memory state, no mocking framework.
type fakeRuntime struct {
	numShards int
}

func (r *fakeRuntime) NumShards() int { return r.numShards }

func (r *fakeRuntime) GenesisState() (WriteSet, [][32]byte, error) {
	return nil, make([][32]byte, r.numShards), nil
}

func (r *fakeRuntime) AccountIDToShardID(account AccountID) ShardID { return 0 }

func (r *fakeRuntime) CaresAboutShard(self AccountID, parentHash [32]byte, shard ShardID) bool {
	return true
}

func (r *fakeRuntime) ComputeBlockWeight(prev, header *BlockHeader) (*big.Int, error) {
	return new(big.Int).Add(prev.Weight(), big.NewInt(1)), nil
}

func (r *fakeRuntime) ApplyTransactions(
	shard ShardID, prevStateRoot [32]byte, heightIncluded uint64, prevBlockHash [32]byte,
	receipts []Receipt, txs []Transaction,
) ([]byte, [32]byte, []TxResult, map[ShardID][]Receipt, []ValidatorProposal, error) {
	results := make([]TxResult, len(receipts)+len(txs))
	for i := range results {
		results[i] = TxResult{Success: true}
	}
	return nil, prevStateRoot, results, nil, nil, nil
}

func (r *fakeRuntime) AddValidatorProposals(prevHash, blockHash [32]byte, height uint64, proposals []ValidatorProposal) error {
	return nil
}

func (r *fakeRuntime) SetState(shard ShardID, stateRoot [32]byte, payload []byte) error { return nil }

func newTestChain(t *testing.T, numShards int) (*Chain, *fakeRuntime) {
	t.Helper()
	runtime := &fakeRuntime{numShards: numShards}
	c, err := New(t.TempDir(), runtime, AccountID("tester"), time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, runtime
}

func buildChild(t *testing.T, parent *Block, numShards int) *Block {
	t.Helper()
	parentHash := parent.Hash()
	chunks := make([]ShardChunkHeader, numShards)
	bodies := make(map[ShardID]ShardChunk, numShards)
	height := parent.Header.Height + 1

	for i := 0; i < numShards; i++ {
		shard := ShardID(i)
		h := ShardChunkHeader{
			ShardID:        shard,
			HeightIncluded: height,
			PrevBlockHash:  parentHash,
			PrevStateRoot:  parent.Chunks[i].PrevStateRoot,
		}
		chunks[i] = h
		bodies[shard] = ShardChunk{Header: h}
	}

	return &Block{
		Header: BlockHeader{
			Height:        height,
			ParentHash:    parentHash,
			PrevStateRoot: ComputeStateRoot(chunks),
			Timestamp:     parent.Header.Timestamp.Add(time.Second),
			TotalWeight:   new(big.Int).Add(parent.Header.Weight(), big.NewInt(1)),
		},
		Chunks: chunks,
		Bodies: bodies,
	}
}

func TestGenesisBootstrap(t *testing.T) {
	c, _ := newTestChain(t, 2)

	head, err := c.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Height != 0 {
		t.Fatalf("genesis head height = %d, want 0", head.Height)
	}
	if c.Genesis() == nil {
		t.Fatalf("Genesis() returned nil after bootstrap")
	}
}

func TestProcessBlockAdvancesHead(t *testing.T) {
	c, runtime := newTestChain(t, 2)

	head, _ := c.Head()
	genesis, err := c.GetBlock(head.LastBlockHash)
	if err != nil {
		t.Fatalf("GetBlock(genesis): %v", err)
	}

	child := buildChild(t, genesis, runtime.numShards)

	var acceptedStatus BlockStatus
	tip, err := c.ProcessBlock(child, ProvenanceProduced, func(b *Block, status BlockStatus, _ Provenance) {
		acceptedStatus = status
	}, nil)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if tip == nil || tip.Height != 1 {
		t.Fatalf("ProcessBlock returned tip %+v, want height 1", tip)
	}
	if acceptedStatus != StatusNext {
		t.Fatalf("accepted status = %v, want Next", acceptedStatus)
	}

	head, err = c.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Height != 1 || head.LastBlockHash != child.Hash() {
		t.Fatalf("head after ProcessBlock = %+v, want child block", head)
	}
}

func TestProcessBlockOrphanThenResolved(t *testing.T) {
	c, runtime := newTestChain(t, 2)

	head, _ := c.Head()
	genesis, _ := c.GetBlock(head.LastBlockHash)

	child1 := buildChild(t, genesis, runtime.numShards)
	child2 := buildChild(t, child1, runtime.numShards)

	// Submit child2 before child1: it should park as an orphan, not
	// advance the head.
	_, err := c.ProcessBlock(child2, ProvenanceNone, nil, nil)
	if err == nil {
		t.Fatalf("expected child2 to be rejected as orphan before its parent arrives")
	}
	if KindOf(err) != ErrOrphan {
		t.Fatalf("err kind = %v, want Orphan", KindOf(err))
	}
	if !c.IsOrphan(child2.Hash()) {
		t.Fatalf("child2 was not parked in the orphan pool")
	}

	// Now submit child1: it should be accepted, and the cascade should
	// pull child2 in right behind it.
	tip, err := c.ProcessBlock(child1, ProvenanceNone, nil, nil)
	if err != nil {
		t.Fatalf("ProcessBlock(child1): %v", err)
	}
	if tip == nil || tip.Height != 2 {
		t.Fatalf("tip after cascade = %+v, want height 2 (child2 resolved)", tip)
	}
	if c.IsOrphan(child2.Hash()) {
		t.Fatalf("child2 still reported as an orphan after the cascade resolved it")
	}

	head, err := c.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.LastBlockHash != child2.Hash() {
		t.Fatalf("head after cascade = %+v, want child2", head)
	}
}

func TestProcessBlockRejectsWrongChunkCount(t *testing.T) {
	c, runtime := newTestChain(t, 2)

	head, _ := c.Head()
	genesis, _ := c.GetBlock(head.LastBlockHash)
	child := buildChild(t, genesis, runtime.numShards)
	child.Chunks = child.Chunks[:1]

	_, err := c.ProcessBlock(child, ProvenanceNone, nil, nil)
	if KindOf(err) != ErrIncorrectNumberOfChunkHeaders {
		t.Fatalf("err kind = %v, want IncorrectNumberOfChunkHeaders", KindOf(err))
	}
}

func TestProcessBlockRejectsDuplicate(t *testing.T) {
	c, runtime := newTestChain(t, 2)

	head, _ := c.Head()
	genesis, _ := c.GetBlock(head.LastBlockHash)
	child := buildChild(t, genesis, runtime.numShards)

	if _, err := c.ProcessBlock(child, ProvenanceNone, nil, nil); err != nil {
		t.Fatalf("first ProcessBlock: %v", err)
	}

	_, err := c.ProcessBlock(child, ProvenanceNone, nil, nil)
	if err == nil {
		t.Fatalf("expected resubmitting the same block to be rejected")
	}
	kind := KindOf(err)
	if kind != ErrUnfit && kind != ErrOldBlock {
		t.Fatalf("err kind = %v, want Unfit or OldBlock", kind)
	}
}
