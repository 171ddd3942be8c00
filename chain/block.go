package chain

import (
	"encoding/json"
	"math/big"
	"time"

	"shardchain/chain/header"
)

// BlockHeader is the header type blocks and the store deal in. Defined as
// an alias so the rest of the package can say BlockHeader the way the spec
// and original_source do, while the hashing/encoding logic stays in the
// header package, same split as the teacher's core/header.
type BlockHeader = header.Header

// Provenance records why a block reached the core: produced locally,
// received from a peer, or replayed during header sync. It is handed to
// the acceptance callback and stored with parked orphans. ChainUpdate
// validates every full block's header as ProvenanceNone, so a locally
// produced block's weight is recomputed like any other; only
// SyncBlockHeaders passes a provenance (ProvenanceSync) into validation.
type Provenance int

const (
	ProvenanceNone Provenance = iota
	ProvenanceProduced
	ProvenanceSync
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceProduced:
		return "produced"
	case ProvenanceSync:
		return "sync"
	default:
		return "none"
	}
}

// Block is a full block: header plus one chunk header per shard. Freshly
// produced chunk bodies ride along in Bodies, keyed by shard; a chunk whose HeightIncluded
// is below the block's own height is a "missing chunk" placeholder copied
// forward from the previous block and carries no body here.
type Block struct {
	Header BlockHeader        `json:"header"`
	Chunks []ShardChunkHeader `json:"chunks"`
	Bodies map[ShardID]ShardChunk `json:"bodies"`
}

// Hash returns the block's hash, which is simply its header's hash.
func (b *Block) Hash() [32]byte {
	return b.Header.Hash()
}

// Encode serializes the block to JSON for storage and transmission,
// matching the teacher's wire format.
func (b *Block) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBlock deserializes a block previously produced by Encode.
func DecodeBlock(data []byte) (*Block, error) {
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// ComputeStateRoot folds the per-shard post-state roots carried in a set of
// chunk headers into a single merkle root, the value ChainUpdate checks
// against Header.PrevStateRoot of the same block.
func ComputeStateRoot(chunks []ShardChunkHeader) [32]byte {
	return merkleRootOfStateRoots(chunks)
}

// GenesisBlock builds the height-0 block out of the runtime's genesis state
// roots, one per shard, and the configured genesis time.
func GenesisBlock(stateRoots [][32]byte, genesisTime time.Time, numShards int) *Block {
	chunks := make([]ShardChunkHeader, numShards)
	for i := 0; i < numShards; i++ {
		var root [32]byte
		if i < len(stateRoots) {
			root = stateRoots[i]
		}
		chunks[i] = ShardChunkHeader{
			ShardID:        ShardID(i),
			HeightIncluded: 0,
			PrevBlockHash:  [32]byte{},
			PrevStateRoot:  root,
		}
	}
	return &Block{
		Header: BlockHeader{
			Height:        0,
			ParentHash:    [32]byte{},
			PrevStateRoot: ComputeStateRoot(chunks),
			Timestamp:     genesisTime,
			TotalWeight:   big.NewInt(0),
		},
		Chunks: chunks,
	}
}
