package chain

// ShardID identifies one of the fixed shards the chain is partitioned into.
type ShardID uint64

// AccountID names an account. The core never interprets it beyond routing
// receipts to a shard via RuntimeAdapter.AccountIDToShardID.
type AccountID string

// ShardChunkHeader is the per-shard commitment carried inside a Block.
// HeightIncluded distinguishes a freshly produced chunk (HeightIncluded ==
// the block's own height) from a "missing chunk" placeholder that simply
// repeats the previous block's chunk header (HeightIncluded < block height).
type ShardChunkHeader struct {
	ShardID        ShardID
	HeightIncluded uint64
	PrevBlockHash  [32]byte
	PrevStateRoot  [32]byte
	OutcomeRoot    [32]byte
}

// ChunkHash content-addresses a ShardChunkHeader.
func (h ShardChunkHeader) ChunkHash() [32]byte {
	buf := make([]byte, 0, 8+8+32+32+32)
	buf = appendUint64(buf, uint64(h.ShardID))
	buf = appendUint64(buf, h.HeightIncluded)
	buf = append(buf, h.PrevBlockHash[:]...)
	buf = append(buf, h.PrevStateRoot[:]...)
	buf = append(buf, h.OutcomeRoot[:]...)
	return sha3Sum(buf)
}

// ShardChunk is the chunk body: a chunk header plus the transactions it
// carries. Receipts produced while applying it are derived, not stored here.
type ShardChunk struct {
	Header       ShardChunkHeader
	Transactions []Transaction
}

// Transaction is an opaque, runtime-defined transaction payload. The core
// never parses it; it is handed to RuntimeAdapter.ApplyTransactions as-is
// and hashed only for indexing transaction results.
type Transaction struct {
	Hash    [32]byte
	Payload []byte
}

// Receipt is a cross-shard side effect produced by applying one shard's
// transactions, addressed to a receiving account on (possibly) another
// shard.
type Receipt struct {
	Hash     [32]byte
	Receiver AccountID
	Payload  []byte
}

// TxResult is the outcome of applying a single transaction or receipt,
// keyed by its hash when persisted.
type TxResult struct {
	Success bool
	Payload []byte
}

// ValidatorProposal is an opaque, runtime-defined validator set change
// proposed by a block or header. The core only relays it to
// RuntimeAdapter.AddValidatorProposals.
type ValidatorProposal struct {
	AccountID AccountID
	Payload   []byte
}
