package chain

import "math/big"

// WriteSetEntry is one raw key/value pair the runtime wants persisted
// alongside a Chain Store Update.
type WriteSetEntry struct {
	Key   []byte
	Value []byte
}

// WriteSet is a pre-built batch of raw writes produced outside the core's
// own schema — currently only the runtime's genesis state — absorbed into
// a Chain Store Update via Merge so it commits atomically with everything
// else the update stages.
type WriteSet []WriteSetEntry

// RuntimeAdapter is the external state-transition engine the chain core
// delegates every domain-specific decision to: account routing, weight
// computation, transaction execution, validator bookkeeping. The core
// never inspects a transaction or receipt payload itself; it only ever
// calls through this interface and persists whatever comes back.
//
// Implementations must be safe for concurrent use; ChainUpdate may call a
// shard's ApplyTransactions while another goroutine calls ComputeBlockWeight
// for header validation on a sibling chain update.
type RuntimeAdapter interface {
	// NumShards returns the fixed shard count this runtime was configured
	// with. The core rejects any block whose chunk count disagrees.
	NumShards() int

	// GenesisState returns a pre-built write set of whatever raw state the
	// runtime needs seeded at genesis (account balances, initial tries —
	// opaque to the core), plus one post-state root per shard used to seed
	// the first ShardChunkHeader.PrevStateRoot values.
	GenesisState() (WriteSet, [][32]byte, error)

	// AccountIDToShardID routes a receipt's receiving account to the shard
	// responsible for crediting it.
	AccountIDToShardID(account AccountID) ShardID

	// CaresAboutShard reports whether this node, validating as
	// self (itself a runtime-defined identity opaque to the core), must
	// apply transactions for shard at the block with hash parentHash. When
	// false, the core skips ApplyTransactions for that shard and simply
	// copies its chunk header forward unexecuted.
	CaresAboutShard(self AccountID, parentHash [32]byte, shard ShardID) bool

	// ComputeBlockWeight derives the total accumulated weight a header
	// should carry given its parent, validating the block producer and
	// any confirmation signatures it must check for non-produced blocks.
	ComputeBlockWeight(prev, header *BlockHeader) (*big.Int, error)

	// ApplyTransactions executes one shard's chunk. It returns the opaque
	// trie changes the core persists but never inspects, the resulting
	// post-state root, one TxResult per receipt followed by one per
	// transaction, the receipts produced (keyed by destination shard), and
	// any validator proposals this chunk contributes.
	ApplyTransactions(
		shard ShardID,
		prevStateRoot [32]byte,
		heightIncluded uint64,
		prevBlockHash [32]byte,
		receipts []Receipt,
		txs []Transaction,
	) (trieChanges []byte, postStateRoot [32]byte, results []TxResult, newReceipts map[ShardID][]Receipt, proposals []ValidatorProposal, err error)

	// AddValidatorProposals records the validator set changes proposed by
	// the block or header at (blockHash, height) built on top of prevHash.
	AddValidatorProposals(prevHash, blockHash [32]byte, height uint64, proposals []ValidatorProposal) error

	// SetState installs a state snapshot delivered out of band (state
	// sync), validating it against the expected root before accepting it.
	SetState(shard ShardID, stateRoot [32]byte, payload []byte) error
}
