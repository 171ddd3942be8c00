package chain

// ChainStore is the read-only facade over persisted chain state (component
// B), implemented by BadgerStore. Chain holds the concrete *BadgerStore and
// ChainUpdate reads through its *ChainStoreUpdate; only ChainStoreUpdate is
// allowed to mutate the underlying store, and only by committing a batch
// atomically.
type ChainStore interface {
	Head() (*Tip, error)
	HeaderHead() (*Tip, error)
	SyncHead() (*Tip, error)

	GetBlock(hash [32]byte) (*Block, error)
	GetBlockByHeight(height uint64) (*Block, error)
	GetBlockHashByHeight(height uint64) ([32]byte, error)
	BlockExists(hash [32]byte) (bool, error)

	GetBlockHeader(hash [32]byte) (*BlockHeader, error)
	GetHeaderByHeight(height uint64) (*BlockHeader, error)
	GetPreviousHeader(h *BlockHeader) (*BlockHeader, error)

	GetPostStateRoot(chunkHash [32]byte) ([32]byte, error)
	GetTrieChanges(chunkHash [32]byte) ([]byte, error)
	GetTransactionResult(hash [32]byte) (*TxResult, error)
	GetIncomingReceipts(blockHash [32]byte, shard ShardID) ([]Receipt, error)
	GetOutgoingReceipts(blockHash [32]byte, shard ShardID) ([]Receipt, error)
	GetChunk(header ShardChunkHeader) (*ShardChunk, error)

	// StoreUpdate returns a fresh staged write batch over this store.
	StoreUpdate() *ChainStoreUpdate

	Close() error
}
