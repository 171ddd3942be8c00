package chain

import "fmt"

// ChainStoreUpdate is a single staged write batch (component C) — the
// write side of the atomic Chain Update transaction. Every Save* method
// only touches in-memory overlay state; nothing reaches the database
// until Commit succeeds, so a ChainUpdate that bails out partway through
// (an error, a crash, Ctrl+C) leaves the store exactly as it was.
//
// Reads made through a ChainStoreUpdate see the overlay first, falling
// back to the underlying store. This lets ChainUpdate read back a block
// or header it just staged in the same transaction, matching how
// process_block stages the new block before reading its parent back out.
type ChainStoreUpdate struct {
	store *BadgerStore

	blocks        map[[32]byte]*Block
	headers       map[[32]byte]*BlockHeader
	heightToHash  map[uint64][32]byte
	head          *Tip
	headerHead    *Tip
	syncHead      *Tip
	postState     map[[32]byte][32]byte
	trieChanges   map[[32]byte][]byte
	incoming      map[incomingKey][]Receipt
	outgoing      map[outgoingKey][]Receipt
	results       map[[32]byte]TxResult
	merged        WriteSet
	committed     bool
}

type incomingKey struct {
	blockHash [32]byte
	shard     ShardID
}

type outgoingKey struct {
	blockHash [32]byte
	shard     ShardID
}

func newChainStoreUpdate(store *BadgerStore) *ChainStoreUpdate {
	return &ChainStoreUpdate{
		store:        store,
		blocks:       make(map[[32]byte]*Block),
		headers:      make(map[[32]byte]*BlockHeader),
		heightToHash: make(map[uint64][32]byte),
		postState:    make(map[[32]byte][32]byte),
		trieChanges:  make(map[[32]byte][]byte),
		incoming:     make(map[incomingKey][]Receipt),
		outgoing:     make(map[outgoingKey][]Receipt),
		results:      make(map[[32]byte]TxResult),
	}
}

// Head, HeaderHead and SyncHead read the staged head if one has been set
// this transaction, else fall through to the committed store.
func (u *ChainStoreUpdate) Head() (*Tip, error) {
	if u.head != nil {
		return u.head, nil
	}
	return u.store.Head()
}

func (u *ChainStoreUpdate) HeaderHead() (*Tip, error) {
	if u.headerHead != nil {
		return u.headerHead, nil
	}
	return u.store.HeaderHead()
}

func (u *ChainStoreUpdate) SyncHead() (*Tip, error) {
	if u.syncHead != nil {
		return u.syncHead, nil
	}
	return u.store.SyncHead()
}

func (u *ChainStoreUpdate) SaveHead(tip *Tip) error {
	u.head = tip
	return nil
}

func (u *ChainStoreUpdate) SaveHeaderHead(tip *Tip) error {
	u.headerHead = tip
	return nil
}

func (u *ChainStoreUpdate) SaveSyncHead(tip *Tip) {
	u.syncHead = tip
}

func (u *ChainStoreUpdate) SaveBlock(b *Block) {
	hash := b.Hash()
	u.blocks[hash] = b
	u.heightToHash[b.Header.Height] = hash
}

func (u *ChainStoreUpdate) SaveBlockHeader(h *BlockHeader) {
	u.headers[h.Hash()] = h
}

func (u *ChainStoreUpdate) SavePostStateRoot(chunkHash, root [32]byte) {
	u.postState[chunkHash] = root
}

func (u *ChainStoreUpdate) SaveTrieChanges(chunkHash [32]byte, payload []byte) {
	u.trieChanges[chunkHash] = payload
}

// Merge absorbs a pre-built write set into this update, staged like any
// other write so it only reaches the store on Commit. Used to seed
// genesis state the runtime computed outside the core's own schema.
func (u *ChainStoreUpdate) Merge(ws WriteSet) {
	u.merged = append(u.merged, ws...)
}

func (u *ChainStoreUpdate) SaveIncomingReceipt(blockHash [32]byte, shard ShardID, receipts []Receipt) {
	u.incoming[incomingKey{blockHash, shard}] = receipts
}

func (u *ChainStoreUpdate) SaveOutgoingReceipt(blockHash [32]byte, shard ShardID, receipts []Receipt) {
	u.outgoing[outgoingKey{blockHash, shard}] = receipts
}

func (u *ChainStoreUpdate) SaveTransactionResult(hash [32]byte, result TxResult) {
	u.results[hash] = result
}

func (u *ChainStoreUpdate) GetBlock(hash [32]byte) (*Block, error) {
	if b, ok := u.blocks[hash]; ok {
		return b, nil
	}
	return u.store.GetBlock(hash)
}

func (u *ChainStoreUpdate) GetBlockHeader(hash [32]byte) (*BlockHeader, error) {
	if h, ok := u.headers[hash]; ok {
		return h, nil
	}
	if b, ok := u.blocks[hash]; ok {
		return &b.Header, nil
	}
	return u.store.GetBlockHeader(hash)
}

func (u *ChainStoreUpdate) GetBlockHashByHeight(height uint64) ([32]byte, error) {
	if hash, ok := u.heightToHash[height]; ok {
		return hash, nil
	}
	return u.store.GetBlockHashByHeight(height)
}

func (u *ChainStoreUpdate) BlockExists(hash [32]byte) (bool, error) {
	if _, ok := u.blocks[hash]; ok {
		return true, nil
	}
	ok, err := u.store.BlockExists(hash)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// GetPreviousHeader returns the header of h's parent, translating a
// not-found into ErrOrphan the way the original chain.rs's
// get_previous_header does — a missing parent header is the defining
// symptom of an orphan block, not a generic lookup failure.
func (u *ChainStoreUpdate) GetPreviousHeader(h *BlockHeader) (*BlockHeader, error) {
	prev, err := u.GetBlockHeader(h.ParentHash)
	if err != nil {
		if ce, ok := err.(*ChainError); ok && ce.Kind == ErrDBNotFound {
			return nil, errOrphan()
		}
		return nil, err
	}
	return prev, nil
}

func (u *ChainStoreUpdate) GetPostStateRoot(chunkHash [32]byte) ([32]byte, error) {
	if r, ok := u.postState[chunkHash]; ok {
		return r, nil
	}
	return u.store.GetPostStateRoot(chunkHash)
}

func (u *ChainStoreUpdate) GetTrieChanges(chunkHash [32]byte) ([]byte, error) {
	if p, ok := u.trieChanges[chunkHash]; ok {
		return p, nil
	}
	return u.store.GetTrieChanges(chunkHash)
}

func (u *ChainStoreUpdate) GetIncomingReceiptsForShard(blockHash [32]byte, shard ShardID) ([]Receipt, error) {
	if rs, ok := u.incoming[incomingKey{blockHash, shard}]; ok {
		return rs, nil
	}
	return u.store.GetIncomingReceipts(blockHash, shard)
}

func (u *ChainStoreUpdate) GetOutgoingReceiptsForShard(blockHash [32]byte, shard ShardID) ([]Receipt, error) {
	if rs, ok := u.outgoing[outgoingKey{blockHash, shard}]; ok {
		return rs, nil
	}
	return u.store.GetOutgoingReceipts(blockHash, shard)
}

func (u *ChainStoreUpdate) GetChunk(header ShardChunkHeader) (*ShardChunk, error) {
	return u.store.GetChunk(header)
}

// Commit flushes every staged write in one atomic BadgerDB transaction.
// ChainStoreUpdate must not be reused after Commit returns, successfully
// or not.
func (u *ChainStoreUpdate) Commit() error {
	if u.committed {
		return fmt.Errorf("chain: store update already committed")
	}
	u.committed = true
	return u.store.applyUpdate(u)
}
