package chain

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key prefixes. Every persisted record lives under one of these, the same
// namespacing convention the teacher's badgerstore.go used for its single
// "block:" keyspace, generalized to the full set this store now holds.
const (
	prefixBlockByHash   = "block:hash:"
	prefixHashByHeight  = "block:height:"
	prefixHeader        = "header:"
	prefixHeaderHeight  = "header:height:"
	keyHeadBlock        = "head:block"
	keyHeadHeader       = "head:header"
	keyHeadSync         = "head:sync"
	prefixPostState     = "poststate:"
	prefixTrieChanges   = "triechanges:"
	prefixResult        = "result:"
	prefixIncomingRecpt = "recv:"
	prefixOutgoingRecpt = "outr:"
)

// BadgerStore is the BadgerDB-backed ChainStore (component B) and the
// concrete target ChainStoreUpdate (component C) commits into. Reads that
// hit cold storage are cached in-process via golang-lru so a hot header or
// block does not round-trip through Badger on every lookup, the same
// read-cache shape go-ethereum's core.HeaderChain uses over its own
// key-value store.
type BadgerStore struct {
	db *badger.DB

	headerCache *lru.Cache[[32]byte, *BlockHeader]
	blockCache  *lru.Cache[[32]byte, *Block]
}

// OpenBadgerStore opens (creating if absent) a BadgerDB database rooted at
// dataDir/badger.
func OpenBadgerStore(dataDir string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataDir, "badger")
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("chain: open badger store: %w", err)
	}
	headerCache, _ := lru.New[[32]byte, *BlockHeader](4096)
	blockCache, _ := lru.New[[32]byte, *Block](1024)
	return &BadgerStore{db: db, headerCache: headerCache, blockCache: blockCache}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) StoreUpdate() *ChainStoreUpdate {
	return newChainStoreUpdate(s)
}

func hashKey(prefix string, hash [32]byte) []byte {
	return []byte(prefix + hex.EncodeToString(hash[:]))
}

func heightKey(prefix string, height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return append([]byte(prefix), b[:]...)
}

func (s *BadgerStore) getBytes(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, errDBNotFound(string(key))
	}
	if err != nil {
		return nil, errOther(err)
	}
	return out, nil
}

func (s *BadgerStore) Head() (*Tip, error)       { return s.getTip(keyHeadBlock) }
func (s *BadgerStore) HeaderHead() (*Tip, error) { return s.getTip(keyHeadHeader) }
func (s *BadgerStore) SyncHead() (*Tip, error)   { return s.getTip(keyHeadSync) }

func (s *BadgerStore) getTip(key string) (*Tip, error) {
	raw, err := s.getBytes([]byte(key))
	if err != nil {
		return nil, err
	}
	var tip Tip
	if err := json.Unmarshal(raw, &tip); err != nil {
		return nil, errOther(err)
	}
	return &tip, nil
}

func (s *BadgerStore) GetBlock(hash [32]byte) (*Block, error) {
	if b, ok := s.blockCache.Get(hash); ok {
		return b, nil
	}
	raw, err := s.getBytes(hashKey(prefixBlockByHash, hash))
	if err != nil {
		return nil, err
	}
	b, err := DecodeBlock(raw)
	if err != nil {
		return nil, errOther(err)
	}
	s.blockCache.Add(hash, b)
	s.headerCache.Add(hash, &b.Header)
	return b, nil
}

func (s *BadgerStore) GetBlockHashByHeight(height uint64) ([32]byte, error) {
	var out [32]byte
	raw, err := s.getBytes(heightKey(prefixHashByHeight, height))
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func (s *BadgerStore) GetBlockByHeight(height uint64) (*Block, error) {
	hash, err := s.GetBlockHashByHeight(height)
	if err != nil {
		return nil, err
	}
	return s.GetBlock(hash)
}

func (s *BadgerStore) BlockExists(hash [32]byte) (bool, error) {
	_, err := s.GetBlock(hash)
	if err == nil {
		return true, nil
	}
	if ce, ok := err.(*ChainError); ok && ce.Kind == ErrDBNotFound {
		return false, nil
	}
	return false, err
}

func (s *BadgerStore) GetBlockHeader(hash [32]byte) (*BlockHeader, error) {
	if h, ok := s.headerCache.Get(hash); ok {
		return h, nil
	}
	raw, err := s.getBytes(hashKey(prefixHeader, hash))
	if err != nil {
		if ce, ok := err.(*ChainError); ok && ce.Kind == ErrDBNotFound {
			if b, berr := s.GetBlock(hash); berr == nil {
				return &b.Header, nil
			}
		}
		return nil, err
	}
	var h BlockHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, errOther(err)
	}
	s.headerCache.Add(hash, &h)
	return &h, nil
}

func (s *BadgerStore) GetHeaderByHeight(height uint64) (*BlockHeader, error) {
	hash, err := s.GetBlockHashByHeight(height)
	if err != nil {
		return nil, err
	}
	return s.GetBlockHeader(hash)
}

func (s *BadgerStore) GetPreviousHeader(h *BlockHeader) (*BlockHeader, error) {
	prev, err := s.GetBlockHeader(h.ParentHash)
	if err != nil {
		if ce, ok := err.(*ChainError); ok && ce.Kind == ErrDBNotFound {
			return nil, errOrphan()
		}
		return nil, err
	}
	return prev, nil
}

func (s *BadgerStore) GetPostStateRoot(chunkHash [32]byte) ([32]byte, error) {
	var out [32]byte
	raw, err := s.getBytes(hashKey(prefixPostState, chunkHash))
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

// GetTrieChanges reads back the opaque trie-changes payload a chunk's
// runtime application produced, keyed by the same chunk hash the post-state
// root is keyed by.
func (s *BadgerStore) GetTrieChanges(chunkHash [32]byte) ([]byte, error) {
	return s.getBytes(hashKey(prefixTrieChanges, chunkHash))
}

func (s *BadgerStore) GetTransactionResult(hash [32]byte) (*TxResult, error) {
	raw, err := s.getBytes(hashKey(prefixResult, hash))
	if err != nil {
		return nil, err
	}
	var r TxResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errOther(err)
	}
	return &r, nil
}

func receiptListKey(prefix string, blockHash [32]byte, shard ShardID) []byte {
	key := hashKey(prefix, blockHash)
	return append(key, []byte(fmt.Sprintf(":%d", shard))...)
}

func (s *BadgerStore) GetIncomingReceipts(blockHash [32]byte, shard ShardID) ([]Receipt, error) {
	raw, err := s.getBytes(receiptListKey(prefixIncomingRecpt, blockHash, shard))
	if err != nil {
		if ce, ok := err.(*ChainError); ok && ce.Kind == ErrDBNotFound {
			return nil, nil
		}
		return nil, err
	}
	var rs []Receipt
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, errOther(err)
	}
	return rs, nil
}

func (s *BadgerStore) GetOutgoingReceipts(blockHash [32]byte, shard ShardID) ([]Receipt, error) {
	raw, err := s.getBytes(receiptListKey(prefixOutgoingRecpt, blockHash, shard))
	if err != nil {
		if ce, ok := err.(*ChainError); ok && ce.Kind == ErrDBNotFound {
			return nil, nil
		}
		return nil, err
	}
	var rs []Receipt
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, errOther(err)
	}
	return rs, nil
}

// GetChunk reads back a chunk body. The core persists chunk bodies as part
// of the owning block's Bodies map rather than separately, so this looks
// the body up via the block that introduced it.
func (s *BadgerStore) GetChunk(header ShardChunkHeader) (*ShardChunk, error) {
	hash, err := s.GetBlockHashByHeight(header.HeightIncluded)
	if err != nil {
		return nil, err
	}
	b, err := s.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	chunk, ok := b.Bodies[header.ShardID]
	if !ok {
		return nil, errChunksMissing([]ShardChunkHeader{header})
	}
	return &chunk, nil
}

// applyUpdate commits every staged write in u within a single BadgerDB
// transaction, then refreshes the in-process caches for what changed.
func (s *BadgerStore) applyUpdate(u *ChainStoreUpdate) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for hash, b := range u.blocks {
			val, err := b.Encode()
			if err != nil {
				return err
			}
			if err := txn.Set(hashKey(prefixBlockByHash, hash), val); err != nil {
				return err
			}
			if err := txn.Set(heightKey(prefixHashByHeight, b.Header.Height), hash[:]); err != nil {
				return err
			}
		}
		for hash, h := range u.headers {
			val, err := json.Marshal(h)
			if err != nil {
				return err
			}
			if err := txn.Set(hashKey(prefixHeader, hash), val); err != nil {
				return err
			}
		}
		if u.head != nil {
			if err := setTip(txn, keyHeadBlock, u.head); err != nil {
				return err
			}
		}
		if u.headerHead != nil {
			if err := setTip(txn, keyHeadHeader, u.headerHead); err != nil {
				return err
			}
		}
		if u.syncHead != nil {
			if err := setTip(txn, keyHeadSync, u.syncHead); err != nil {
				return err
			}
		}
		for chunkHash, root := range u.postState {
			if err := txn.Set(hashKey(prefixPostState, chunkHash), root[:]); err != nil {
				return err
			}
		}
		for chunkHash, payload := range u.trieChanges {
			if err := txn.Set(hashKey(prefixTrieChanges, chunkHash), payload); err != nil {
				return err
			}
		}
		for _, entry := range u.merged {
			if err := txn.Set(entry.Key, entry.Value); err != nil {
				return err
			}
		}
		for k, rs := range u.incoming {
			val, err := json.Marshal(rs)
			if err != nil {
				return err
			}
			if err := txn.Set(receiptListKey(prefixIncomingRecpt, k.blockHash, k.shard), val); err != nil {
				return err
			}
		}
		for k, rs := range u.outgoing {
			val, err := json.Marshal(rs)
			if err != nil {
				return err
			}
			if err := txn.Set(receiptListKey(prefixOutgoingRecpt, k.blockHash, k.shard), val); err != nil {
				return err
			}
		}
		for hash, r := range u.results {
			val, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := txn.Set(hashKey(prefixResult, hash), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errOther(err)
	}

	for hash, b := range u.blocks {
		s.blockCache.Add(hash, b)
		s.headerCache.Add(hash, &b.Header)
	}
	for hash, h := range u.headers {
		s.headerCache.Add(hash, h)
	}
	return nil
}

func setTip(txn *badger.Txn, key string, tip *Tip) error {
	val, err := json.Marshal(tip)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), val)
}

// PruneBlocks deletes every block strictly below height tip-keepN+1,
// matching the teacher's own height-indexed pruning sweep.
func (s *BadgerStore) PruneBlocks(keepN, tip uint64) error {
	minKeep := uint64(0)
	if tip >= keepN {
		minKeep = tip - keepN + 1
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for h := uint64(0); h < minKeep; h++ {
			hashKeyBytes := heightKey(prefixHashByHeight, h)
			item, err := txn.Get(hashKeyBytes)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var hash [32]byte
			if err := item.Value(func(val []byte) error {
				copy(hash[:], val)
				return nil
			}); err != nil {
				return err
			}
			if err := txn.Delete(hashKeyBytes); err != nil {
				return err
			}
			if err := txn.Delete(hashKey(prefixBlockByHash, hash)); err != nil {
				return err
			}
		}
		return nil
	})
}
