// Package chain implements the block processing core: head tracking,
// single-block validation and application, and the orphan/incomplete-chunk
// cascades that let blocks arrive out of order without losing them.
package chain

import (
	"log"
	"time"
)

// BlockStatus classifies how an accepted block relates to the previous
// head, so callers (telemetry, gossip rebroadcast) can tell a routine
// extension from a reorg or a fork that didn't become the head.
type BlockStatus int

const (
	StatusNext BlockStatus = iota
	StatusReorg
	StatusFork
)

func (s BlockStatus) String() string {
	switch s {
	case StatusNext:
		return "next"
	case StatusReorg:
		return "reorg"
	default:
		return "fork"
	}
}

// BlockAcceptedFunc is invoked once per block that ProcessBlock (directly
// or via its orphan cascade) or CheckBlocksWithMissingChunks successfully
// applies. It runs after that block's batch has committed; it must not call
// back into the Chain.
type BlockAcceptedFunc func(block *Block, status BlockStatus, provenance Provenance)

// ChunksMissingFunc is invoked once per block parked in the incomplete
// chunks pool, naming the chunk headers this node still needs the bodies
// for.
type ChunksMissingFunc func(missing []ShardChunkHeader)

// Chain is the facade (component E) over block processing and storage:
// the three heads, the two orphan pools, and genesis. All mutation goes
// through ProcessBlock/CheckBlocksWithMissingChunks/SyncBlockHeaders/
// SetShardState/ResetSyncHead; everything else is a read.
//
// Chain does no locking of its own: callers must not run these mutating
// methods concurrently with each other.
type Chain struct {
	store   *BadgerStore
	runtime RuntimeAdapter
	self    AccountID

	orphans *OrphanPool
	missing *OrphanPool

	genesis *BlockHeader
}

// New opens (or loads) a Chain rooted at dataDir, bootstrapping genesis
// out of the runtime's initial state the first time it runs.
func New(dataDir string, runtime RuntimeAdapter, self AccountID, genesisTime time.Time) (*Chain, error) {
	store, err := OpenBadgerStore(dataDir)
	if err != nil {
		return nil, err
	}

	writeSet, stateRoots, err := runtime.GenesisState()
	if err != nil {
		return nil, errOther(err)
	}
	genesis := GenesisBlock(stateRoots, genesisTime, runtime.NumShards())

	c := &Chain{
		store:   store,
		runtime: runtime,
		self:    self,
		orphans: NewOrphanPool(),
		missing: NewOrphanPool(),
	}

	if err := c.bootstrap(genesis, stateRoots, writeSet); err != nil {
		store.Close()
		return nil, err
	}

	return c, nil
}

// bootstrap loads the existing head if the store already has one,
// validating it agrees with the configured genesis, or else commits
// genesis as the first block, merging in the runtime's own genesis
// write-set alongside it.
func (c *Chain) bootstrap(genesis *Block, stateRoots [][32]byte, writeSet WriteSet) error {
	update := c.store.StoreUpdate()

	head, err := update.Head()
	if err != nil {
		ce, ok := err.(*ChainError)
		if !ok || ce.Kind != ErrDBNotFound {
			return err
		}

		if err := c.runtime.AddValidatorProposals([32]byte{}, genesis.Hash(), 0, nil); err != nil {
			return errOther(err)
		}
		update.SaveBlockHeader(&genesis.Header)
		update.SaveBlock(genesis)
		for i, chunkHeader := range genesis.Chunks {
			if i < len(stateRoots) {
				update.SavePostStateRoot(chunkHeader.ChunkHash(), stateRoots[i])
			}
		}
		update.Merge(writeSet)
		tip := TipFromHeader(&genesis.Header)
		if err := update.SaveHead(tip); err != nil {
			return err
		}
		if err := update.SaveHeaderHead(tip); err != nil {
			return err
		}
		update.SaveSyncHead(tip)

		if err := update.Commit(); err != nil {
			return err
		}
		c.genesis = &genesis.Header
		log.Printf("📗 chain: bootstrapped genesis %x", genesis.Hash())
		return nil
	}

	genesisHash, err := update.GetBlockHashByHeight(0)
	if err != nil {
		return err
	}
	if genesisHash != genesis.Hash() {
		return newErr(ErrOther, "genesis mismatch between storage and configured runtime")
	}

	headerHead, err := update.HeaderHead()
	if err != nil {
		return err
	}
	if _, err := update.GetBlockHeader(headerHead.LastBlockHash); err != nil {
		if err := update.SaveHeaderHead(head); err != nil {
			return err
		}
		update.SaveSyncHead(head)
	} else {
		update.SaveSyncHead(headerHead)
	}
	if err := update.Commit(); err != nil {
		return err
	}

	g, err := c.store.GetBlockHeader(genesisHash)
	if err != nil {
		return err
	}
	c.genesis = g
	log.Printf("📗 chain: loaded existing head %x @ %d", head.LastBlockHash, head.Height)
	return nil
}

// Head, HeaderHead and SyncHead expose the three chain heads.
func (c *Chain) Head() (*Tip, error)       { return c.store.Head() }
func (c *Chain) HeaderHead() (*Tip, error) { return c.store.HeaderHead() }
func (c *Chain) SyncHead() (*Tip, error)   { return c.store.SyncHead() }

// Genesis returns the genesis header this chain was bootstrapped with.
func (c *Chain) Genesis() *BlockHeader { return c.genesis }

// OrphansLen and OrphansEvicted report orphan pool occupancy, used by
// telemetry the way the teacher's own chain exposes pool diagnostics.
func (c *Chain) OrphansLen() int       { return c.orphans.Len() }
func (c *Chain) OrphansEvicted() int   { return c.orphans.Evicted() }
func (c *Chain) IsOrphan(hash [32]byte) bool { return c.orphans.Contains(hash) }

// AllHeightsWithMissingChunks returns every height with at least one block
// parked in the incomplete chunks pool.
func (c *Chain) AllHeightsWithMissingChunks() []uint64 {
	return c.missing.AllHeights()
}

// GetBlock, GetBlockByHeight, GetBlockHeader and GetHeaderByHeight are thin
// read-through accessors over the store.
func (c *Chain) GetBlock(hash [32]byte) (*Block, error)               { return c.store.GetBlock(hash) }
func (c *Chain) GetBlockByHeight(h uint64) (*Block, error)             { return c.store.GetBlockByHeight(h) }
func (c *Chain) GetBlockHeader(hash [32]byte) (*BlockHeader, error)    { return c.store.GetBlockHeader(hash) }
func (c *Chain) GetHeaderByHeight(h uint64) (*BlockHeader, error)      { return c.store.GetHeaderByHeight(h) }

// Close releases the underlying store.
func (c *Chain) Close() error { return c.store.Close() }

// ResetSyncHead resets the sync head to the current header head, as done
// the moment a node first transitions into header-only syncing.
func (c *Chain) ResetSyncHead() (*Tip, error) {
	update := c.store.StoreUpdate()
	headerHead, err := update.HeaderHead()
	if err != nil {
		return nil, err
	}
	update.SaveSyncHead(headerHead)
	if err := update.Commit(); err != nil {
		return nil, err
	}
	return headerHead, nil
}

// ProcessBlockHeader validates a header received via "header first"
// propagation. It never stores anything or moves a head; that happens
// only once the corresponding full block is processed.
func (c *Chain) ProcessBlockHeader(header *BlockHeader) error {
	u := newChainUpdate(c.store, c.runtime, c.orphans, c.missing, c.self)
	return u.ProcessBlockHeader(header)
}

// ProcessBlock runs the full pipeline for one received or produced block,
// then unrolls any orphans that this block's acceptance has unblocked
// (blocks in the incomplete chunks pool are re-driven only by
// CheckBlocksWithMissingChunks). It returns the new head tip only if the chain
// head actually advanced, directly or via the cascade.
func (c *Chain) ProcessBlock(block *Block, provenance Provenance, accepted BlockAcceptedFunc, missingChunks ChunksMissingFunc) (*Tip, error) {
	height := block.Header.Height
	tip, err := c.processBlockSingle(block, provenance, accepted, missingChunks)
	if err == nil {
		if newTip := c.checkOrphans(height+1, accepted, missingChunks); newTip != nil {
			return newTip, nil
		}
	}
	return tip, err
}

// processBlockSingle runs ChainUpdate.ProcessBlock once, committing only
// on success, and routes any error into the appropriate pool (or just
// logs it, for a harmless duplicate).
func (c *Chain) processBlockSingle(block *Block, provenance Provenance, accepted BlockAcceptedFunc, missingChunks ChunksMissingFunc) (*Tip, error) {
	if len(block.Chunks) != c.runtime.NumShards() {
		return nil, errIncorrectNumberOfChunkHeaders()
	}

	prevHead, err := c.store.Head()
	if err != nil {
		return nil, err
	}

	u := newChainUpdate(c.store, c.runtime, c.orphans, c.missing, c.self)
	newHead, procErr := u.ProcessBlock(block)

	if procErr == nil {
		if err := u.Commit(); err != nil {
			return nil, err
		}
		status := determineStatus(newHead, prevHead)
		if accepted != nil {
			accepted(block, status, provenance)
		}
		return newHead, nil
	}

	ce, ok := procErr.(*ChainError)
	if !ok {
		return nil, errOther(procErr)
	}

	switch ce.Kind {
	case ErrOrphan:
		c.orphans.Add(block, provenance)
		log.Printf("🧩 chain: orphan %x at %d, %d orphans (%d evicted)", block.Hash(), block.Header.Height, c.orphans.Len(), c.orphans.Evicted())
		return nil, ce
	case ErrChunksMissing:
		if missingChunks != nil {
			missingChunks(ce.MissingChunks)
		}
		c.missing.Add(block, provenance)
		log.Printf("🧩 chain: missing chunks for %x at %d: %v", block.Hash(), block.Header.Height, ce.MissingChunks)
		return nil, ce
	case ErrUnfit, ErrOldBlock:
		log.Printf("📗 chain: block %x at %d unfit: %v", block.Hash(), block.Header.Height, ce)
		return nil, ce
	default:
		return nil, ce
	}
}

// determineStatus classifies newHead relative to prevHead the way the
// original's determine_status does: no new head at all is a Fork (the
// block was accepted but didn't become the head); a new head whose
// PrevBlockHash matches the old head is a routine Next; anything else is
// a Reorg away from the old head's hash.
func determineStatus(newHead, prevHead *Tip) BlockStatus {
	if newHead == nil {
		return StatusFork
	}
	if newHead.PrevBlockHash == prevHead.LastBlockHash {
		return StatusNext
	}
	return StatusReorg
}

// checkOrphans re-drives the orphan pool after a block at height-1 was
// accepted: pull every orphan parked at height, try each, and if any
// succeeded repeat at height+1. Returns the last new head produced, if
// any.
func (c *Chain) checkOrphans(height uint64, accepted BlockAcceptedFunc, missingChunks ChunksMissingFunc) *Tip {
	initialHeight := height
	var newHead *Tip

	for {
		orphans := c.orphans.RemoveByHeight(height)
		if len(orphans) == 0 {
			break
		}
		anyAccepted := false
		for _, o := range orphans {
			tip, err := c.processBlockSingle(o.block, o.provenance, accepted, missingChunks)
			if err == nil {
				if tip != nil {
					newHead = tip
				}
				anyAccepted = true
			}
		}
		if !anyAccepted {
			break
		}
		height++
	}

	if initialHeight != height {
		log.Printf("🧩 chain: check orphans accepted blocks from %d to %d, %d orphans remain", initialHeight, height, c.orphans.Len())
	}
	return newHead
}

// CheckBlocksWithMissingChunks re-drives the incomplete chunks pool for
// height once this node has (presumably) received the chunk bodies it was
// waiting on, then cascades into the orphan pool exactly as a freshly
// accepted block would.
func (c *Chain) CheckBlocksWithMissingChunks(height uint64, accepted BlockAcceptedFunc, missingChunks ChunksMissingFunc) {
	anyAccepted := false
	for _, o := range c.missing.RemoveByHeight(height) {
		if _, err := c.processBlockSingle(o.block, o.provenance, accepted, missingChunks); err == nil {
			anyAccepted = true
		}
	}
	if anyAccepted {
		c.checkOrphans(height+1, accepted, missingChunks)
	}
}

// SyncBlockHeaders adds a batch of headers received during header-first
// sync, validating each and advancing the sync head unconditionally and
// the header head if their weight now exceeds it.
func (c *Chain) SyncBlockHeaders(headers []*BlockHeader) error {
	if len(headers) == 0 {
		return nil
	}
	sortHeadersByHeight(headers)

	last := headers[len(headers)-1]
	if _, err := c.store.GetBlockHeader(last.Hash()); err != nil {
		for _, h := range headers {
			u := newChainUpdate(c.store, c.runtime, c.orphans, c.missing, c.self)
			if err := u.validateHeader(h, ProvenanceSync); err != nil {
				return err
			}
			u.update.SaveBlockHeader(h)
			if err := u.Commit(); err != nil {
				return err
			}
			if err := c.runtime.AddValidatorProposals(h.ParentHash, h.Hash(), h.Height, nil); err != nil {
				return errOther(err)
			}
		}
	}

	u := newChainUpdate(c.store, c.runtime, c.orphans, c.missing, c.self)
	u.updateSyncHead(last)
	if _, err := u.updateHeaderHead(last); err != nil {
		return err
	}
	return u.Commit()
}

func sortHeadersByHeight(headers []*BlockHeader) {
	for i := 1; i < len(headers); i++ {
		for j := i; j > 0 && headers[j-1].Height > headers[j].Height; j-- {
			headers[j-1], headers[j] = headers[j], headers[j-1]
		}
	}
}

// CheckStateNeeded reports whether this node has fallen far enough behind
// the header head that it should fetch a state snapshot instead of
// replaying blocks, alongside the hashes of headers between the common
// ancestor and the header head it would otherwise need to request.
func (c *Chain) CheckStateNeeded(blockFetchHorizon uint64) (bool, [][32]byte, error) {
	blockHead, err := c.store.Head()
	if err != nil {
		return false, nil, err
	}
	headerHead, err := c.store.HeaderHead()
	if err != nil {
		return false, nil, err
	}
	if blockHead.TotalWeight.Cmp(headerHead.TotalWeight) >= 0 {
		return false, nil, nil
	}

	var hashes [][32]byte
	oldestHeight := uint64(0)
	current, err := c.store.GetBlockHeader(headerHead.LastBlockHash)
	for err == nil {
		if current.Height <= blockHead.Height {
			if onChain, chErr := c.isOnCurrentChain(current); chErr == nil && onChain {
				break
			}
		}
		oldestHeight = current.Height
		hashes = append(hashes, current.Hash())
		current, err = c.store.GetPreviousHeader(current)
	}

	syncHead, serr := c.store.SyncHead()
	if serr != nil {
		return false, nil, serr
	}
	floor := uint64(0)
	if syncHead.Height > blockFetchHorizon {
		floor = syncHead.Height - blockFetchHorizon
	}
	if oldestHeight < floor {
		return true, nil, nil
	}
	return false, hashes, nil
}

func (c *Chain) isOnCurrentChain(header *BlockHeader) (bool, error) {
	onChain, err := c.store.GetHeaderByHeight(header.Height)
	if err != nil {
		return false, err
	}
	return onChain.Hash() == header.Hash(), nil
}

// FindCommonHeader returns the first of hashes that names a header
// present both in the store and on the main chain at its own height.
func (c *Chain) FindCommonHeader(hashes [][32]byte) *BlockHeader {
	for _, hash := range hashes {
		header, err := c.store.GetBlockHeader(hash)
		if err != nil {
			continue
		}
		atHeight, err := c.store.GetHeaderByHeight(header.Height)
		if err != nil {
			continue
		}
		if atHeight.Hash() == header.Hash() {
			return header
		}
	}
	return nil
}

// SetShardState installs a state snapshot for shard delivered out of band
// (state sync) rather than by replaying blocks, keyed by the block whose
// pre-state it represents.
//
// This intentionally matches the committed (not the aspirational,
// commented-out) behavior of the system this was adapted from: it
// delegates entirely to RuntimeAdapter.SetState and does not additionally
// record a post-state root or receipt entry of its own. Wiring that up
// would require deciding which hash a snapshot's receipts should be
// re-keyed under, a decision with no settled answer upstream either.
func (c *Chain) SetShardState(shard ShardID, hash [32]byte, payload []byte) error {
	header, err := c.store.GetBlockHeader(hash)
	if err != nil {
		return err
	}
	stateRoot := header.PrevStateRoot
	if err := c.runtime.SetState(shard, stateRoot, payload); err != nil {
		return errInvalidStatePayload(err)
	}
	update := c.store.StoreUpdate()
	return update.Commit()
}
