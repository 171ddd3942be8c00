package chain

import (
	"time"

	"shardchain/chain/config"
)

// ChainUpdate is the single-block processing transaction (component D).
// It stages every effect of accepting one block into a ChainStoreUpdate
// and only ever returns a new Tip to the caller; nothing is visible to the
// rest of the store until the caller commits it. Safe to abandon mid-way
// on any error, a crash, or a Ctrl+C — matching the teacher's own
// "stage first, persist on success" shape in importBlockInternal.
type ChainUpdate struct {
	runtime  RuntimeAdapter
	update   *ChainStoreUpdate
	orphans  *OrphanPool
	missing  *OrphanPool
	self     AccountID
}

func newChainUpdate(store *BadgerStore, runtime RuntimeAdapter, orphans, missing *OrphanPool, self AccountID) *ChainUpdate {
	return &ChainUpdate{
		runtime: runtime,
		update:  store.StoreUpdate(),
		orphans: orphans,
		missing: missing,
		self:    self,
	}
}

// Commit flushes every staged effect to the store.
func (u *ChainUpdate) Commit() error {
	return u.update.Commit()
}

// ProcessBlockHeader validates a header received via "header first"
// propagation without storing it or moving any head — that happens only
// once the full block arrives.
func (u *ChainUpdate) ProcessBlockHeader(header *BlockHeader) error {
	if err := u.checkHeaderKnown(header); err != nil {
		return err
	}
	return u.validateHeader(header, ProvenanceNone)
}

// getPreviousHeader returns h's parent header, translating a not-found
// into ErrOrphan.
func (u *ChainUpdate) getPreviousHeader(h *BlockHeader) (*BlockHeader, error) {
	return u.update.GetPreviousHeader(h)
}

// saveIncomingReceiptsFromBlock gathers every receipt the parent block's
// chunks produced (staged as outgoing receipts, indexed by the SOURCE
// shard, when the parent itself was processed), routes each to the shard
// its receiver lives on, and stages the result as block's incoming
// receipts per destination shard. This is how a receipt produced applying
// one block's transactions becomes visible as input to the next block's.
func (u *ChainUpdate) saveIncomingReceiptsFromBlock(parentHash [32]byte, block *Block) error {
	byShard := make(map[ShardID][]Receipt)
	for shard := ShardID(0); int(shard) < u.runtime.NumShards(); shard++ {
		produced, err := u.update.GetOutgoingReceiptsForShard(parentHash, shard)
		if err != nil {
			return err
		}
		for _, r := range produced {
			dest := u.runtime.AccountIDToShardID(r.Receiver)
			byShard[dest] = append(byShard[dest], r)
		}
	}
	hash := block.Hash()
	for shard, receipts := range byShard {
		u.update.SaveIncomingReceipt(hash, shard, receipts)
	}
	return nil
}

// ProcessBlock runs the full single-block pipeline described in §4.D:
// duplicate rejection, parent lookup, header validation, state-root
// consistency, staging the block, receipt ingestion, per-shard runtime
// application, and finally the head update. It returns the new Tip only
// if the block became (or contributed to) a new chain head.
func (u *ChainUpdate) ProcessBlock(block *Block) (*Tip, error) {
	if err := u.checkKnown(block); err != nil {
		return nil, err
	}

	head, err := u.update.Head()
	if err != nil {
		return nil, err
	}
	isNext := block.Header.ParentHash == head.LastBlockHash

	prev, err := u.getPreviousHeader(&block.Header)
	if err != nil {
		return nil, err
	}
	prevHash := prev.Hash()

	if !isNext {
		exists, err := u.update.BlockExists(prevHash)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errOrphan()
		}
	}

	if err := u.processHeaderForBlock(&block.Header); err != nil {
		return nil, err
	}

	stateRoot := ComputeStateRoot(block.Chunks)
	if block.Header.PrevStateRoot != stateRoot {
		return nil, errInvalidStateRoot()
	}

	u.update.SaveBlock(block)

	prevBlock, err := u.update.GetBlock(prevHash)
	if err != nil {
		return nil, err
	}

	if err := u.saveIncomingReceiptsFromBlock(prevHash, block); err != nil {
		return nil, err
	}

	var missingChunks []ShardChunkHeader
	for i, chunkHeader := range block.Chunks {
		var prevChunkHeader ShardChunkHeader
		if i < len(prevBlock.Chunks) {
			prevChunkHeader = prevBlock.Chunks[i]
		}

		if chunkHeader.HeightIncluded == block.Header.Height {
			if chunkHeader.PrevBlockHash != block.Header.ParentHash {
				return nil, errInvalidChunk("chunk prev_block_hash does not match block parent")
			}
			if !u.runtime.CaresAboutShard(u.self, block.Header.ParentHash, chunkHeader.ShardID) {
				continue
			}
			chunk, ok := block.Bodies[chunkHeader.ShardID]
			if !ok {
				missingChunks = append(missingChunks, chunkHeader)
				continue
			}
			if err := u.applyChunk(block, chunkHeader, prevChunkHeader, chunk); err != nil {
				return nil, err
			}
		} else if prevChunkHeader != chunkHeader {
			return nil, errInvalidChunk("missing-chunk header does not repeat the previous block's")
		}
	}

	if len(missingChunks) > 0 {
		return nil, errChunksMissing(missingChunks)
	}

	return u.updateHead(block)
}

// applyChunk hands one freshly-produced chunk to the runtime and stages
// every effect: post-state root, outgoing receipts, and transaction and
// receipt results.
func (u *ChainUpdate) applyChunk(block *Block, chunkHeader, prevChunkHeader ShardChunkHeader, chunk ShardChunk) error {
	receipts, err := u.update.GetIncomingReceiptsForShard(block.Hash(), chunkHeader.ShardID)
	if err != nil {
		return err
	}

	trieChanges, postStateRoot, results, newReceipts, proposals, err := u.runtime.ApplyTransactions(
		chunkHeader.ShardID,
		chunkHeader.PrevStateRoot,
		chunkHeader.HeightIncluded,
		chunkHeader.PrevBlockHash,
		receipts,
		chunk.Transactions,
	)
	if err != nil {
		return errOther(err)
	}

	if err := u.runtime.AddValidatorProposals(block.Header.ParentHash, block.Hash(), block.Header.Height, proposals); err != nil {
		return errOther(err)
	}

	chunkHash := chunkHeader.ChunkHash()
	u.update.SavePostStateRoot(chunkHash, postStateRoot)
	u.update.SaveTrieChanges(chunkHash, trieChanges)

	var outgoing []Receipt
	for dest := ShardID(0); int(dest) < u.runtime.NumShards(); dest++ {
		outgoing = append(outgoing, newReceipts[dest]...)
	}
	if len(outgoing) > 0 {
		u.update.SaveOutgoingReceipt(block.Hash(), chunkHeader.ShardID, outgoing)
	}

	if len(results) < len(receipts) {
		return newErr(ErrOther, "runtime returned fewer results than receipts")
	}
	for i, result := range results {
		var key [32]byte
		if i < len(receipts) {
			key = receipts[i].Hash
		} else {
			txIdx := i - len(receipts)
			if txIdx >= len(chunk.Transactions) {
				break
			}
			key = chunk.Transactions[txIdx].Hash
		}
		u.update.SaveTransactionResult(key, result)
	}

	return nil
}

// processHeaderForBlock validates a header as part of processing its full
// block, stages it, and updates the header head if it advanced.
func (u *ChainUpdate) processHeaderForBlock(header *BlockHeader) error {
	provenance := ProvenanceNone
	if err := u.validateHeader(header, provenance); err != nil {
		return err
	}
	u.update.SaveBlockHeader(header)
	_, err := u.updateHeaderHead(header)
	return err
}

// validateHeader enforces the timestamp bounds and, for headers this node
// did not itself produce, recomputes and checks the claimed total weight
// (which also authenticates the block producer and any confirmation
// signatures — delegated entirely to the runtime).
func (u *ChainUpdate) validateHeader(header *BlockHeader, provenance Provenance) error {
	if header.Timestamp.After(time.Now().Add(config.AcceptableTimeDifference)) {
		return errInvalidBlockFutureTime(header.Timestamp)
	}

	prevHeader, err := u.getPreviousHeader(header)
	if err != nil {
		return err
	}

	if !header.Timestamp.After(prevHeader.Timestamp) {
		return errInvalidBlockPastTime(prevHeader.Timestamp, header.Timestamp)
	}

	if provenance != ProvenanceProduced {
		weight, err := u.runtime.ComputeBlockWeight(prevHeader, header)
		if err != nil {
			return errOther(err)
		}
		if weight.Cmp(header.Weight()) != 0 {
			return errInvalidBlockWeight()
		}
	}

	return nil
}

// updateHeaderHead advances the header head if header carries more total
// weight than it, returning the new tip when it did.
func (u *ChainUpdate) updateHeaderHead(header *BlockHeader) (*Tip, error) {
	headerHead, err := u.update.HeaderHead()
	if err != nil {
		return nil, err
	}
	if header.Weight().Cmp(headerHead.TotalWeight) <= 0 {
		return nil, nil
	}
	tip := TipFromHeader(header)
	if err := u.update.SaveHeaderHead(tip); err != nil {
		return nil, err
	}
	return tip, nil
}

// updateHead advances the block head if block carries more total weight
// than it — covering both the common case of directly extending the head
// and a fork that has just overtaken it.
func (u *ChainUpdate) updateHead(block *Block) (*Tip, error) {
	head, err := u.update.Head()
	if err != nil {
		return nil, err
	}
	if block.Header.Weight().Cmp(head.TotalWeight) <= 0 {
		return nil, nil
	}
	tip := TipFromHeader(&block.Header)
	if err := u.update.SaveHead(tip); err != nil {
		return nil, err
	}
	return tip, nil
}

// updateSyncHead unconditionally overwrites the sync head — it tracks the
// furthest point header sync has reached regardless of accumulated
// weight, so there is no "is this heavier" comparison here.
func (u *ChainUpdate) updateSyncHead(header *BlockHeader) {
	u.update.SaveSyncHead(TipFromHeader(header))
}

// --- duplicate rejection -----------------------------------------------

func (u *ChainUpdate) checkHeaderKnown(header *BlockHeader) error {
	known, err := u.isHeaderKnown(header)
	if err != nil {
		return err
	}
	if known {
		return errUnfit("header already known")
	}
	return nil
}

func (u *ChainUpdate) isHeaderKnown(header *BlockHeader) (bool, error) {
	headerHead, err := u.update.HeaderHead()
	if err != nil {
		return false, err
	}
	hash := header.Hash()
	if hash == headerHead.LastBlockHash || hash == headerHead.PrevBlockHash {
		return true, nil
	}
	return false, nil
}

func (u *ChainUpdate) checkKnownHead(header *BlockHeader) error {
	head, err := u.update.Head()
	if err != nil {
		return err
	}
	hash := header.Hash()
	if hash == head.LastBlockHash || hash == head.PrevBlockHash {
		return errUnfit("already known in head")
	}
	return nil
}

func (u *ChainUpdate) checkKnownOrphans(header *BlockHeader) error {
	hash := header.Hash()
	if u.orphans.Contains(hash) {
		return errUnfit("already known in orphans")
	}
	if u.missing.Contains(hash) {
		return errUnfit("already known in blocks with missing chunks")
	}
	return nil
}

func (u *ChainUpdate) checkKnownStore(header *BlockHeader) error {
	exists, err := u.update.BlockExists(header.Hash())
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	head, err := u.update.Head()
	if err != nil {
		return err
	}
	if header.Height > config.OldBlockMinHeight && head.Height > config.OldBlockHeadMargin && header.Height < head.Height-config.OldBlockHeadMargin {
		return errOldBlock()
	}
	return errUnfit("already known in store")
}

// checkKnown runs every duplicate-rejection check process_block consults
// before doing any real work: is this block already the block head or the
// block head's parent, already parked as an orphan or
// incomplete-chunks entry, or already committed to the store.
func (u *ChainUpdate) checkKnown(block *Block) error {
	if err := u.checkKnownHead(&block.Header); err != nil {
		return err
	}
	if err := u.checkKnownOrphans(&block.Header); err != nil {
		return err
	}
	return u.checkKnownStore(&block.Header)
}
