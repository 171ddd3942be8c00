package chain

import (
	"sort"
	"sync"
	"time"

	"shardchain/chain/config"
)

// orphan wraps a parked block with the metadata needed to evict and to
// re-drive it once it stops being blocked.
type orphan struct {
	block      *Block
	provenance Provenance
	added      time.Time
}

// OrphanPool holds blocks that cannot be processed yet — either because
// their parent is unknown (the Orphan Pool proper) or because this node is
// still waiting on one or more of their chunk bodies (the Incomplete
// Chunks Pool). Both pools use this same type; Chain keeps two instances.
//
// Entries are indexed by hash for membership checks and by height so a
// newly accepted block at height N can cheaply pull every orphan at height
// N+1, whose parent is at height N.
//
// mu is the only internal locking this package does: ProcessBlock mutates
// the pool from whatever goroutine is driving block processing, while
// diagnostics (Chain.OrphansLen/OrphansEvicted/IsOrphan) may read it from
// another goroutine at the same time.
type OrphanPool struct {
	mu       sync.Mutex
	byHash   map[[32]byte]*orphan
	byHeight map[uint64][][32]byte
	evicted  int
}

// NewOrphanPool returns an empty pool.
func NewOrphanPool() *OrphanPool {
	return &OrphanPool{
		byHash:   make(map[[32]byte]*orphan),
		byHeight: make(map[uint64][][32]byte),
	}
}

// Len returns the number of orphans currently held.
func (p *OrphanPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

// Evicted returns the running count of orphans dropped to make room under
// config.MaxOrphanSize.
func (p *OrphanPool) Evicted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evicted
}

// Add inserts a block into the pool, then evicts if the pool has grown
// past config.MaxOrphanSize. Eviction first drops entries older than
// config.MaxOrphanAge; if the pool is still at or above the cap after that,
// it drops whole height-buckets starting from the HIGHEST height downward
// until the pool is below the cap. Newer, low-height orphans (more
// likely to be resolved soon, since resolution walks height upward from
// the current head) are kept in preference to speculative high-height
// ones.
func (p *OrphanPool) Add(block *Block, provenance Provenance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := block.Hash()
	height := block.Header.Height

	o := &orphan{block: block, provenance: provenance, added: time.Now()}
	p.byHash[hash] = o
	p.byHeight[height] = append(p.byHeight[height], hash)

	if len(p.byHash) <= config.MaxOrphanSize {
		return
	}

	before := len(p.byHash)

	for h, o := range p.byHash {
		if time.Since(o.added) >= config.MaxOrphanAge {
			delete(p.byHash, h)
		}
	}
	p.rebuildHeightIndex()

	if len(p.byHash) >= config.MaxOrphanSize {
		heights := make([]uint64, 0, len(p.byHeight))
		for h := range p.byHeight {
			heights = append(heights, h)
		}
		sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

		for i := len(heights) - 1; i >= 0; i-- {
			h := heights[i]
			for _, hash := range p.byHeight[h] {
				delete(p.byHash, hash)
			}
			delete(p.byHeight, h)
			if len(p.byHash) < config.MaxOrphanSize {
				break
			}
		}
	}

	p.evicted += before - len(p.byHash)
}

// rebuildHeightIndex drops any height-bucket entries whose orphan no
// longer exists in byHash, e.g. after an age-based sweep.
func (p *OrphanPool) rebuildHeightIndex() {
	for height, hashes := range p.byHeight {
		kept := hashes[:0]
		for _, h := range hashes {
			if _, ok := p.byHash[h]; ok {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(p.byHeight, height)
		} else {
			p.byHeight[height] = kept
		}
	}
}

// Contains reports whether hash names a block currently parked.
func (p *OrphanPool) Contains(hash [32]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byHash[hash]
	return ok
}

// RemoveByHeight pulls every orphan parked at exactly height out of the
// pool and returns them, in the order they were added. A typical caller removes
// height H+1's orphans right after accepting the block at height H.
func (p *OrphanPool) RemoveByHeight(height uint64) []*orphan {
	p.mu.Lock()
	defer p.mu.Unlock()

	hashes, ok := p.byHeight[height]
	if !ok {
		return nil
	}
	delete(p.byHeight, height)

	out := make([]*orphan, 0, len(hashes))
	for _, h := range hashes {
		if o, ok := p.byHash[h]; ok {
			out = append(out, o)
			delete(p.byHash, h)
		}
	}
	return out
}

// AllHeights returns every height that currently has at least one orphan
// parked, in no particular order.
func (p *OrphanPool) AllHeights() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]uint64, 0, len(p.byHeight))
	for h := range p.byHeight {
		out = append(out, h)
	}
	return out
}
