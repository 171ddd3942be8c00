package chain

import "math/big"

// Tip is a lightweight pointer to a block: the record the three chain heads
// are made of. It carries just enough to resume processing from a head
// without re-reading the full header.
type Tip struct {
	Height        uint64
	LastBlockHash [32]byte
	PrevBlockHash [32]byte
	TotalWeight   *big.Int
}

// TipFromHeader builds a Tip from a header, matching its height, hash,
// parent hash and weight.
func TipFromHeader(h *BlockHeader) *Tip {
	if h == nil {
		return nil
	}
	w := h.Weight()
	return &Tip{
		Height:        h.Height,
		LastBlockHash: h.Hash(),
		PrevBlockHash: h.ParentHash,
		TotalWeight:   new(big.Int).Set(w),
	}
}
