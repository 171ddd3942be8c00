package chain

import (
	"crypto/sha256"

	merkle "github.com/xsleonard/go-merkle"
)

// merkleTreeHasher adapts sha256 to go-merkle's Hash function signature.
func merkleTreeHasher(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// merkleRootOfStateRoots folds the per-shard PrevStateRoot values carried
// in a block's chunk headers into one merkle root. This is the value
// ChainUpdate compares against the same block's Header.PrevStateRoot
// to confirm its chunks agree on post-state (§4.D step 4).
func merkleRootOfStateRoots(chunks []ShardChunkHeader) [32]byte {
	var out [32]byte
	if len(chunks) == 0 {
		return out
	}

	blocks := make([][]byte, len(chunks))
	for i, c := range chunks {
		root := c.PrevStateRoot
		blocks[i] = root[:]
	}

	tree := merkle.NewTree()
	if err := tree.Generate(blocks, merkleTreeHasher); err != nil {
		// A fixed-width, non-empty input cannot fail tree generation;
		// fall back to hashing the concatenation directly rather than
		// panicking on a library error we cannot act on.
		buf := make([]byte, 0, 32*len(chunks))
		for _, b := range blocks {
			buf = append(buf, b...)
		}
		return sha3Sum(buf)
	}

	root := tree.Root()
	if root == nil {
		return out
	}
	copy(out[:], root.Hash)
	return out
}
