package main

import (
	"math/big"
	"sync"

	"shardchain/chain"
)

// stubRuntime is a minimal RuntimeAdapter good enough to drive the chain
// core end to end without a real state-transition engine wired in: every
// shard's state root is just the previous root XORed with the hash of
// every applied receipt and transaction, weight is parent weight plus one
// per block, and nothing is
// ever rejected. It exists to exercise ProcessBlock/ProcessBlockHeader in
// this demonstration daemon, not as a reference implementation of
// consensus.
type stubRuntime struct {
	numShards int

	mu    sync.Mutex
	roots map[chain.ShardID][32]byte
}

func newStubRuntime(numShards int) *stubRuntime {
	return &stubRuntime{numShards: numShards, roots: make(map[chain.ShardID][32]byte)}
}

func (r *stubRuntime) NumShards() int { return r.numShards }

func (r *stubRuntime) GenesisState() (chain.WriteSet, [][32]byte, error) {
	out := make([][32]byte, r.numShards)
	return nil, out, nil
}

func (r *stubRuntime) AccountIDToShardID(account chain.AccountID) chain.ShardID {
	if len(account) == 0 {
		return 0
	}
	return chain.ShardID(account[0]) % chain.ShardID(r.numShards)
}

func (r *stubRuntime) CaresAboutShard(self chain.AccountID, parentHash [32]byte, shard chain.ShardID) bool {
	return true
}

func (r *stubRuntime) ComputeBlockWeight(prev, header *chain.BlockHeader) (*big.Int, error) {
	return new(big.Int).Add(prev.Weight(), big.NewInt(1)), nil
}

func (r *stubRuntime) ApplyTransactions(
	shard chain.ShardID,
	prevStateRoot [32]byte,
	heightIncluded uint64,
	prevBlockHash [32]byte,
	receipts []chain.Receipt,
	txs []chain.Transaction,
) ([]byte, [32]byte, []chain.TxResult, map[chain.ShardID][]chain.Receipt, []chain.ValidatorProposal, error) {
	root := prevStateRoot
	for _, r := range receipts {
		root = rollingHash(root, r.Hash)
	}
	for _, tx := range txs {
		root = rollingHash(root, tx.Hash)
	}

	results := make([]chain.TxResult, 0, len(receipts)+len(txs))
	for range receipts {
		results = append(results, chain.TxResult{Success: true})
	}
	for range txs {
		results = append(results, chain.TxResult{Success: true})
	}

	return nil, root, results, nil, nil, nil
}

func (r *stubRuntime) AddValidatorProposals(prevHash, blockHash [32]byte, height uint64, proposals []chain.ValidatorProposal) error {
	return nil
}

func (r *stubRuntime) SetState(shard chain.ShardID, stateRoot [32]byte, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots[shard] = stateRoot
	return nil
}

func rollingHash(root [32]byte, in [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = root[i] ^ in[i]
	}
	return out
}
