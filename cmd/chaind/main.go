// Command chaind is a demonstration daemon wiring a BadgerDB-backed Chain
// to a stub runtime adapter. It has no networking of its own: blocks
// arrive by being dropped as JSON files into <data-dir>/blocks, the same
// shape the teacher's LocalBroadcaster used for its own local testing
// loop, generalized into a directory any relay process can write into.
package main

import (
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"shardchain/chain"
	"shardchain/chain/config"
)

func main() {
	var (
		dataDir       = flag.String("data-dir", "data", "Directory for chain data")
		numShards     = flag.Int("shards", 4, "Number of shards")
		produce       = flag.Bool("produce", false, "Produce demonstration blocks on a timer")
		produceEvery  = flag.Duration("produce-every", 2*time.Second, "Interval between produced blocks, when -produce is set")
		oldBlockMin   = flag.Uint64("old-block-min-height", config.OldBlockMinHeight, "Minimum height before a resubmission is reported as an old block")
		oldBlockMargin = flag.Uint64("old-block-head-margin", config.OldBlockHeadMargin, "How far behind head a resubmission must be to count as an old block")
	)
	flag.Parse()

	config.OldBlockMinHeight = *oldBlockMin
	config.OldBlockHeadMargin = *oldBlockMargin

	log.Printf("📗 chaind: starting, data-dir=%s shards=%d", *dataDir, *numShards)

	runtime := newStubRuntime(*numShards)
	c, err := chain.New(*dataDir, runtime, chain.AccountID("chaind"), time.Now())
	if err != nil {
		log.Fatalf("[FATAL] chaind: open chain: %v", err)
	}
	defer c.Close()

	head, err := c.Head()
	if err != nil {
		log.Fatalf("[FATAL] chaind: read head: %v", err)
	}
	log.Printf("📗 chaind: head at height %d (%x)", head.Height, head.LastBlockHash)

	blocksDir := filepath.Join(*dataDir, "blocks")
	source := newBlockFileSource(blocksDir, c)

	onAccepted := func(block *chain.Block, status chain.BlockStatus, provenance chain.Provenance) {
		log.Printf("🌿 chaind: accepted block %x at %d (%s, %s)", block.Hash(), block.Header.Height, status, provenance)
	}
	onMissingChunks := func(missing []chain.ShardChunkHeader) {
		log.Printf("🧩 chaind: missing %d chunk(s)", len(missing))
	}

	stop := make(chan struct{})
	go source.run(stop, onAccepted, onMissingChunks)

	if *produce {
		go produceLoop(c, runtime, blocksDir, *produceEvery, stop)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("📗 chaind: shutting down")
	close(stop)
}

// produceLoop builds and applies one block per tick directly, bypassing
// the file-drop path — a stand-in for whatever component actually
// produces blocks in a full node (block producer / miner), kept minimal
// here since block production itself is out of scope for this core.
func produceLoop(c *chain.Chain, runtime *stubRuntime, blocksDir string, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			head, err := c.Head()
			if err != nil {
				log.Printf("🌿 chaind: produce: read head: %v", err)
				continue
			}
			parent, err := c.GetBlock(head.LastBlockHash)
			if err != nil {
				log.Printf("🌿 chaind: produce: read parent: %v", err)
				continue
			}

			block := nextBlock(parent, runtime.numShards)
			if _, err := c.ProcessBlock(block, chain.ProvenanceProduced, nil, nil); err != nil {
				log.Printf("🌿 chaind: produce: block %x rejected: %v", block.Hash(), err)
				continue
			}
			log.Printf("🌿 chaind: produced block %x at %d", block.Hash(), block.Header.Height)

			// Also drop it into the file path, so anything watching the
			// directory (another process, or a relay this daemon doesn't
			// itself implement) can pick it up.
			if err := writeBlock(blocksDir, block); err != nil {
				log.Printf("🌿 chaind: produce: write demonstration copy: %v", err)
			}
		}
	}
}

func nextBlock(parent *chain.Block, numShards int) *chain.Block {
	chunks := make([]chain.ShardChunkHeader, numShards)
	bodies := make(map[chain.ShardID]chain.ShardChunk, numShards)
	height := parent.Header.Height + 1
	parentHash := parent.Hash()

	for i := 0; i < numShards; i++ {
		shard := chain.ShardID(i)
		prevRoot := parent.Chunks[i].PrevStateRoot
		header := chain.ShardChunkHeader{
			ShardID:        shard,
			HeightIncluded: height,
			PrevBlockHash:  parentHash,
			PrevStateRoot:  prevRoot,
		}
		chunks[i] = header
		bodies[shard] = chain.ShardChunk{Header: header}
	}

	return &chain.Block{
		Header: chain.BlockHeader{
			Height:        height,
			ParentHash:    parentHash,
			PrevStateRoot: chain.ComputeStateRoot(chunks),
			Timestamp:     time.Now(),
			TotalWeight:   new(big.Int).Add(parent.Header.Weight(), big.NewInt(1)),
		},
		Chunks: chunks,
		Bodies: bodies,
	}
}
