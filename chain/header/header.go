// Package header defines the canonical block header for the chain core.
package header

import (
	"crypto/sha3"
	"encoding/binary"
	"log"
	"math/big"
	"time"
)

// Header is the consensus-critical block header. Height, ParentHash and
// PrevStateRoot anchor it to the chain; Timestamp and TotalWeight drive
// header validation and head selection; Proposals/Approvals carry the
// validator-set bookkeeping the runtime consumes but the core never
// interprets.
type Header struct {
	Height         uint64
	ParentHash     [32]byte
	PrevStateRoot  [32]byte
	Timestamp      time.Time
	TotalWeight    *big.Int
	Proposals      []byte // opaque, runtime-defined validator proposal blob
	Approvals      []byte // opaque, runtime-defined approval-signature blob
}

// Hash returns the content hash of the header. It covers every
// consensus-relevant field; Proposals/Approvals are included so that two
// headers with identical height/parent/state-root but different validator
// bookkeeping never collide.
func (h *Header) Hash() [32]byte {
	if h == nil {
		log.Printf("[ERROR] header.Hash() called on nil header, returning zero hash")
		return [32]byte{}
	}
	buf := make([]byte, 0, 8+32+32+8+8+len(h.Proposals)+len(h.Approvals))
	var heightBuf [8]byte
	binary.LittleEndian.PutUint64(heightBuf[:], h.Height)
	buf = append(buf, heightBuf[:]...)
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.PrevStateRoot[:]...)

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(h.Timestamp.UnixNano()))
	buf = append(buf, tsBuf[:]...)

	var wBuf [8]byte
	if h.TotalWeight != nil {
		binary.LittleEndian.PutUint64(wBuf[:], h.TotalWeight.Uint64())
	}
	buf = append(buf, wBuf[:]...)
	buf = append(buf, h.Proposals...)
	buf = append(buf, h.Approvals...)

	return sha3.Sum256(buf)
}

// Weight returns TotalWeight, defensively returning zero rather than
// dereferencing a nil *big.Int (always use new(big.Int) or big.NewInt(0)
// for a *big.Int you intend to compare or mutate; a bare declaration
// panics).
func (h *Header) Weight() *big.Int {
	if h == nil || h.TotalWeight == nil {
		return big.NewInt(0)
	}
	return h.TotalWeight
}
