package chain

import (
	"crypto/sha3"
	"encoding/binary"
)

// appendUint64 appends v to buf in little-endian form, matching the
// encoding header.Header.Hash uses for its own fields.
func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func sha3Sum(buf []byte) [32]byte {
	return sha3.Sum256(buf)
}
