package metadata

import (
	"encoding/binary"
	"hash"
)

func writeByte(h hash.Hash, b byte) {
	h.Write([]byte{b})
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeString(h hash.Hash, s string) {
	writeUint64(h, uint64(len(s)))
	h.Write([]byte(s))
}
