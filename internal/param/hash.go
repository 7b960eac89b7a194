package param

import (
	"encoding/binary"
	"hash"
	"math"
)

// WriteCanonical writes a deterministic, order-independent encoding of v into
// h. Map keys are already sorted by Normalise/Map, so the only remaining
// requirement is a stable tag+length framing per variant so that, e.g., the
// tuple ["a","b"] can never collide with the two-element map {"a":"b"}.
func WriteCanonical(h hash.Hash, v Value) {
	writeByte(h, byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindBool:
		if v.b {
			writeByte(h, 1)
		} else {
			writeByte(h, 0)
		}
	case KindInt:
		writeUint64(h, uint64(v.i))
	case KindFloat:
		writeUint64(h, float64bits(v.f))
	case KindString:
		writeString(h, v.s)
	case KindDatasetRef:
		h.Write(v.ref[:])
	case KindTuple:
		writeUint64(h, uint64(len(v.tuple)))
		for _, e := range v.tuple {
			WriteCanonical(h, e)
		}
	case KindMap:
		writeUint64(h, uint64(len(v.entries)))
		for _, e := range v.entries {
			writeString(h, e.Key)
			WriteCanonical(h, e.Value)
		}
	}
}

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

// float64bits hashes the IEEE-754 bit pattern directly rather than a
// formatted string, so equal floats always hash equal regardless of
// formatting. Normalise rejects NaN/Inf floats outright, so by the time a
// Value reaches here it is always finite.
func float64bits(f float64) uint64 {
	if f == 0 {
		return 0 // -0.0 == 0.0, so both hash as +0.0
	}
	return math.Float64bits(f)
}
