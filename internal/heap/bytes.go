package heap

// putU64/getU64 follow the teacher's own hand-rolled little-endian
// convention (std/compiler/backend.go) rather than encoding/binary —
// every binary reader/writer in that codebase does it this way, and
// internal/serialize's file format (spec.md §6) is explicitly
// little-endian, no padding.
func putU64(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

func getU64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// BytesToUint64 reads up to 8 little-endian bytes into a uint64, zero
// extending. Used at the rtstate boundary where the callback ABI's value
// slot is always a single i64 word.
func BytesToUint64(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return getU64(buf[:])
}

// Uint64ToBytes writes the low n bytes of v little-endian.
func Uint64ToBytes(v uint64, n int) []byte {
	var buf [8]byte
	putU64(buf[:], v)
	out := make([]byte, n)
	copy(out, buf[:min(n, 8)])
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
