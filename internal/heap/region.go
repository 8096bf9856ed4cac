// Package heap is the lazy-heap runtime (spec.md §4.6): first-touch value
// generation, a used/unused bitmap, pointer-value tracking, and chained
// heap regions.
//
// Grounded on the teacher's VM backend (std/compiler/backend_vm.go), whose
// VM struct holds one flat byte-addressable `memory []byte` with a bump
// pointer; this package generalizes that single flat buffer into a chain
// of regions, each with the used-bitmap and pointer map spec.md §3
// requires, and adds the first-touch fabrication rt-input-gen.cpp's HeapTy
// implements (see DESIGN.md).
package heap

import (
	"github.com/bits-and-blooms/bitset"
)

// ObjectAlignment is the bump allocator's alignment, per spec.md §4.6.
const ObjectAlignment = 16

// DefaultFabricatedObjectSize is the size given to an object created to
// back a fabricated pointer, per spec.md §4.6.
const DefaultFabricatedObjectSize = 1 << 20 // 1 MiB

// DefaultRegionSize is the size of a freshly chained region, per spec.md
// §3/§5 ("Each seed allocates up to one 4 GiB region at a time").
const DefaultRegionSize = 1 << 32 // 4 GiB

// NullGuardSize is the low address range no region ever covers, so address
// 0 (the null sentinel) can never be confused with a real object base —
// the Go-side equivalent of malloc(3) never returning NULL
// (_examples/original_source/input-gen-runtimes/rt-input-gen.cpp's heap is
// a real malloc(HeapSize) allocation, which has the same property for
// free). The first region starts immediately above this guard.
const NullGuardSize = ObjectAlignment

// chunkSize is the used-bitmap's granularity: one bit per aligned 8-byte
// chunk (spec.md §3).
const chunkSize = 8

// Object is the {base, size, artificial} triple spec.md §3 defines.
// Objects never overlap; each is placed either at the end of the
// previously-allocated object (bump allocation) or at the start of a
// freshly chained region.
type Object struct {
	Base       uint64
	Size       uint64
	Artificial bool
}

// PointerEntry is one row of the pointer map: "this location currently
// stores that pointer value." Kept as an ordered slice (not a map) because
// §4.7/§9 require serialization to walk it in discovery order.
type PointerEntry struct {
	Location uint64
	Target   uint64
}

// Region is a contiguous fixed-size byte buffer plus the bookkeeping
// spec.md §3 requires, and a back-reference to the previous region forming
// the singly-linked chain.
type Region struct {
	Base uint64 // the address this region's byte 0 represents
	Data []byte
	used *bitset.BitSet

	// PointerMap is ordered by first-fabrication time, satisfying
	// spec.md §9's "IR traversal order" determinism requirement as it
	// flows into internal/serialize.
	PointerMap []PointerEntry
	ptrIndex   map[uint64]int // Location -> index into PointerMap, for O(1) updates

	Prev *Region

	policy Policy
	rng    Rand
	nextObj uint64 // bump pointer, relative to Base
}

// Rand is the minimal PRNG surface heap needs; internal/rtstate supplies a
// seeded *rand.Rand satisfying it so two runs with the same seed produce
// byte-identical output (spec.md §4.6 Determinism).
type Rand interface {
	Uint64() uint64
	Intn(n int) int
	Float64() float64
}

// NewRegion allocates a region of size bytes starting at base, chained
// after prev.
func NewRegion(base, size uint64, prev *Region, rng Rand, policy Policy) *Region {
	return &Region{
		Base:    base,
		Data:    make([]byte, size),
		used:    bitset.New(uint(size / chunkSize)),
		ptrIndex: make(map[uint64]int),
		Prev:    prev,
		policy:  policy,
		rng:     rng,
		nextObj: 0,
	}
}

func (r *Region) size() uint64 { return uint64(len(r.Data)) }

// contains reports whether the byte range [addr, addr+size) lies entirely
// within this region.
func (r *Region) contains(addr, size uint64) bool {
	if addr < r.Base {
		return false
	}
	off := addr - r.Base
	return off+size <= r.size()
}

func align(n, to uint64) uint64 {
	if rem := n % to; rem != 0 {
		n += to - rem
	}
	return n
}

// Alloc bump-allocates a new Object of the given size within this region,
// 16-byte aligned, placed at the end of the previously-allocated object
// (spec.md §4.6). Returns ok=false if the region has no room, in which
// case the caller (Heap.AllocObject) chains a fresh region.
func (r *Region) Alloc(size uint64, artificial bool) (Object, bool) {
	start := align(r.nextObj, ObjectAlignment)
	if start+size > r.size() {
		return Object{}, false
	}
	r.nextObj = start + size
	return Object{Base: r.Base + start, Size: size, Artificial: artificial}, true
}

func (r *Region) chunkRange(addr, size uint64) (uint, uint) {
	off := addr - r.Base
	first := uint(off / chunkSize)
	last := uint((off + size - 1) / chunkSize)
	return first, last
}

// isFullyUsed reports whether every chunk touching [addr, addr+size) has
// been marked used.
func (r *Region) isFullyUsed(addr, size uint64) bool {
	first, last := r.chunkRange(addr, size)
	for c := first; c <= last; c++ {
		if !r.used.Test(c) {
			return false
		}
	}
	return true
}

func (r *Region) markUsed(addr, size uint64) {
	first, last := r.chunkRange(addr, size)
	for c := first; c <= last; c++ {
		r.used.Set(c)
	}
}

func (r *Region) recordPointer(location, target uint64) {
	if idx, ok := r.ptrIndex[location]; ok {
		r.PointerMap[idx].Target = target
		return
	}
	r.ptrIndex[location] = len(r.PointerMap)
	r.PointerMap = append(r.PointerMap, PointerEntry{Location: location, Target: target})
}
