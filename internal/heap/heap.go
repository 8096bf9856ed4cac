package heap

import (
	"fmt"

	"github.com/input-gen/ig/internal/irmod"
)

// Heap owns one seed's whole chain of regions plus the flat object list
// spec.md §3 calls the "heap state" and internal/serialize walks to emit
// the input file's memory image and relocations.
//
// Every field here is owned by a single goroutine (one per seed in
// internal/driver's fan-out): there is no locking because there is no
// sharing, satisfying spec.md §5's "independent runtime state per seed"
// requirement without goroutine-local-storage tricks.
type Heap struct {
	Current *Region

	// Objects is every Object ever allocated, in allocation order across
	// the whole region chain — the order internal/serialize's trim-unused
	// and relocation-discovery passes assume (spec.md §9).
	Objects []Object

	rng    Rand
	policy Policy
	cfg    ValueConfig
}

// NewHeap starts a fresh single-region heap for one seed. The first region
// is based above NullGuardSize, never at 0, so a bump-allocated object (or
// a fabricated pointer's object, for a void target with no other way to
// observe address 0) is never confusable with the null sentinel.
func NewHeap(rng Rand, policy Policy, cfg ValueConfig) *Heap {
	first := NewRegion(NullGuardSize, DefaultRegionSize, nil, rng, policy)
	return &Heap{Current: first, rng: rng, policy: policy, cfg: cfg}
}

// AllocObject bump-allocates an object of the given size in the current
// region, chaining a fresh DefaultRegionSize region if there is no room
// (spec.md §4.6/§5: "at most one region is active for bump allocation at a
// time; once exhausted, a new region is chained").
func (h *Heap) AllocObject(size uint64, artificial bool) Object {
	obj, ok := h.Current.Alloc(size, artificial)
	if !ok {
		next := NewRegion(h.Current.Base+h.Current.size(), DefaultRegionSize, h.Current, h.rng, h.policy)
		h.Current = next
		obj, ok = h.Current.Alloc(size, artificial)
		if !ok {
			panic(fmt.Sprintf("heap: object of size %d exceeds region size %d", size, DefaultRegionSize))
		}
	}
	h.Objects = append(h.Objects, obj)
	return obj
}

// regionFor walks backward from Current through Prev looking for the
// region containing [addr, addr+size) — spec.md §4.6's "if P lies outside
// the current region, recurse into the previous region."
func (h *Heap) regionFor(addr, size uint64) *Region {
	for r := h.Current; r != nil; r = r.Prev {
		if r.contains(addr, size) {
			return r
		}
	}
	return nil
}

// FirstTouchRead implements spec.md §4.6's first-touch read: if every byte
// of [addr, addr+size) has already been touched, return the stored bytes
// verbatim; otherwise fabricate a value, store it, mark the range used, and
// — for a pointer-typed access — record the fabrication in the owning
// region's pointer map so internal/serialize can relocate it.
//
// An address outside every chained region is a soft out-of-bounds read:
// per Policy, either return a literal zero (standing in for "whatever this
// process's real memory happens to hold there", since this heap has no
// such backing memory to read) or panic.
func (h *Heap) FirstTouchRead(addr, size uint64, kind irmod.PrimKind) []byte {
	r := h.regionFor(addr, size)
	if r == nil {
		if h.policy.OnOOBRead {
			return make([]byte, size)
		}
		panic(fmt.Sprintf("heap: out-of-bounds read at 0x%x size %d", addr, size))
	}
	if r.isFullyUsed(addr, size) {
		return r.readRaw(addr, size)
	}

	val := h.NewValue(kind, h.cfg)
	r.writeRaw(addr, val)
	r.markUsed(addr, size)
	if kind == irmod.Ptr {
		r.recordPointer(addr, BytesToUint64(val))
	}
	return val
}

// Write implements spec.md §4.6's write path: store the bytes verbatim and
// mark the range used. When kind is Ptr, the owning region's pointer map
// entry for addr is recorded or refreshed as well. Write takes no flag
// telling a read-induced store apart from a plain one, so every
// pointer-typed write updates the pointer map, not only writes that
// follow a first-touch read.
//
// An address outside every chained region is a soft out-of-bounds write:
// per Policy, either drop it silently or panic.
func (h *Heap) Write(addr uint64, data []byte, kind irmod.PrimKind) {
	r := h.regionFor(addr, uint64(len(data)))
	if r == nil {
		if h.policy.OnOOBWrite {
			return
		}
		panic(fmt.Sprintf("heap: out-of-bounds write at 0x%x size %d", addr, len(data)))
	}
	r.writeRaw(addr, data)
	r.markUsed(addr, uint64(len(data)))
	if kind == irmod.Ptr {
		r.recordPointer(addr, BytesToUint64(data))
	}
}

func (r *Region) readRaw(addr, size uint64) []byte {
	off := addr - r.Base
	out := make([]byte, size)
	copy(out, r.Data[off:off+size])
	return out
}

func (r *Region) writeRaw(addr uint64, data []byte) {
	off := addr - r.Base
	copy(r.Data[off:off+uint64(len(data))], data)
}
