package heap

// ObjectSnapshot is one object's trimmed memory contents, ready for
// internal/serialize to pack into the input file's memory blob. Only bytes
// up to the last touched chunk are kept — spec.md §9's "trim unused bytes
// from objects" — since untouched tail bytes carry no fabricated value and
// would just inflate the file.
type ObjectSnapshot struct {
	Base uint64
	Data []byte
}

// Snapshot walks every allocated object in allocation order and returns
// its trimmed contents. internal/serialize uses the Base values to build
// the heap-address -> blob-offset map relocations are expressed against.
func (h *Heap) Snapshot() []ObjectSnapshot {
	out := make([]ObjectSnapshot, 0, len(h.Objects))
	for _, obj := range h.Objects {
		r := h.regionFor(obj.Base, 1)
		if r == nil {
			continue // never touched and its region was since discarded; nothing to snapshot
		}
		n := r.usedLength(obj.Base, obj.Size)
		data := make([]byte, n)
		if n > 0 {
			copy(data, r.readRaw(obj.Base, n))
		}
		out = append(out, ObjectSnapshot{Base: obj.Base, Data: data})
	}
	return out
}

// usedLength returns how many bytes from addr run up to the end of the
// last used chunk in [addr, addr+size), capped at size. Unused chunks
// before that last used one are kept.
func (r *Region) usedLength(addr, size uint64) uint64 {
	first, last := r.chunkRange(addr, size)
	n := uint64(0)
	for c := first; c <= last; c++ {
		if r.used.Test(c) {
			n = uint64(c-first) + 1
		}
	}
	if n == 0 {
		return 0
	}
	length := n * chunkSize
	if length > size {
		length = size
	}
	return length
}

// AllPointers returns every fabricated-or-written pointer location across
// the whole region chain, ordered oldest region first so
// internal/serialize's relocation list stays stable across runs with the
// same seed (spec.md §9).
func (h *Heap) AllPointers() []PointerEntry {
	var chain []*Region
	for r := h.Current; r != nil; r = r.Prev {
		chain = append(chain, r)
	}
	var out []PointerEntry
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].PointerMap...)
	}
	return out
}
