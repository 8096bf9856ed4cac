package heap

import (
	"github.com/input-gen/ig/internal/irmod"
)

// ValueConfig tunes the pseudo-random value fabrication spec.md §4.6
// describes only qualitatively ("a bounded pseudo-random integer",
// "with small probability a null"). The exact bound and probability
// follow original_source/input-gen-runtimes/rt-input-gen.cpp's
// getNewValue.
type ValueConfig struct {
	// IntCeiling bounds synthesized integers to [0, IntCeiling). Default 1000.
	IntCeiling uint64
	// NullProbability is the chance a synthesized pointer is null instead
	// of a fresh object's base address.
	NullProbability float64
}

// DefaultValueConfig matches spec.md §4.6's stated defaults.
var DefaultValueConfig = ValueConfig{IntCeiling: 1000, NullProbability: 0.1}

// NewValue fabricates a first-touch value for a primitive of kind k,
// returning its raw bytes (little-endian, k.ByteSize() long). Pointer
// fabrication allocates a fresh artificial object via h and returns its
// base address; the caller (FirstTouchRead) is responsible for recording
// the pointer map entry, since only it knows the storage location.
func (h *Heap) NewValue(k irmod.PrimKind, cfg ValueConfig) []byte {
	size := k.ByteSize()
	switch k {
	case irmod.Ptr:
		if h.rng.Float64() < cfg.NullProbability {
			return Uint64ToBytes(0, int(size))
		}
		obj := h.AllocObject(DefaultFabricatedObjectSize, true)
		return Uint64ToBytes(obj.Base, int(size))
	case irmod.Float, irmod.Double, irmod.FP80:
		// No distinct float-synthesis rule in spec.md: draw the same
		// bounded integer and reinterpret its bits, which is sufficient
		// for driving code paths without needing a real FP distribution.
		v := h.rng.Uint64() % maxU64(cfg.IntCeiling, 1)
		return Uint64ToBytes(v, int(size))
	default:
		v := h.rng.Uint64() % maxU64(cfg.IntCeiling, 1)
		return Uint64ToBytes(v, int(size))
	}
}

func maxU64(v, floor uint64) uint64 {
	if v == 0 {
		return floor
	}
	return v
}
