// Package classify implements the memory-access classifier (spec.md §4.1):
// for each instruction, decide whether it is an "interesting" memory
// operation that must be redirected through the runtime, and if so extract
// the access descriptor internal/lower needs to do that redirection.
package classify

import (
	"github.com/input-gen/ig/internal/irmod"
)

// Kind mirrors abi.KindCode without importing internal/abi, keeping this
// package's dependency graph a leaf (classify is consumed by lower, not the
// other way around).
type Kind int

const (
	KindRead Kind = iota
	KindWrite
	KindReadWrite
)

// Access is the per-instruction descriptor spec.md §3 defines. The
// invariant "kind ∈ {write, read-then-write} implies Value present; kind =
// read implies Value absent" is enforced by NewAccess, not by convention,
// for every access except the memory-intrinsic one Classify builds
// directly: that Access is KindReadWrite and carries no Value.
type Access struct {
	Instr      *irmod.Instr
	Addr       irmod.Value
	AddrOpIdx  int
	AccessType *irmod.Type
	Value      irmod.Value
	Mask       *irmod.Value
	Kind       Kind
}

// NewAccess builds an Access, panicking if the kind/value invariant is
// violated — a violation here is a bug in classify itself, not bad input,
// since classify alone decides both Kind and Value.
func NewAccess(instr *irmod.Instr, addr irmod.Value, addrIdx int, at *irmod.Type, val irmod.Value, mask *irmod.Value, kind Kind) Access {
	hasValue := !val.IsZero()
	if kind == KindRead && hasValue {
		panic("classify: read access must not carry a value")
	}
	if kind != KindRead && !hasValue {
		panic("classify: write/read-write access must carry a value")
	}
	return Access{Instr: instr, Addr: addr, AddrOpIdx: addrIdx, AccessType: at, Value: val, Mask: mask, Kind: kind}
}

// Classify inspects instr and returns (Access, true) if it is interesting,
// or (Access{}, false) otherwise. Exactly one of these two outcomes always
// happens — classify never errors; unsupported-but-interesting shapes are
// lower's problem (spec.md §7: unsupported IR shape is fatal at lowering
// time, not a classifier concern).
func Classify(instr *irmod.Instr) (Access, bool) {
	switch instr.Op {
	case irmod.OpLoad:
		return classifyPlain(instr, instr.Operands[0], 0, instr.AccessType, irmod.Value{}, nil, KindRead)
	case irmod.OpStore:
		addr, val := instr.Operands[0], instr.Operands[1]
		return classifyPlain(instr, addr, 0, instr.AccessType, val, nil, KindWrite)
	case irmod.OpAtomicRMW, irmod.OpAtomicCAS:
		addr := instr.Operands[0]
		val := instr.Operands[len(instr.Operands)-1]
		return classifyPlain(instr, addr, 0, instr.AccessType, val, nil, KindReadWrite)
	case irmod.OpMaskedLoad:
		addr := instr.Operands[0]
		mask := instr.Operands[1]
		return classifyPlain(instr, addr, 0, instr.AccessType, irmod.Value{}, &mask, KindRead)
	case irmod.OpMaskedStore:
		val := instr.Operands[0]
		addr := instr.Operands[1]
		mask := instr.Operands[2]
		return classifyPlain(instr, addr, 1, instr.AccessType, val, &mask, KindWrite)
	case irmod.OpMemCopy, irmod.OpMemMove, irmod.OpMemSet:
		// Memory intrinsics are interesting as a unit; lower replaces the
		// whole instruction with a single fixed-callback call rather than
		// decomposing into per-byte accesses (spec.md §4.2, test S6).
		return Access{Instr: instr, Kind: KindReadWrite}, true
	default:
		return Access{}, false
	}
}

func classifyPlain(instr *irmod.Instr, addr irmod.Value, addrIdx int, at *irmod.Type, val irmod.Value, mask *irmod.Value, kind Kind) (Access, bool) {
	if rejected(addr) {
		return Access{}, false
	}
	if instr.SwiftError {
		return Access{}, false
	}
	return NewAccess(instr, addr, addrIdx, at, val, mask, kind), true
}

// rejected implements the exclusion rules (spec.md §4.1): non-zero address
// space, or an underlying object that is a local stack allocation or a
// global variable, discovered by peeling inbounds GEP/bitcast offsets back
// to the underlying object. Every global is rejected unconditionally,
// mirroring the original's instrumentAddress, which skips every
// GlobalVariable without exception: a global's value is observed solely
// through the spec.md §4.4 companion-pointer/global callback indirection,
// never through the per-access heap fabric.
func rejected(addr irmod.Value) bool {
	if addr.Type != nil && addr.Type.Tag == irmod.TagPrimitive && addr.Type.Prim == irmod.Ptr && addr.Type.AddrSpace != 0 {
		return true
	}
	base := peelToObject(addr)
	switch base.Kind {
	case irmod.ValInstr:
		if base.Instr != nil && base.Instr.Op == irmod.OpAlloca {
			return true // local stack allocation: fabric-owned, not observed
		}
	case irmod.ValGlobal:
		return true
	}
	return false
}

// peelToObject walks constant-offset GEPs, bitcasts and addrspace casts
// back to the value that actually owns the memory.
func peelToObject(v irmod.Value) irmod.Value {
	for v.Kind == irmod.ValInstr && v.Instr != nil {
		switch v.Instr.Op {
		case irmod.OpGEP, irmod.OpBitcast, irmod.OpAddrSpaceCast:
			v = v.Instr.Operands[0]
			continue
		}
		break
	}
	return v
}
