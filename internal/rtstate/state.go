// Package rtstate is the runtime half of the callback ABI internal/abi
// defines: for each of the three modes it gives every access_<T>/get_<T>/
// arg_<T>/fixed callback a concrete implementation, backed by
// internal/heap's lazy heap.
//
// One State is owned by exactly one goroutine for exactly one seed
// (spec.md §5); internal/interp threads it explicitly through every call
// it dispatches rather than reaching for goroutine-local storage, so the
// "thread-local active runtime" requirement falls out of ordinary
// parameter passing.
//
// Grounded on original_source/input-gen-runtimes/rt.hpp's RuntimeState
// (one instance per recording/generation/run, owning the heap, the
// argument buffer and the push/pop bracket stack) and
// rt-input-gen.cpp/rt-record.cpp/rt-run.cpp's mode-specific callback
// bodies.
package rtstate

import (
	"errors"
	"fmt"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/heap"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/internal/serialize"
)

// ErrVersionMismatch is returned by Dispatch when an entry's
// version_mismatch_check_v<N> call carries a version operand other than
// this runtime's abi.Version (spec.md §7): a build produced by one version
// of this tool is never replayed by another.
var ErrVersionMismatch = errors.New("rtstate: ABI version mismatch")

// ErrUnimplemented marks an access pattern this runtime deliberately
// doesn't support: an atomic read-modify-write on an aggregate access
// type (spec.md §7 says the runtime aborts here, not that it returns a
// value the caller could swallow).
var ErrUnimplemented = errors.New("rtstate: unimplemented")

// State is the per-seed runtime: a heap, the active callback table, and
// the mode-specific bookkeeping Dispatch needs.
type State struct {
	Mode  abi.Mode
	Table *abi.Table
	Heap  *heap.Heap

	// ArgsBase is the heap address of the packed argument buffer, set only
	// in Run mode; internal/entrypoint's Run-mode entry point GEPs off of
	// it to recover each argument word.
	ArgsBase uint64

	// pushDepth tracks Record mode's push/pop bracket nesting (spec.md
	// §4.3); a pop without a matching push is an error. access does not
	// consult it: every access is handled the same inside or outside a
	// bracket.
	pushDepth int

	// args accumulates the argument words of Record and Generate mode (one
	// entry per arg_<T> call, in call order); in Run mode NewFromArtifact
	// fills it with the packed argument buffer decoded as 8-byte words.
	args []uint64

	// runArgs backs Run mode: the packed buffer internal/serialize
	// decoded, pre-loaded into Heap before the entry point ever runs.
	runArgs []byte

	versionChecked bool
}

// NewGenerateState starts a fresh heap for Generate mode, seeded so the
// same seed always reproduces the same fabricated memory image (spec.md
// §4.6 Determinism, §8 property "same seed implies identical output").
func NewGenerateState(table *abi.Table, seed int64) *State {
	rng := newSeededRand(seed)
	return &State{
		Mode:  abi.ModeGenerate,
		Table: table,
		Heap:  heap.NewHeap(rng, heap.DefaultPolicy, heap.DefaultValueConfig),
	}
}

// NewFromArtifact pre-loads a heap from a decoded input file: the file's
// memory blob becomes the heap's initial (already fully "used") contents,
// every RelocMem relocation is applied to rebase a stored pointer back
// into heap address space, and RelocArg relocations are applied to the
// args blob the same way before the entry point ever reads it.
func NewFromArtifact(table *abi.Table, file *serialize.File) (*State, error) {
	rng := newSeededRand(0) // Run mode never fabricates; the RNG is unused but kept for interface uniformity.
	h := heap.NewHeap(rng, heap.DefaultPolicy, heap.DefaultValueConfig)
	if len(file.Memory) > 0 {
		obj := h.AllocObject(uint64(len(file.Memory)), false)
		h.Write(obj.Base, file.Memory, irmod.I8)
		for _, rel := range file.Relocations {
			if rel.Kind != serialize.RelocMem {
				continue
			}
			target := obj.Base + rel.Target
			h.Write(obj.Base+rel.Offset, heap.Uint64ToBytes(target, 8), irmod.Ptr)
		}
	}

	args := append([]byte(nil), file.Args...)
	var memObjBase uint64
	if len(h.Objects) > 0 {
		memObjBase = h.Objects[0].Base
	}
	for _, rel := range file.Relocations {
		if rel.Kind != serialize.RelocArg {
			continue
		}
		target := memObjBase + rel.Target
		b := heap.Uint64ToBytes(target, 8)
		copy(args[rel.Offset:rel.Offset+8], b)
	}

	// The args blob is itself placed in heap address space so
	// internal/entrypoint's Run-mode entry can read it with ordinary
	// OpLoad/OpGEP instructions instead of a separate out-of-band path.
	argsObj := h.AllocObject(uint64(len(args)), false)
	if len(args) > 0 {
		h.Write(argsObj.Base, args, irmod.I8)
	}

	return &State{Mode: abi.ModeRun, Table: table, Heap: h, ArgsBase: argsObj.Base, runArgs: args, args: decodeArgsAsWords(args)}, nil
}

// NewRecordState starts a state that observes a live interpreted run
// (internal/interp executing the uninstrumented function directly, this
// tool having no real traced process underneath) and captures what it
// touches for internal/serialize to write out.
func NewRecordState(table *abi.Table, seed int64) *State {
	rng := newSeededRand(seed)
	return &State{
		Mode:  abi.ModeRecord,
		Table: table,
		Heap:  heap.NewHeap(rng, heap.DefaultPolicy, heap.DefaultValueConfig),
	}
}

func decodeArgsAsWords(b []byte) []uint64 {
	out := make([]uint64, 0, len(b)/8)
	for i := 0; i+8 <= len(b); i += 8 {
		out = append(out, heap.BytesToUint64(b[i:i+8]))
	}
	return out
}

// Dispatch is internal/interp's single entry point for every call whose
// target resolves against s.Table: it maps the resolved (kind, role) back
// onto the right heap/bookkeeping operation and returns the callback's i64
// result (zero for void fixed callbacks).
func (s *State) Dispatch(name string, args []uint64) (uint64, error) {
	kind, role, ok := s.Table.Resolve(name)
	if !ok {
		return 0, fmt.Errorf("rtstate: %q is not a callback of this table", name)
	}
	switch role {
	case abi.RoleAccess:
		return s.access(kind, args)
	case abi.RoleGet:
		return s.get(kind)
	case abi.RoleArg:
		return s.arg(args)
	case abi.RoleFixedMemMove, abi.RoleFixedMemCopy, abi.RoleFixedMemSet:
		return 0, s.memIntrinsic(role, args)
	case abi.RoleFixedTranslatePtr:
		return args[0], nil // identity: this tool has no address-space remapping to perform
	case abi.RoleFixedPush:
		s.pushDepth++
		return 0, nil
	case abi.RoleFixedPop:
		if s.pushDepth == 0 {
			return 0, fmt.Errorf("rtstate: pop without matching push")
		}
		s.pushDepth--
		return 0, nil
	case abi.RoleFixedInit:
		return 0, nil // heap/table already constructed by NewXState
	case abi.RoleFixedDeinit:
		return 0, nil // internal/driver reads s.Heap/s.args directly after the run completes
	case abi.RoleFixedGlobal:
		return args[0], nil // companion-pointer indirection resolves to the companion itself; see internal/stub
	case abi.RoleFixedVersionCheck:
		return s.versionCheck(args)
	case abi.RoleFixedEntry:
		return 0, fmt.Errorf("rtstate: entry callback %q must be invoked by internal/interp's own entry logic, not Dispatch", name)
	default:
		return 0, fmt.Errorf("rtstate: unhandled role for %q", name)
	}
}

// access implements access_<T> for all three modes:
//   - Generate: a first-touch read fabricates the value; a write stores it.
//   - Run: the value was already pre-loaded by NewFromArtifact, so a read is
//     just a first-touch read against already-used memory, and a write
//     updates it normally.
//   - Record: identical mechanics to Generate, standing in for "read the
//     real process's memory" since this tool has no real process; see
//     NewRecordState.
func (s *State) access(kind irmod.PrimKind, args []uint64) (uint64, error) {
	if len(args) < 5 {
		return 0, fmt.Errorf("rtstate: access_%s: expected at least 5 args, got %d", kind, len(args))
	}
	addr, valueBits, size, _, kindCode := args[0], args[1], args[2], args[3], abi.KindCode(args[4])

	switch kindCode {
	case abi.KindRead:
		bytes := s.Heap.FirstTouchRead(addr, size, kind)
		return heap.BytesToUint64(bytes), nil
	case abi.KindWrite:
		s.Heap.Write(addr, heap.Uint64ToBytes(valueBits, int(size)), kind)
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: access_%s: atomic read-modify-write on an aggregate", ErrUnimplemented, kind)
	}
}

// get implements get_<T>: fabricate a scalar value with no backing
// address, used by internal/entrypoint's Generate-mode argument synthesis.
func (s *State) get(kind irmod.PrimKind) (uint64, error) {
	if s.Mode != abi.ModeGenerate {
		return 0, fmt.Errorf("rtstate: get_%s called outside generate mode", kind)
	}
	return heap.BytesToUint64(s.Heap.NewValue(kind, heap.DefaultValueConfig)), nil
}

// arg implements arg_<T>: Record mode's entry-point wrapper calls this
// once per real argument to capture it for replay, and Generate mode's
// entry point calls it once per fabricated argument for the same reason —
// both need the final argument values recorded so internal/driver can
// pack them into the output artifact's args blob.
func (s *State) arg(args []uint64) (uint64, error) {
	if s.Mode != abi.ModeRecord && s.Mode != abi.ModeGenerate {
		return 0, fmt.Errorf("rtstate: arg_<T> called outside record/generate mode")
	}
	if len(args) < 1 {
		return 0, fmt.Errorf("rtstate: arg_<T>: missing value operand")
	}
	s.args = append(s.args, args[0])
	return 0, nil
}

func (s *State) memIntrinsic(role abi.Role, args []uint64) error {
	if len(args) < 3 {
		return fmt.Errorf("rtstate: memory intrinsic: expected 3 args, got %d", len(args))
	}
	dst, src, n := args[0], args[1], args[2]
	switch role {
	case abi.RoleFixedMemSet:
		val := byte(src)
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = val
		}
		s.Heap.Write(dst, buf, irmod.I8)
	default: // memcpy/memmove: byte-for-byte, src read as raw untyped bytes
		buf := s.Heap.FirstTouchRead(src, n, irmod.I8)
		s.Heap.Write(dst, buf, irmod.I8)
	}
	return nil
}

func (s *State) versionCheck(args []uint64) (uint64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("rtstate: version_mismatch_check: missing version operand")
	}
	if args[0] != uint64(abi.Version) {
		return 0, fmt.Errorf("%w: artifact built for v%d, runtime is v%d", ErrVersionMismatch, args[0], abi.Version)
	}
	s.versionChecked = true
	return 0, nil
}

// Args returns the argument words collected so far: Record mode's
// observed real arguments, or Run mode's decoded packed argument buffer.
func (s *State) Args() []uint64 { return s.args }
