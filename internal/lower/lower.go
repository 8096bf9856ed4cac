// Package lower implements access lowering (spec.md §4.2): rewrite each
// interesting access classify.Classify finds into one or more callback
// invocations, decomposing aggregates element-wise and masked vector
// loads/stores lane-by-lane.
package lower

import (
	"errors"
	"fmt"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/classify"
	"github.com/input-gen/ig/internal/irmod"
)

// ErrUnsupportedIR is returned (and, at the cmd/instrument boundary,
// treated as fatal per spec.md §7) for IR shapes this tool explicitly does
// not support: scalable vectors, and masked-intrinsic forms outside the
// load/store shapes classify.Classify recognizes.
var ErrUnsupportedIR = errors.New("lower: unsupported IR shape")

// Run lowers every interesting access in every defined (non-declaration)
// function of mod against table, in place. Functions are walked in program
// order and, within a function, blocks and instructions are walked in
// program order, satisfying spec.md §9's "accesses within a function are
// lowered in program order" requirement (internal/serialize's relocation
// emission depends on this transitively, via the object discovery order it
// assumes).
func Run(mod *irmod.Module, table *abi.Table) error {
	for _, f := range mod.Funcs {
		if f.IsDeclaration() {
			continue
		}
		if err := lowerFunc(f, table); err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
	}
	return nil
}

func lowerFunc(f *irmod.Func, table *abi.Table) error {
	entry := f.EntryBlock()
	entryBuilder := irmod.NewBuilder(f, entry)

	// Blocks grows as masked-op lowering splits blocks; iterate by index
	// so newly appended blocks are visited too.
	for bi := 0; bi < len(f.Blocks); bi++ {
		b := f.Blocks[bi]
		for idx := 0; idx < len(b.Instrs); idx++ {
			instr := b.Instrs[idx]
			acc, ok := classify.Classify(instr)
			if !ok {
				continue
			}
			switch instr.Op {
			case irmod.OpMemCopy, irmod.OpMemMove, irmod.OpMemSet:
				repl := lowerMemIntrinsic(f, instr, table)
				irmod.Replace(b, idx, repl...)
				idx += len(repl) - 1
			case irmod.OpMaskedLoad, irmod.OpMaskedStore:
				newIdx, newBlockIdx, err := lowerMasked(f, bi, b, idx, acc, table, entryBuilder)
				if err != nil {
					return err
				}
				// The loop's idx++ lands on newIdx, the continuation
				// block's first instruction.
				bi, idx = newBlockIdx, newIdx-1
				b = f.Blocks[bi]
			default:
				repl, err := lowerPlain(f, instr, acc, table, entryBuilder)
				if err != nil {
					return err
				}
				irmod.Replace(b, idx, repl...)
				idx += len(repl) - 1
			}
		}
	}
	return nil
}

// lowerPlain handles OpLoad/OpStore/OpAtomicRMW/OpAtomicCAS, decomposing
// aggregate access types element-wise before emitting the leaf
// access_<T> calls.
func lowerPlain(f *irmod.Func, instr *irmod.Instr, acc classify.Access, table *abi.Table, eb *irmod.Builder) ([]*irmod.Instr, error) {
	tmpBlock := &irmod.Block{Label: "$lower$"}
	bd := irmod.NewBuilder(f, tmpBlock)

	addr := bd.Call(nil, table.Fixed.TranslatePtr, irmod.PtrTo(nil), acc.Addr).Result()

	result, err := lowerLeafOrAggregate(bd, eb, table, addr, acc.AccessType, acc.Value, toKind(acc.Kind), 0)
	if err != nil {
		return nil, err
	}

	if result != nil {
		// The original instruction's users referenced its Value directly
		// by *Instr identity; since this pass doesn't track use-sites out
		// of band, keep instr's ID alive on the final instruction of the
		// replacement sequence by rebinding it onto a bitcast of the
		// fabricated/observed result.
		rebind := bd.Bitcast(*result, instr.Type)
		rebind.ID = instr.ID
		tmpBlock.Instrs[len(tmpBlock.Instrs)-1] = rebind
	}
	return tmpBlock.Instrs, nil
}

func toKind(k classify.Kind) abi.KindCode {
	switch k {
	case classify.KindRead:
		return abi.KindRead
	case classify.KindWrite:
		return abi.KindWrite
	default:
		return abi.KindReadWrite
	}
}

// lowerLeafOrAggregate recursively decomposes t (struct/array/vector)
// into per-element access_<T> calls, addressing each element with a
// constant GEP; a write takes each element's value out with extractvalue,
// and a read rebuilds the result with insertvalue, per spec.md §4.2. For a read it returns
// the fabricated/observed value (rebuilt into an aggregate one leaf at a
// time for aggregate types); for a write it returns nil.
func lowerLeafOrAggregate(bd, eb *irmod.Builder, table *abi.Table, addr irmod.Value, t *irmod.Type, val irmod.Value, kind abi.KindCode, depth int) (*irmod.Value, error) {
	if t.Tag == irmod.TagVector && t.Scalable {
		return nil, fmt.Errorf("%w: scalable vector access", ErrUnsupportedIR)
	}
	if !t.IsAggregate() {
		return lowerLeaf(bd, eb, table, addr, t, val, kind)
	}

	var fieldTypes []*irmod.Type
	switch t.Tag {
	case irmod.TagStruct:
		for _, fld := range t.Fields {
			fieldTypes = append(fieldTypes, fld.Type)
		}
	case irmod.TagArray, irmod.TagVector:
		for i := 0; i < t.Count; i++ {
			fieldTypes = append(fieldTypes, t.Elem)
		}
	}

	var result *irmod.Value
	if kind == abi.KindRead {
		agg := zeroAggregate(bd, t)
		result = &agg
	}

	for i, ft := range fieldTypes {
		elemAddr := bd.GEP(addr, t, int64(i), ft).Result()
		var elemVal irmod.Value
		if kind != abi.KindRead {
			elemVal = bd.ExtractValue(val, i, ft).Result()
		}
		sub, err := lowerLeafOrAggregate(bd, eb, table, elemAddr, ft, elemVal, kind, depth+1)
		if err != nil {
			return nil, err
		}
		if kind == abi.KindRead && sub != nil {
			inserted := bd.InsertValue(*result, i, *sub).Result()
			result = &inserted
		}
	}
	return result, nil
}

// zeroAggregate materializes a starting value of aggregate type t to serve
// as the accumulator insertvalue builds the fabricated/observed result into.
func zeroAggregate(bd *irmod.Builder, t *irmod.Type) irmod.Value {
	// A dedicated "undef aggregate" op would be more LLVM-faithful, but
	// this tool only ever reads the aggregate back out field by field
	// (every leaf gets InsertValue'd before any read), so an alloca+load
	// is behaviorally equivalent and keeps the instruction set small. The
	// slot is not zero-initialized: the load sees whatever the heap's
	// first-touch read fabricates, and every field of it is overwritten.
	slot := bd.Alloca(t).Result()
	return bd.Load(slot, t).Result()
}

// lowerLeaf emits the access_<T> call(s) for one primitive-typed leaf
// access, handling the value-encoding rule (spec.md §4.2) for values wider
// than 8 bytes.
func lowerLeaf(bd, eb *irmod.Builder, table *abi.Table, addr irmod.Value, t *irmod.Type, val irmod.Value, kind abi.KindCode) (*irmod.Value, error) {
	// kind == abi.KindReadWrite only ever reaches here for an
	// atomic RMW/CAS on a primitive leaf; spec.md §7's "read-then-write on
	// an aggregate aborts" is rtstate's concern, not lowering's, since
	// aggregate accesses never classify as ReadWrite in this model.
	cb, ok := table.Types[t.Prim]
	if !ok {
		return nil, fmt.Errorf("%w: no callback for primitive %s", ErrUnsupportedIR, t.Prim)
	}

	i64 := irmod.Prim(irmod.I64)
	var valArg irmod.Value
	if kind != abi.KindRead {
		encoded, err := encodeValue(bd, eb, val)
		if err != nil {
			return nil, err
		}
		valArg = encoded
	} else {
		valArg = irmod.ConstInt(irmod.I64, 0)
	}

	sizeArg := irmod.ConstInt(irmod.I64, t.ByteSize())
	objBaseArg := irmod.ConstInt(irmod.I64, 0) // always 0; rtstate does not read this operand
	kindArg := irmod.ConstInt(irmod.I64, uint64(kind))
	hintPtr := irmod.Value{Kind: irmod.ValConst, Type: irmod.PtrTo(nil), Const: 0}
	hintCount := irmod.ConstInt(irmod.I64, 0)

	call := bd.Call(nil, cb.Access, i64, addr, valArg, sizeArg, objBaseArg, kindArg, hintPtr, hintCount)
	if kind == abi.KindRead {
		decoded, err := decodeValue(bd, call.Result(), t)
		if err != nil {
			return nil, err
		}
		return &decoded, nil
	}
	return nil, nil
}

// encodeValue implements spec.md §4.2's value-encoding rule: types that
// fit in 8 bytes are zero-extended/bitcast-then-extended to i64; wider
// types are spilled to a stack allocation in the function's entry block
// and the slot's address (as an i64) is passed instead.
func encodeValue(bd, eb *irmod.Builder, val irmod.Value) (irmod.Value, error) {
	sz := val.Type.ByteSize()
	if sz > 8 {
		slot := eb.Alloca(val.Type).Result()
		bd.Store(slot, val)
		addrAsInt := bd.Bitcast(slot, irmod.Prim(irmod.I64)).Result()
		return addrAsInt, nil
	}
	switch val.Type.Prim {
	case irmod.Float, irmod.Double:
		bits := bd.Bitcast(val, intOfSize(sz)).Result()
		return bd.ZExt(bits, irmod.Prim(irmod.I64)).Result(), nil
	default:
		if sz == 8 {
			return val, nil
		}
		return bd.ZExt(val, irmod.Prim(irmod.I64)).Result(), nil
	}
}

// decodeValue is encodeValue's inverse, applied to an access_<T> call's
// returned i64 to recover the leaf-typed value.
func decodeValue(bd *irmod.Builder, bits irmod.Value, t *irmod.Type) (irmod.Value, error) {
	if t.ByteSize() > 8 {
		// bits holds the spilled slot's address, returned as i64; load
		// the real value back out of it.
		ptr := bd.Bitcast(bits, irmod.PtrTo(t)).Result()
		return bd.Load(ptr, t).Result(), nil
	}
	switch t.Prim {
	case irmod.Float, irmod.Double:
		trunc := bd.Trunc(bits, intOfSize(t.ByteSize())).Result()
		return bd.Bitcast(trunc, t).Result(), nil
	default:
		if t.ByteSize() == 8 {
			return bd.Bitcast(bits, t).Result(), nil
		}
		return bd.Trunc(bits, t).Result(), nil
	}
}

func intOfSize(n uint64) *irmod.Type {
	switch n {
	case 1:
		return irmod.Prim(irmod.I8)
	case 2:
		return irmod.Prim(irmod.I16)
	case 4:
		return irmod.Prim(irmod.I32)
	default:
		return irmod.Prim(irmod.I64)
	}
}

// lowerMemIntrinsic replaces a memcpy/memmove/memset with a single call to
// the matching fixed callback, coercing the length to i64 (spec.md §4.2).
// The original load/store pair underneath is never independently
// instrumented (test S6).
func lowerMemIntrinsic(f *irmod.Func, instr *irmod.Instr, table *abi.Table) []*irmod.Instr {
	tmp := &irmod.Block{}
	bd := irmod.NewBuilder(f, tmp)

	var target string
	switch instr.Op {
	case irmod.OpMemCopy:
		target = table.Fixed.MemCopy
	case irmod.OpMemMove:
		target = table.Fixed.MemMove
	default:
		target = table.Fixed.MemSet
	}

	dst := instr.Operands[0]
	src := instr.Operands[1]
	lenVal := instr.MemLen
	if lenVal.Type == nil || lenVal.Type.Prim != irmod.I64 {
		lenVal = bd.ZExt(instr.MemLen, irmod.Prim(irmod.I64)).Result()
	}
	call := bd.Call(nil, target, nil, dst, src, lenVal)
	call.ID = instr.ID
	return tmp.Instrs
}
