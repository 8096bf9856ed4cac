// Package interp executes an instrumented irmod.Module directly, in place
// of the real machine-code execution the original input-gen tooling
// relies on (spec.md §9: "this tool never compiles to a native target;
// the IR is its own executable form").
//
// Grounded on std/compiler/backend_vm.go's VM, whose Run loop walks a
// flat instruction list dispatching on opcode against a single `memory
// []byte` buffer; this package generalizes that dispatch loop to irmod's
// richer, typed instruction set and redirects every callback-table call
// into internal/rtstate instead of a fixed intrinsic table.
package interp

import (
	"fmt"

	"github.com/input-gen/ig/internal/heap"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/internal/rtstate"
)

// Interp executes functions of one Module against one rtstate.State.
type Interp struct {
	Mod   *irmod.Module
	State *rtstate.State

	globalAddrs map[*irmod.Global]uint64
}

// New builds an interpreter for mod, running against state.
func New(mod *irmod.Module, state *rtstate.State) *Interp {
	return &Interp{Mod: mod, State: state, globalAddrs: make(map[*irmod.Global]uint64)}
}

// frame is one function activation's local state: every instruction's
// result, keyed by Instr.ID, plus the bytes bound to each parameter.
type frame struct {
	results map[int][]byte
	params  [][]byte
}

// Run executes f from its entry block with the given argument bytes (one
// slice per parameter, each ByteSize() long) and returns the function's
// return value bytes (nil for void).
func (in *Interp) Run(f *irmod.Func, args [][]byte) ([]byte, error) {
	if f.IsDeclaration() {
		return in.runDeclaration(f, args)
	}
	fr := &frame{results: make(map[int][]byte), params: args}

	block := f.EntryBlock()
	idx := 0
	for {
		if idx >= len(block.Instrs) {
			return nil, fmt.Errorf("interp: function %s: block %q fell off the end without a terminator", f.Name, block.Label)
		}
		instr := block.Instrs[idx]

		ret, nextBlock, err := in.step(f, fr, instr)
		if err != nil {
			return nil, fmt.Errorf("interp: function %s, instr %d (%v): %w", f.Name, instr.ID, instr.Op, err)
		}
		if nextBlock != nil {
			block, idx = nextBlock, 0
			continue
		}
		if instr.Op == irmod.OpRet {
			return ret, nil
		}
		idx++
	}
}

// runDeclaration invokes a not-yet-instrumented external function. Once
// internal/stub has run, every reachable declaration has a weak body and
// this path is unreachable in practice; it exists as a safety net for
// tests that exercise interp directly against an unstubbed module.
func (in *Interp) runDeclaration(f *irmod.Func, args [][]byte) ([]byte, error) {
	if f.RetType == nil {
		return nil, nil
	}
	return make([]byte, f.RetType.ByteSize()), nil
}

// step executes one instruction, returning the bytes to bind to its
// result (if it has one), or a non-nil nextBlock if it was a branch.
func (in *Interp) step(f *irmod.Func, fr *frame, instr *irmod.Instr) ([]byte, *irmod.Block, error) {
	switch instr.Op {
	case irmod.OpAlloca:
		obj := in.State.Heap.AllocObject(instr.AllocaType.ByteSize(), true)
		bytes := heap.Uint64ToBytes(obj.Base, 8)
		fr.results[instr.ID] = bytes
		return bytes, nil, nil

	case irmod.OpLoad:
		addr, err := in.evalUint64(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		data := in.State.Heap.FirstTouchRead(addr, instr.AccessType.ByteSize(), leafKind(instr.AccessType))
		fr.results[instr.ID] = data
		return data, nil, nil

	case irmod.OpStore:
		addr, err := in.evalUint64(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		val, err := in.eval(fr, instr.Operands[1])
		if err != nil {
			return nil, nil, err
		}
		in.State.Heap.Write(addr, val, leafKind(instr.AccessType))
		return nil, nil, nil

	case irmod.OpGEP:
		base, err := in.evalUint64(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		off := instr.GEPParentType.FieldOffset(int(instr.GEPIndex))
		bytes := heap.Uint64ToBytes(base+off, 8)
		fr.results[instr.ID] = bytes
		return bytes, nil, nil

	case irmod.OpExtractValue:
		agg, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		t := instr.Operands[0].Type
		off := t.FieldOffset(instr.FieldIndex)
		sz := t.ElemAt(instr.FieldIndex).ByteSize()
		out := append([]byte(nil), agg[off:off+sz]...)
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpInsertValue:
		agg, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		val, err := in.eval(fr, instr.Operands[1])
		if err != nil {
			return nil, nil, err
		}
		t := instr.Operands[0].Type
		off := t.FieldOffset(instr.FieldIndex)
		out := append([]byte(nil), agg...)
		copy(out[off:off+uint64(len(val))], val)
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpExtractElement:
		vec, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		elemType := instr.Operands[0].Type.Elem
		sz := elemType.ByteSize()
		off := uint64(instr.FieldIndex) * sz
		out := append([]byte(nil), vec[off:off+sz]...)
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpInsertElement:
		vec, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		val, err := in.eval(fr, instr.Operands[1])
		if err != nil {
			return nil, nil, err
		}
		elemType := instr.Operands[0].Type.Elem
		sz := elemType.ByteSize()
		off := uint64(instr.FieldIndex) * sz
		out := append([]byte(nil), vec...)
		copy(out[off:off+sz], val)
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpBitcast, irmod.OpAddrSpaceCast:
		val, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		fr.results[instr.ID] = val
		return val, nil, nil

	case irmod.OpIntToPtr, irmod.OpPtrToInt:
		val, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		out := resize(val, int(instr.Type.ByteSize()))
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpZExt:
		val, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		out := resize(val, int(instr.Type.ByteSize()))
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpSExt:
		val, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		out := signExtend(val, int(instr.Type.ByteSize()))
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpTrunc:
		val, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		out := resize(val, int(instr.Type.ByteSize()))
		fr.results[instr.ID] = out
		return out, nil, nil

	case irmod.OpCall:
		return in.call(f, fr, instr)

	case irmod.OpBr:
		return nil, instr.Targets[0], nil

	case irmod.OpCondBr:
		cond, err := in.eval(fr, instr.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		if isTruthy(cond) {
			return nil, instr.Targets[0], nil
		}
		return nil, instr.Targets[1], nil

	case irmod.OpRet:
		if len(instr.Operands) == 0 {
			return nil, nil, nil
		}
		val, err := in.eval(fr, instr.Operands[0])
		return val, nil, err

	case irmod.OpUnreachable:
		return nil, nil, fmt.Errorf("reached an unreachable instruction")

	default:
		return nil, nil, fmt.Errorf("unsupported opcode %v (internal/lower should have rewritten it away)", instr.Op)
	}
}

func (in *Interp) call(caller *irmod.Func, fr *frame, instr *irmod.Instr) ([]byte, *irmod.Block, error) {
	argBytes := make([][]byte, len(instr.Operands))
	argWords := make([]uint64, len(instr.Operands))
	for i, op := range instr.Operands {
		v, err := in.eval(fr, op)
		if err != nil {
			return nil, nil, err
		}
		argBytes[i] = v
		argWords[i] = heap.BytesToUint64(v)
	}

	if instr.ExternName != "" {
		if _, _, ok := in.State.Table.Resolve(instr.ExternName); ok {
			result, err := in.State.Dispatch(instr.ExternName, argWords)
			if err != nil {
				return nil, nil, err
			}
			if instr.Type == nil {
				fr.results[instr.ID] = nil
				return nil, nil, nil
			}
			out := heap.Uint64ToBytes(result, int(instr.Type.ByteSize()))
			fr.results[instr.ID] = out
			return out, nil, nil
		}
	}

	callee := instr.Callee
	if callee == nil && instr.ExternName != "" {
		callee = in.Mod.FuncByName(instr.ExternName)
	}
	if callee == nil {
		return nil, nil, fmt.Errorf("call to unresolved function %q", instr.ExternName)
	}

	result, err := in.Run(callee, argBytes)
	if err != nil {
		return nil, nil, err
	}
	fr.results[instr.ID] = result
	return result, nil, nil
}

func (in *Interp) eval(fr *frame, v irmod.Value) ([]byte, error) {
	switch v.Kind {
	case irmod.ValInstr:
		b, ok := fr.results[v.Instr.ID]
		if !ok {
			return nil, fmt.Errorf("use of instruction %d before it executed", v.Instr.ID)
		}
		return b, nil
	case irmod.ValConst:
		return heap.Uint64ToBytes(v.Const, int(v.Type.ByteSize())), nil
	case irmod.ValParam:
		if v.Param >= len(fr.params) {
			return nil, fmt.Errorf("parameter index %d out of range (%d params)", v.Param, len(fr.params))
		}
		return fr.params[v.Param], nil
	case irmod.ValGlobal:
		addr := in.globalAddr(v.Global)
		return heap.Uint64ToBytes(addr, 8), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

func (in *Interp) evalUint64(fr *frame, v irmod.Value) (uint64, error) {
	b, err := in.eval(fr, v)
	if err != nil {
		return 0, err
	}
	return heap.BytesToUint64(b), nil
}

// globalAddr lazily backs a Global with a real heap object the first time
// it's referenced, so every reference within one run resolves to the same
// address.
func (in *Interp) globalAddr(g *irmod.Global) uint64 {
	if addr, ok := in.globalAddrs[g]; ok {
		return addr
	}
	obj := in.State.Heap.AllocObject(g.Type.ByteSize(), false)
	in.State.Heap.Write(obj.Base, make([]byte, g.Type.ByteSize()), irmod.I8)
	in.globalAddrs[g] = obj.Base
	return obj.Base
}

func leafKind(t *irmod.Type) irmod.PrimKind {
	if t == nil || t.Tag != irmod.TagPrimitive {
		return irmod.I8
	}
	return t.Prim
}

func resize(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b[:min(len(b), n)])
	return out
}

func signExtend(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	if len(b) > 0 && len(b) < n && b[len(b)-1]&0x80 != 0 {
		for i := len(b); i < n; i++ {
			out[i] = 0xFF
		}
	}
	return out
}

func isTruthy(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
