// Package stub makes an extracted function's module self-contained
// (spec.md §4.4): every declaration gets a weak body instead of failing to
// link, and every externally-defined global is redirected through a
// companion pointer resolved once at startup.
//
// Grounded on std/compiler/ir.go's GLOBAL_GET/GLOBAL_ADDR opcode pair
// (every global reference already goes through one indirection level in
// the teacher's own bytecode) generalized from "address a global" to
// "address a synthesized companion that stands in for one".
package stub

import (
	"fmt"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/irmod"
)

// knownLibraryFuncs lists the handful of libc-shaped declarations this
// tool gives a real (not just zero-returning) weak body, because target
// functions extracted from ordinary C/C++ code call them constantly and a
// silent no-op malloc would make every pointer downstream garbage.
var knownLibraryFuncs = map[string]func(mod *irmod.Module, f *irmod.Func, table *abi.Table){
	"malloc":  stubMalloc,
	"calloc":  stubCalloc,
	"free":    stubVoidNoop,
	"memcpy":  stubMemcpy,
	"memmove": stubMemmove,
	"memset":  stubMemset,
}

// Run gives every declaration in mod a weak body and rewrites
// every externally-defined global into companion-pointer form, per
// spec.md §4.4. InjectInit's caller (internal/driver) must still arrange
// for the returned init function to run before the target.
func Run(mod *irmod.Module, table *abi.Table) (*irmod.Func, error) {
	for _, f := range mod.Funcs {
		if !f.IsDeclaration() {
			continue
		}
		if _, _, ok := table.Resolve(f.Name); ok {
			continue // a callback symbol, not an ordinary declaration; rtstate handles it
		}
		if builder, ok := knownLibraryFuncs[f.Name]; ok {
			builder(mod, f, table)
			continue
		}
		stubUnknown(f)
	}

	init := injectInit(mod, table)
	RewriteGlobals(mod)
	return init, nil
}

// RewriteGlobals implements the other half of spec.md §4.4's global
// rewrite: "all in-function uses are replaced by a reload from the
// companion pointer at entry of the using function." injectInit only
// creates the companion and resolves it once at startup; without this pass
// nothing ever reads the companion back, so every original reference to
// the external global would still resolve straight to it instead of going
// through the indirection spec.md requires.
func RewriteGlobals(mod *irmod.Module) {
	for _, f := range mod.Funcs {
		if f.IsDeclaration() {
			continue
		}
		rewriteFuncGlobals(f)
	}
}

// rewriteFuncGlobals finds every global f references (in program order, so
// the reload instructions it inserts come out in a deterministic sequence
// matching spec.md §9's traversal-order requirement), reloads each through
// its companion at the top of the entry block, and substitutes the reload
// everywhere the original global reference appeared as an operand.
func rewriteFuncGlobals(f *irmod.Func) {
	var order []*irmod.Global
	seen := make(map[*irmod.Global]bool)
	note := func(g *irmod.Global) {
		if g == nil || g.Companion == nil || seen[g] {
			return
		}
		seen[g] = true
		order = append(order, g)
	}
	f.AllInstrs(func(_ *irmod.Block, instr *irmod.Instr) {
		for _, op := range instr.Operands {
			if op.Kind == irmod.ValGlobal {
				note(op.Global)
			}
		}
		if instr.Mask != nil && instr.Mask.Kind == irmod.ValGlobal {
			note(instr.Mask.Global)
		}
	})
	if len(order) == 0 {
		return
	}

	// Built in a throwaway block (same idiom as internal/lower's tmpBlock)
	// so the reloads land in program order ahead of whatever the entry
	// block already held, rather than appended after it.
	tmp := &irmod.Block{}
	bd := irmod.NewBuilder(f, tmp)
	reload := make(map[*irmod.Global]irmod.Value, len(order))
	for _, g := range order {
		ld := bd.Load(irmod.GlobalRef(g.Companion), g.Companion.Type)
		reload[g] = ld.Result()
	}
	entry := f.EntryBlock()
	entry.Instrs = append(tmp.Instrs, entry.Instrs...)

	replace := func(v irmod.Value) irmod.Value {
		if v.Kind == irmod.ValGlobal {
			if nv, ok := reload[v.Global]; ok {
				return nv
			}
		}
		return v
	}
	f.AllInstrs(func(_ *irmod.Block, instr *irmod.Instr) {
		for i, op := range instr.Operands {
			instr.Operands[i] = replace(op)
		}
		if instr.Mask != nil {
			nv := replace(*instr.Mask)
			instr.Mask = &nv
		}
		instr.MemLen = replace(instr.MemLen)
	})
}

// stubUnknown gives an arbitrary undefined extern a weak body that
// returns a zero value and touches nothing — spec.md §4.4's fallback for
// "a declaration this tool doesn't specifically know how to emulate."
func stubUnknown(f *irmod.Func) {
	f.Linkage = irmod.LinkageWeak
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	if f.RetType == nil {
		bd.Ret()
		return
	}
	bd.Ret(irmod.ConstInt(intKindOf(f.RetType), 0))
}

func intKindOf(t *irmod.Type) irmod.PrimKind {
	if t.Tag == irmod.TagPrimitive {
		return t.Prim
	}
	return irmod.I64
}

// stubMalloc fabricates a pointer via get_ptr rather than honoring the
// call's requested size exactly; the fabricated object is always
// heap.DefaultFabricatedObjectSize, an accepted approximation since this
// tool only needs malloc to keep returning usable memory, not to track
// real allocator bookkeeping.
func stubMalloc(mod *irmod.Module, f *irmod.Func, table *abi.Table) {
	f.Linkage = irmod.LinkageWeak
	if len(f.Params) == 0 {
		f.Params = []irmod.Param{{Name: "size", Type: irmod.Prim(irmod.I64)}}
	}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	cb := table.Types[irmod.Ptr]
	ptr := bd.Call(nil, cb.Get, irmod.PtrTo(nil))
	bd.Ret(ptr.Result())
}

func stubCalloc(mod *irmod.Module, f *irmod.Func, table *abi.Table) {
	f.Linkage = irmod.LinkageWeak
	if len(f.Params) < 2 {
		f.Params = []irmod.Param{{Name: "nmemb", Type: irmod.Prim(irmod.I64)}, {Name: "size", Type: irmod.Prim(irmod.I64)}}
	}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	cb := table.Types[irmod.Ptr]
	ptr := bd.Call(nil, cb.Get, irmod.PtrTo(nil))
	bd.Ret(ptr.Result())
}

func stubVoidNoop(mod *irmod.Module, f *irmod.Func, table *abi.Table) {
	f.Linkage = irmod.LinkageWeak
	b := f.NewBlock("entry")
	irmod.NewBuilder(f, b).Ret()
}

func stubMemcpy(mod *irmod.Module, f *irmod.Func, table *abi.Table) {
	stubMemIntrinsic(f, table.Fixed.MemCopy)
}

func stubMemmove(mod *irmod.Module, f *irmod.Func, table *abi.Table) {
	stubMemIntrinsic(f, table.Fixed.MemMove)
}

func stubMemset(mod *irmod.Module, f *irmod.Func, table *abi.Table) {
	stubMemIntrinsic(f, table.Fixed.MemSet)
}

// stubMemIntrinsic gives a 3-argument libc memory function a weak body
// that forwards straight to the matching fixed callback, so a target that
// calls memcpy by name (rather than emitting an llvm.memcpy intrinsic
// internal/lower already rewrote) still gets the same instrumented
// behavior.
func stubMemIntrinsic(f *irmod.Func, calleeName string) {
	f.Linkage = irmod.LinkageWeak
	if len(f.Params) < 3 {
		f.Params = []irmod.Param{
			{Name: "dst", Type: irmod.PtrTo(nil)},
			{Name: "src", Type: irmod.PtrTo(nil)},
			{Name: "n", Type: irmod.Prim(irmod.I64)},
		}
	}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	bd.Call(nil, calleeName, nil,
		irmod.ParamRef(0, f.Params[0].Type), irmod.ParamRef(1, f.Params[1].Type), irmod.ParamRef(2, f.Params[2].Type))
	if f.RetType != nil {
		bd.Ret(irmod.ParamRef(0, f.Params[0].Type))
	} else {
		bd.Ret()
	}
}

// injectInit synthesizes __input_gen_init: for every external global, it
// resolves a companion pointer through the table's fixed Global callback
// and stores the resolution back into the companion slot, so every later
// reference to the companion sees a concrete address (spec.md §4.4's
// "global indirection" resolved once at startup rather than on every
// access).
func injectInit(mod *irmod.Module, table *abi.Table) *irmod.Func {
	init := &irmod.Func{Name: fmt.Sprintf("%sinput_gen_init", table.Prefix)}
	b := init.NewBlock("entry")
	bd := irmod.NewBuilder(init, b)

	for _, g := range mod.Globals {
		if !g.IsExternal {
			continue
		}
		companion := &irmod.Global{Name: "__ig_companion_" + g.Name, Type: irmod.PtrTo(g.Type)}
		g.Companion = companion
		mod.Globals = append(mod.Globals, companion)

		companionAddr := irmod.GlobalRef(companion)
		resolved := bd.Call(nil, table.Fixed.Global, irmod.PtrTo(g.Type), companionAddr)
		bd.Store(companionAddr, resolved.Result())
	}
	bd.Ret()

	mod.AddFunc(init)
	return init
}
