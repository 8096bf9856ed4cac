package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-gen/ig/internal/irmod"
)

func newFunc() (*irmod.Func, *irmod.Builder) {
	f := &irmod.Func{Name: "f"}
	b := f.NewBlock("entry")
	return f, irmod.NewBuilder(f, b)
}

func TestClassifyLoad(t *testing.T) {
	f, bd := newFunc()
	alloca := bd.Alloca(irmod.Prim(irmod.I32))
	_ = f
	ptr := irmod.ParamRef(0, irmod.PtrTo(irmod.Prim(irmod.I32)))
	load := bd.Load(ptr, irmod.Prim(irmod.I32))

	access, ok := Classify(load)
	require.True(t, ok)
	assert.Equal(t, KindRead, access.Kind)
	assert.True(t, access.Value.IsZero())
	_ = alloca
}

func TestClassifyStore(t *testing.T) {
	_, bd := newFunc()
	ptr := irmod.ParamRef(0, irmod.PtrTo(irmod.Prim(irmod.I32)))
	store := bd.Store(ptr, irmod.ConstInt(irmod.I32, 7))

	access, ok := Classify(store)
	require.True(t, ok)
	assert.Equal(t, KindWrite, access.Kind)
	assert.False(t, access.Value.IsZero())
}

func TestClassifyRejectsLocalAlloca(t *testing.T) {
	_, bd := newFunc()
	alloca := bd.Alloca(irmod.Prim(irmod.I32))
	load := bd.Load(alloca.Result(), irmod.Prim(irmod.I32))

	_, ok := Classify(load)
	assert.False(t, ok)
}

func TestClassifyRejectsAllocaThroughGEP(t *testing.T) {
	st := irmod.Struct(irmod.StructField{Name: "a", Type: irmod.Prim(irmod.I32)}, irmod.StructField{Name: "b", Type: irmod.Prim(irmod.I32)})
	_, bd := newFunc()
	alloca := bd.Alloca(st)
	gep := bd.GEP(alloca.Result(), st, 1, irmod.Prim(irmod.I32))
	load := bd.Load(gep.Result(), irmod.Prim(irmod.I32))

	_, ok := Classify(load)
	assert.False(t, ok)
}

func TestClassifyRejectsNonZeroAddrSpace(t *testing.T) {
	_, bd := newFunc()
	ptrType := &irmod.Type{Tag: irmod.TagPrimitive, Prim: irmod.Ptr, AddrSpace: 1}
	ptr := irmod.ParamRef(0, ptrType)
	load := bd.Load(ptr, irmod.Prim(irmod.I32))

	_, ok := Classify(load)
	assert.False(t, ok)
}

func TestClassifyRejectsInternalGlobal(t *testing.T) {
	g := &irmod.Global{Name: "__ig_counter", Type: irmod.Prim(irmod.I64)}
	_, bd := newFunc()
	load := bd.Load(irmod.GlobalRef(g), irmod.Prim(irmod.I64))

	_, ok := Classify(load)
	assert.False(t, ok)
}

func TestClassifyRejectsProfilingSectionGlobal(t *testing.T) {
	g := &irmod.Global{Name: "counter", Type: irmod.Prim(irmod.I64), Section: "__profc_"}
	_, bd := newFunc()
	load := bd.Load(irmod.GlobalRef(g), irmod.Prim(irmod.I64))

	_, ok := Classify(load)
	assert.False(t, ok)
}

// Every global is rejected, not just the compiler-internal or
// profiling-section ones: spec.md §4.1's exclusion applies to "a global
// variable", full stop, mirroring the original's instrumentAddress. An
// ordinary global is supplied via the companion-pointer/global callback
// indirection (spec.md §4.4), never observed through the heap fabric.
func TestClassifyRejectsOrdinaryGlobal(t *testing.T) {
	g := &irmod.Global{Name: "counter", Type: irmod.Prim(irmod.I64)}
	_, bd := newFunc()
	load := bd.Load(irmod.GlobalRef(g), irmod.Prim(irmod.I64))

	_, ok := Classify(load)
	assert.False(t, ok)
}

func TestClassifyRejectsOrdinaryGlobalThroughGEP(t *testing.T) {
	st := irmod.Struct(irmod.StructField{Name: "a", Type: irmod.Prim(irmod.I32)}, irmod.StructField{Name: "b", Type: irmod.Prim(irmod.I32)})
	g := &irmod.Global{Name: "counters", Type: st}
	_, bd := newFunc()
	gep := bd.GEP(irmod.GlobalRef(g), st, 1, irmod.Prim(irmod.I32))
	load := bd.Load(gep.Result(), irmod.Prim(irmod.I32))

	_, ok := Classify(load)
	assert.False(t, ok)
}

func TestClassifyMaskedLoadCarriesMask(t *testing.T) {
	ptr := irmod.ParamRef(0, irmod.PtrTo(irmod.Prim(irmod.I32)))
	mask := irmod.ParamRef(1, irmod.Prim(irmod.I1))
	instr := &irmod.Instr{Op: irmod.OpMaskedLoad, Type: irmod.Prim(irmod.I32), AccessType: irmod.Prim(irmod.I32), Operands: []irmod.Value{ptr, mask}}

	access, ok := Classify(instr)
	require.True(t, ok)
	require.NotNil(t, access.Mask)
	assert.Equal(t, KindRead, access.Kind)
}

func TestClassifyMemCopyIsInterestingAsAUnit(t *testing.T) {
	instr := &irmod.Instr{Op: irmod.OpMemCopy}
	access, ok := Classify(instr)
	require.True(t, ok)
	assert.Equal(t, KindReadWrite, access.Kind)
}

func TestClassifyUnreachableIsNotInteresting(t *testing.T) {
	instr := &irmod.Instr{Op: irmod.OpUnreachable}
	_, ok := Classify(instr)
	assert.False(t, ok)
}

func TestClassifyRejectsSwiftError(t *testing.T) {
	_, bd := newFunc()
	ptr := irmod.ParamRef(0, irmod.PtrTo(irmod.Prim(irmod.I32)))
	load := bd.Load(ptr, irmod.Prim(irmod.I32))
	load.SwiftError = true

	_, ok := Classify(load)
	assert.False(t, ok)
}

func TestNewAccessPanicsOnReadWithValue(t *testing.T) {
	assert.Panics(t, func() {
		NewAccess(&irmod.Instr{}, irmod.Value{}, 0, nil, irmod.ConstInt(irmod.I32, 1), nil, KindRead)
	})
}

func TestNewAccessPanicsOnWriteWithoutValue(t *testing.T) {
	assert.Panics(t, func() {
		NewAccess(&irmod.Instr{}, irmod.Value{}, 0, nil, irmod.Value{}, nil, KindWrite)
	})
}
