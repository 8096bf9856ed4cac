package lower

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/irmod"
)

func countCallsTo(f *irmod.Func, name string) int {
	n := 0
	f.AllInstrs(func(b *irmod.Block, i *irmod.Instr) {
		if i.Op == irmod.OpCall && i.ExternName == name {
			n++
		}
	})
	return n
}

func TestRunLowersPlainLoadToAccessCall(t *testing.T) {
	table := abi.NewTable(abi.ModeGenerate)
	f := &irmod.Func{Name: "f", Params: []irmod.Param{{Name: "p", Type: irmod.PtrTo(irmod.Prim(irmod.I32))}}}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	load := bd.Load(irmod.ParamRef(0, irmod.PtrTo(irmod.Prim(irmod.I32))), irmod.Prim(irmod.I32))
	bd.Ret(load.Result())
	mod := &irmod.Module{Funcs: []*irmod.Func{f}, Target: f}

	require.NoError(t, Run(mod, table))

	cb := table.Types[irmod.I32]
	assert.Equal(t, 1, countCallsTo(f, cb.Access))
}

func TestRunLowersStoreToAccessCall(t *testing.T) {
	table := abi.NewTable(abi.ModeGenerate)
	f := &irmod.Func{Name: "f", Params: []irmod.Param{{Name: "p", Type: irmod.PtrTo(irmod.Prim(irmod.I32))}}}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	bd.Store(irmod.ParamRef(0, irmod.PtrTo(irmod.Prim(irmod.I32))), irmod.ConstInt(irmod.I32, 5))
	bd.Ret()
	mod := &irmod.Module{Funcs: []*irmod.Func{f}, Target: f}

	require.NoError(t, Run(mod, table))

	cb := table.Types[irmod.I32]
	assert.Equal(t, 1, countCallsTo(f, cb.Access))
}

func TestRunLowersMemCopyToFixedCallback(t *testing.T) {
	table := abi.NewTable(abi.ModeGenerate)
	f := &irmod.Func{Name: "f", Params: []irmod.Param{
		{Name: "dst", Type: irmod.PtrTo(irmod.Prim(irmod.I8))},
		{Name: "src", Type: irmod.PtrTo(irmod.Prim(irmod.I8))},
	}}
	b := f.NewBlock("entry")
	dst := irmod.ParamRef(0, irmod.PtrTo(irmod.Prim(irmod.I8)))
	src := irmod.ParamRef(1, irmod.PtrTo(irmod.Prim(irmod.I8)))
	b.Instrs = append(b.Instrs, &irmod.Instr{
		ID: f.NextID(), Op: irmod.OpMemCopy,
		Operands: []irmod.Value{dst, src},
		MemLen:   irmod.ConstInt(irmod.I64, 16),
	})
	irmod.NewBuilder(f, b).Ret()
	mod := &irmod.Module{Funcs: []*irmod.Func{f}, Target: f}

	require.NoError(t, Run(mod, table))
	assert.Equal(t, 1, countCallsTo(f, table.Fixed.MemCopy))
}

func TestRunRejectsScalableVectorAccess(t *testing.T) {
	table := abi.NewTable(abi.ModeGenerate)
	vecType := irmod.Vector(irmod.Prim(irmod.I32), 4, true)
	f := &irmod.Func{Name: "f", Params: []irmod.Param{{Name: "p", Type: irmod.PtrTo(vecType)}}}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	bd.Load(irmod.ParamRef(0, irmod.PtrTo(vecType)), vecType)
	mod := &irmod.Module{Funcs: []*irmod.Func{f}, Target: f}

	err := Run(mod, table)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedIR))
}

func TestRunLowersStructStoreElementWise(t *testing.T) {
	table := abi.NewTable(abi.ModeGenerate)
	st := irmod.Struct(
		irmod.StructField{Name: "a", Type: irmod.Prim(irmod.I32)},
		irmod.StructField{Name: "b", Type: irmod.Prim(irmod.I64)},
	)
	f := &irmod.Func{Name: "f", Params: []irmod.Param{
		{Name: "p", Type: irmod.PtrTo(st)},
		{Name: "v", Type: st},
	}}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	bd.Store(irmod.ParamRef(0, irmod.PtrTo(st)), irmod.ParamRef(1, st))
	bd.Ret()
	mod := &irmod.Module{Funcs: []*irmod.Func{f}, Target: f}

	require.NoError(t, Run(mod, table))

	assert.Equal(t, 1, countCallsTo(f, table.Types[irmod.I32].Access))
	assert.Equal(t, 1, countCallsTo(f, table.Types[irmod.I64].Access))
}

func TestRunSkipsDeclarations(t *testing.T) {
	table := abi.NewTable(abi.ModeGenerate)
	decl := &irmod.Func{Name: "extern_fn"}
	mod := &irmod.Module{Funcs: []*irmod.Func{decl}}

	assert.NoError(t, Run(mod, table))
}
