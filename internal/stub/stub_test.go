package stub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/interp"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/internal/rtstate"
)

func TestRunGivesUnknownDeclarationAWeakBody(t *testing.T) {
	decl := &irmod.Func{Name: "widget_open", RetType: irmod.Prim(irmod.I32)}
	mod := &irmod.Module{Funcs: []*irmod.Func{decl}}
	table := abi.NewTable(abi.ModeGenerate)

	_, err := Run(mod, table)
	require.NoError(t, err)

	assert.False(t, decl.IsDeclaration())
	assert.Equal(t, irmod.LinkageWeak, decl.Linkage)
}

func TestRunGivesMallocAFabricatingBody(t *testing.T) {
	decl := &irmod.Func{Name: "malloc", RetType: irmod.PtrTo(nil)}
	mod := &irmod.Module{Funcs: []*irmod.Func{decl}}
	table := abi.NewTable(abi.ModeGenerate)

	_, err := Run(mod, table)
	require.NoError(t, err)

	state := rtstate.NewGenerateState(table, 11)
	in := interp.New(mod, state)
	out, err := in.Run(decl, [][]byte{{64, 0, 0, 0, 0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Len(t, out, 8)
}

func TestInjectInitRewritesExternalGlobals(t *testing.T) {
	g := &irmod.Global{Name: "errno_location", Type: irmod.Prim(irmod.I32), IsExternal: true}
	mod := &irmod.Module{Globals: []*irmod.Global{g}}
	table := abi.NewTable(abi.ModeGenerate)

	init, err := Run(mod, table)
	require.NoError(t, err)

	require.NotNil(t, g.Companion)
	assert.Equal(t, "input_gen_init", init.Name[len(table.Prefix):])
}

func TestRunReplacesInFunctionGlobalUseWithCompanionReload(t *testing.T) {
	g := &irmod.Global{Name: "counter", Type: irmod.Prim(irmod.I32), IsExternal: true}

	f := &irmod.Func{Name: "bump"}
	b := f.NewBlock("entry")
	bd := irmod.NewBuilder(f, b)
	load := bd.Load(irmod.GlobalRef(g), irmod.Prim(irmod.I32))
	bd.Ret(load.Result())

	mod := &irmod.Module{Funcs: []*irmod.Func{f}, Globals: []*irmod.Global{g}}
	table := abi.NewTable(abi.ModeGenerate)

	_, err := Run(mod, table)
	require.NoError(t, err)

	require.NotNil(t, g.Companion)

	// The entry block's first instruction reloads the companion; the
	// original load's address operand no longer references g directly.
	require.NotEmpty(t, b.Instrs)
	reload := b.Instrs[0]
	require.Equal(t, irmod.OpLoad, reload.Op)
	require.Equal(t, irmod.ValGlobal, reload.Operands[0].Kind)
	assert.Same(t, g.Companion, reload.Operands[0].Global)

	assert.Same(t, reload, load.Operands[0].Instr)
	assert.Equal(t, irmod.ValInstr, load.Operands[0].Kind)
}
