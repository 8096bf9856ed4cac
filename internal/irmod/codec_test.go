package irmod

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModule() *Module {
	callee := &Func{Name: "callee", RetType: Prim(I32)}
	b := callee.NewBlock("entry")
	NewBuilder(callee, b).Ret(ConstInt(I32, 0))

	caller := &Func{Name: "caller", Params: []Param{{Name: "x", Type: Prim(I32)}}, RetType: Prim(I32)}
	cb := caller.NewBlock("entry")
	cbd := NewBuilder(caller, cb)
	call := cbd.Call(callee, "", callee.RetType)
	cbd.Ret(call.Result())

	g := &Global{Name: "counter", Type: Prim(I64), IsConstant: false}

	return &Module{Funcs: []*Func{callee, caller}, Globals: []*Global{g}, Target: caller}
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	mod := sampleModule()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mod))

	out, err := Decode(&buf)
	require.NoError(t, err)

	require.Len(t, out.Funcs, 2)
	assert.Equal(t, "callee", out.Funcs[0].Name)
	assert.Equal(t, "caller", out.Funcs[1].Name)
	require.NotNil(t, out.Target)
	assert.Equal(t, "caller", out.Target.Name)
	require.Len(t, out.Globals, 1)
	assert.Equal(t, "counter", out.Globals[0].Name)
}

func TestEncodeToBytesDecodeFromBytesRoundTrips(t *testing.T) {
	mod := sampleModule()

	b, err := EncodeToBytes(mod)
	require.NoError(t, err)
	assert.NotEmpty(t, b)

	out, err := DecodeFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, mod.Target.Name, out.Target.Name)
}

// recursiveLoopyModule builds a function whose control flow loops back on
// itself (loop's CondBr targets loop itself) and whose exit block calls the
// function itself (direct recursion) — the two pointer-cycle shapes the
// live graph can take that a naive gob-of-the-live-struct encode cannot
// survive.
func recursiveLoopyModule() *Module {
	f := &Func{Name: "loopy", Params: []Param{{Name: "n", Type: Prim(I32)}}, RetType: Prim(I32)}
	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	exit := f.NewBlock("exit")

	NewBuilder(f, entry).Br(loop)

	lbd := NewBuilder(f, loop)
	cond := lbd.Call(nil, "cond_check", Prim(I1), ParamRef(0, Prim(I32)))
	lbd.CondBr(cond.Result(), loop, exit)

	xbd := NewBuilder(f, exit)
	selfCall := xbd.Call(f, "", f.RetType, ParamRef(0, Prim(I32)))
	xbd.Ret(selfCall.Result())

	return &Module{Funcs: []*Func{f}, Target: f}
}

func TestEncodeDecodeSurvivesLoopsAndSelfRecursion(t *testing.T) {
	mod := recursiveLoopyModule()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mod))

	out, err := Decode(&buf)
	require.NoError(t, err)

	got := out.Funcs[0]
	require.Len(t, got.Blocks, 3)
	loopBlock, exitBlock := got.Blocks[1], got.Blocks[2]

	condBr := loopBlock.Instrs[len(loopBlock.Instrs)-1]
	require.Equal(t, OpCondBr, condBr.Op)
	assert.Same(t, loopBlock, condBr.Targets[0])
	assert.Same(t, exitBlock, condBr.Targets[1])

	callInstr := exitBlock.Instrs[len(exitBlock.Instrs)-2]
	require.Equal(t, OpCall, callInstr.Op)
	assert.Same(t, got, callInstr.Callee)
}
