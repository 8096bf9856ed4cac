// Package entrypoint synthesizes the three mode-specific entry functions
// spec.md §4.3/§6 describe: Record's transparent instrumented wrapper,
// Generate's argument-fabricating `entry(int, ptr)`, and Run's
// buffer-reading `entry(ptr)`.
//
// Grounded on std/compiler/main.go's own small amount of synthesized-code
// generation (the CLI wraps a user's `main` the same way, just at the
// text level rather than the IR level) and
// original_source/input-gen-runtimes/rt-input-gen.cpp's entry thunk shape.
package entrypoint

import (
	"errors"
	"fmt"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/irmod"
)

// ErrNoSuchEntry is returned by Resolve when target has no body to build
// an entry point around — a declaration slipped through as a target is a
// caller error, not something internal/stub's weak-body synthesis should
// paper over (spec.md §7: entry resolution is fatal, not soft-failed).
var ErrNoSuchEntry = errors.New("entrypoint: no such entry")

// Resolve finds target's entry function in mod, building it with build if
// it isn't there yet. A module cmd/instrument already ran Build* against
// carries the entry under the table's naming convention; calling Resolve
// again (e.g. from internal/driver, once per process rather than once per
// seed) must find that same function rather than synthesizing a second,
// duplicate one. Resolution happens once, before any concurrent use of
// mod begins — mod.AddFunc is not safe to call from multiple goroutines.
func Resolve(mod *irmod.Module, target *irmod.Func, table *abi.Table, versionCheck bool, build func(*irmod.Module, *irmod.Func, *abi.Table, bool) (*irmod.Func, error)) (*irmod.Func, error) {
	if target.IsDeclaration() {
		return nil, fmt.Errorf("%w: %s has no body to build an entry point around", ErrNoSuchEntry, target.Name)
	}
	name := table.EntryFor(target.Name)
	if ef := mod.FuncByName(name); ef != nil {
		return ef, nil
	}
	return build(mod, target, table, versionCheck)
}

// RegisterVersionCheck emits the version_mismatch_check_v<N> call that
// each Build* places right after the init call when versionCheck is on
// (spec.md §4.3, §7): a build of this artifact is only ever replayed by a
// runtime compiled against the same ABI version.
func RegisterVersionCheck(bd *irmod.Builder, table *abi.Table) {
	bd.Call(nil, table.Fixed.VersionMismatchCheck, nil, irmod.ConstInt(irmod.I64, uint64(abi.Version)))
}

// BuildGenerate synthesizes `entry(i32 seed, ptr out)`: fabricate one
// value per target parameter via get_<T>, call target, and — if target
// returns a value — store it through out (spec.md §6: "entry(int, ptr)").
// versionCheck toggles the version_mismatch_check_v<N> call
// (config.InstrumentOptions.VersionCheck).
func BuildGenerate(mod *irmod.Module, target *irmod.Func, table *abi.Table, versionCheck bool) (*irmod.Func, error) {
	ef := &irmod.Func{
		Name:    table.EntryFor(target.Name),
		Params:  []irmod.Param{{Name: "seed", Type: irmod.Prim(irmod.I32)}, {Name: "out", Type: irmod.PtrTo(nil)}},
		RetType: nil,
	}
	b := ef.NewBlock("entry")
	bd := irmod.NewBuilder(ef, b)

	bd.Call(nil, table.Fixed.Init, nil)
	if versionCheck {
		RegisterVersionCheck(bd, table)
	}

	args := make([]irmod.Value, len(target.Params))
	for i, p := range target.Params {
		v, err := synthesize(bd, table, p.Type)
		if err != nil {
			return nil, fmt.Errorf("entrypoint: generate: param %d of %s: %w", i, target.Name, err)
		}
		args[i] = v
		// Tap the fabricated value the same way Record taps a real one, so
		// internal/driver can harvest rtstate.State.Args() into the output
		// artifact's args blob regardless of which mode produced it.
		if cb, err := leafCallbacks(table, p.Type); err == nil {
			bd.Call(nil, cb.Arg, nil, v)
		}
	}

	call := bd.Call(target, "", target.RetType, args...)
	if target.RetType != nil {
		outPtr := irmod.ParamRef(1, irmod.PtrTo(target.RetType))
		bd.Store(outPtr, call.Result())
	}
	bd.Call(nil, table.Fixed.Deinit, nil)
	bd.Ret()

	mod.AddFunc(ef)
	return ef, nil
}

// BuildRun synthesizes `entry(ptr buf)`: read one argument word per target
// parameter directly out of the packed buffer at sequential 8-byte
// offsets (rtstate.NewFromArtifact's layout) and call target (spec.md §6:
// "entry(ptr) reading a packed buffer").
func BuildRun(mod *irmod.Module, target *irmod.Func, table *abi.Table, versionCheck bool) (*irmod.Func, error) {
	ef := &irmod.Func{
		Name:    table.EntryFor(target.Name),
		Params:  []irmod.Param{{Name: "buf", Type: irmod.PtrTo(nil)}},
		RetType: nil,
	}
	b := ef.NewBlock("entry")
	bd := irmod.NewBuilder(ef, b)

	bd.Call(nil, table.Fixed.Init, nil)
	if versionCheck {
		RegisterVersionCheck(bd, table)
	}

	bufType := irmod.Array(irmod.Prim(irmod.I64), len(target.Params))
	args := make([]irmod.Value, len(target.Params))
	for i, p := range target.Params {
		slot := bd.GEP(irmod.ParamRef(0, nil), bufType, int64(i), irmod.Prim(irmod.I64)).Result()
		word := bd.Load(slot, irmod.Prim(irmod.I64)).Result()
		args[i] = coerce(bd, word, p.Type)
	}

	bd.Call(target, "", target.RetType, args...)
	bd.Call(nil, table.Fixed.Deinit, nil)
	bd.Ret()

	mod.AddFunc(ef)
	return ef, nil
}

// BuildRecord synthesizes a transparent wrapper sharing target's exact
// signature: push a capture bracket, tap every real argument via arg_<T>,
// call target, pop the bracket, and forward target's return value
// (spec.md §4.3: "push/pop bracket + arg taps").
func BuildRecord(mod *irmod.Module, target *irmod.Func, table *abi.Table, versionCheck bool) (*irmod.Func, error) {
	ef := &irmod.Func{Name: table.EntryFor(target.Name), Params: target.Params, RetType: target.RetType}
	b := ef.NewBlock("entry")
	bd := irmod.NewBuilder(ef, b)

	bd.Call(nil, table.Fixed.Init, nil)
	if versionCheck {
		RegisterVersionCheck(bd, table)
	}
	bd.Call(nil, table.Fixed.Push, nil)

	args := make([]irmod.Value, len(target.Params))
	for i, p := range target.Params {
		pv := irmod.ParamRef(i, p.Type)
		cb, err := leafCallbacks(table, p.Type)
		if err != nil {
			return nil, fmt.Errorf("entrypoint: record: param %d of %s: %w", i, target.Name, err)
		}
		bd.Call(nil, cb.Arg, nil, pv)
		args[i] = pv
	}

	call := bd.Call(target, "", target.RetType, args...)
	bd.Call(nil, table.Fixed.Pop, nil)
	bd.Call(nil, table.Fixed.Deinit, nil)
	if target.RetType != nil {
		bd.Ret(call.Result())
	} else {
		bd.Ret()
	}

	mod.AddFunc(ef)
	return ef, nil
}

// synthesize builds a value of type t via get_<T> for a primitive leaf, or
// by recursively synthesizing and assembling each field/element of an
// aggregate (spec.md §4.2's decomposition rule applied to fabrication
// instead of access lowering).
func synthesize(bd *irmod.Builder, table *abi.Table, t *irmod.Type) (irmod.Value, error) {
	if !t.IsAggregate() {
		cb, err := leafCallbacks(table, t)
		if err != nil {
			return irmod.Value{}, err
		}
		return bd.Call(nil, cb.Get, t).Result(), nil
	}

	agg := bd.Load(bd.Alloca(t).Result(), t).Result()
	count := t.Count
	if t.Tag == irmod.TagStruct {
		count = len(t.Fields)
	}
	for i := 0; i < count; i++ {
		elemType := t.ElemAt(i)
		elem, err := synthesize(bd, table, elemType)
		if err != nil {
			return irmod.Value{}, err
		}
		agg = bd.InsertValue(agg, i, elem).Result()
	}
	return agg, nil
}

// coerce adapts a raw i64 buffer word down (or reinterprets it) to t,
// mirroring internal/lower's decodeValue for the <=8-byte case; Run mode
// never needs the >8-byte spill path since every target parameter this
// tool instruments fits in one word or is a pointer.
func coerce(bd *irmod.Builder, word irmod.Value, t *irmod.Type) irmod.Value {
	if t.ByteSize() == 8 || t.Tag != irmod.TagPrimitive {
		return bd.Bitcast(word, t).Result()
	}
	return bd.Trunc(word, t).Result()
}

func leafCallbacks(table *abi.Table, t *irmod.Type) (abi.Callbacks, error) {
	if t.Tag != irmod.TagPrimitive {
		return abi.Callbacks{}, fmt.Errorf("entrypoint: non-primitive leaf type %s has no callback", t)
	}
	cb, ok := table.Types[t.Prim]
	if !ok {
		return abi.Callbacks{}, fmt.Errorf("entrypoint: no callback for primitive %s", t.Prim)
	}
	return cb, nil
}
