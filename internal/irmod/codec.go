package irmod

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
)

// Encode and Decode persist a *Module between the cmd/ binaries: this
// tool has no text frontend producing an irmod.Module the way the
// teacher's parser produces its own IR, so the module a pipeline run
// operates on is always either built directly by a caller (tests,
// internal/driver's own callers) or round-tripped through this codec
// between one cmd/ binary's output and the next's input.
//
// The live graph is not a tree: a loop's backward branch makes a Block
// reachable from one of its own later instructions, and a recursive
// function's Instr.Callee points back at the function currently being
// encoded. gob walks pointers by re-encoding the pointee inline with no
// cycle detection, so handing it the live *Module directly would recurse
// forever on the first loop or the first recursive call either one
// instruments. Rather than give up on gob — still the only tool in reach
// that round-trips an arbitrary Go value graph without a schema/codegen
// step — this codec breaks every back-reference into a name or index
// before encoding, the same indirection a real bytecode format uses
// instead of a raw pointer, and relinks it in one resolution pass after
// decoding: branch targets become indices into the owning function's own
// block list, callees become function names, global references become
// global names, and references to a prior instruction's result become
// that instruction's ID — already the key internal/interp uses to look
// values up, so no separate identity scheme is needed on either side.
func Encode(w io.Writer, m *Module) error {
	if err := gob.NewEncoder(w).Encode(toWire(m)); err != nil {
		return fmt.Errorf("irmod: encoding module: %w", err)
	}
	return nil
}

// Decode reads a Module previously written by Encode.
func Decode(r io.Reader) (*Module, error) {
	var wm wireModule
	if err := gob.NewDecoder(r).Decode(&wm); err != nil {
		return nil, fmt.Errorf("irmod: decoding module: %w", err)
	}
	return fromWire(&wm)
}

// EncodeToBytes and DecodeFromBytes are convenience wrappers for callers
// that already hold the module in memory rather than streaming it.
func EncodeToBytes(m *Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeFromBytes(b []byte) (*Module, error) {
	return Decode(bytes.NewReader(b))
}

type wireModule struct {
	Funcs      []wireFunc
	Globals    []wireGlobal
	TargetName string
}

type wireFunc struct {
	Name    string
	Params  []Param
	RetType *Type
	Blocks  []wireBlock
	Linkage Linkage
}

type wireBlock struct {
	Label  string
	Instrs []wireInstr
}

type wireInstr struct {
	ID       int
	Op       Opcode
	Type     *Type
	Operands []wireValue

	AllocaType *Type

	AccessType *Type
	AtomicKind AtomicOp
	Mask       *wireValue
	MemLen     wireValue

	GEPParentType *Type
	GEPIndex      int64

	FieldIndex int

	CalleeName string
	ExternName string

	TargetIndices []int

	SwiftError bool
}

type wireValue struct {
	Kind       ValueKind
	Type       *Type
	InstrID    int
	Const      uint64
	Param      int
	GlobalName string
}

type wireGlobal struct {
	Name          string
	Type          *Type
	IsConstant    bool
	IsExternal    bool
	Section       string
	CompanionName string
}

func toWire(m *Module) *wireModule {
	wm := &wireModule{}
	if m.Target != nil {
		wm.TargetName = m.Target.Name
	}
	for _, f := range m.Funcs {
		wm.Funcs = append(wm.Funcs, toWireFunc(f))
	}
	for _, g := range m.Globals {
		wg := wireGlobal{Name: g.Name, Type: g.Type, IsConstant: g.IsConstant, IsExternal: g.IsExternal, Section: g.Section}
		if g.Companion != nil {
			wg.CompanionName = g.Companion.Name
		}
		wm.Globals = append(wm.Globals, wg)
	}
	return wm
}

func toWireFunc(f *Func) wireFunc {
	wf := wireFunc{Name: f.Name, Params: f.Params, RetType: f.RetType, Linkage: f.Linkage}
	blockIndex := make(map[*Block]int, len(f.Blocks))
	for i, b := range f.Blocks {
		blockIndex[b] = i
	}
	for _, b := range f.Blocks {
		wb := wireBlock{Label: b.Label}
		for _, instr := range b.Instrs {
			wb.Instrs = append(wb.Instrs, toWireInstr(instr, blockIndex))
		}
		wf.Blocks = append(wf.Blocks, wb)
	}
	return wf
}

func toWireInstr(instr *Instr, blockIndex map[*Block]int) wireInstr {
	wi := wireInstr{
		ID:            instr.ID,
		Op:            instr.Op,
		Type:          instr.Type,
		AllocaType:    instr.AllocaType,
		AccessType:    instr.AccessType,
		AtomicKind:    instr.AtomicKind,
		MemLen:        toWireValue(instr.MemLen),
		GEPParentType: instr.GEPParentType,
		GEPIndex:      instr.GEPIndex,
		FieldIndex:    instr.FieldIndex,
		ExternName:    instr.ExternName,
		SwiftError:    instr.SwiftError,
	}
	if instr.Callee != nil {
		wi.CalleeName = instr.Callee.Name
	}
	for _, op := range instr.Operands {
		wi.Operands = append(wi.Operands, toWireValue(op))
	}
	if instr.Mask != nil {
		v := toWireValue(*instr.Mask)
		wi.Mask = &v
	}
	for _, t := range instr.Targets {
		wi.TargetIndices = append(wi.TargetIndices, blockIndex[t])
	}
	return wi
}

func toWireValue(v Value) wireValue {
	wv := wireValue{Kind: v.Kind, Type: v.Type, Const: v.Const, Param: v.Param}
	if v.Instr != nil {
		wv.InstrID = v.Instr.ID
	}
	if v.Global != nil {
		wv.GlobalName = v.Global.Name
	}
	return wv
}

func fromWire(wm *wireModule) (*Module, error) {
	m := &Module{}
	funcByName := make(map[string]*Func, len(wm.Funcs))
	for _, wf := range wm.Funcs {
		f := &Func{Name: wf.Name, Params: wf.Params, RetType: wf.RetType, Linkage: wf.Linkage}
		m.Funcs = append(m.Funcs, f)
		funcByName[f.Name] = f
	}

	globalByName := make(map[string]*Global, len(wm.Globals))
	for _, wg := range wm.Globals {
		globalByName[wg.Name] = &Global{Name: wg.Name, Type: wg.Type, IsConstant: wg.IsConstant, IsExternal: wg.IsExternal, Section: wg.Section}
	}
	for _, wg := range wm.Globals {
		g := globalByName[wg.Name]
		m.Globals = append(m.Globals, g)
		if wg.CompanionName != "" {
			companion, ok := globalByName[wg.CompanionName]
			if !ok {
				return nil, fmt.Errorf("irmod: decode: global %q has unknown companion %q", wg.Name, wg.CompanionName)
			}
			g.Companion = companion
		}
	}

	for i, wf := range wm.Funcs {
		if err := fromWireFunc(m.Funcs[i], wf, funcByName, globalByName); err != nil {
			return nil, err
		}
	}

	if wm.TargetName != "" {
		target, ok := funcByName[wm.TargetName]
		if !ok {
			return nil, fmt.Errorf("irmod: decode: target %q not found among decoded functions", wm.TargetName)
		}
		m.Target = target
	}
	return m, nil
}

func fromWireFunc(f *Func, wf wireFunc, funcByName map[string]*Func, globalByName map[string]*Global) error {
	blocks := make([]*Block, len(wf.Blocks))
	for i, wb := range wf.Blocks {
		blocks[i] = &Block{Label: wb.Label}
	}
	f.Blocks = blocks

	instrByID := make(map[int]*Instr)
	maxID := 0
	for bi, wb := range wf.Blocks {
		for _, wi := range wb.Instrs {
			instr := &Instr{
				ID:            wi.ID,
				Op:            wi.Op,
				Type:          wi.Type,
				AllocaType:    wi.AllocaType,
				AccessType:    wi.AccessType,
				AtomicKind:    wi.AtomicKind,
				GEPParentType: wi.GEPParentType,
				GEPIndex:      wi.GEPIndex,
				FieldIndex:    wi.FieldIndex,
				ExternName:    wi.ExternName,
				SwiftError:    wi.SwiftError,
			}
			blocks[bi].Instrs = append(blocks[bi].Instrs, instr)
			instrByID[wi.ID] = instr
			if wi.ID > maxID {
				maxID = wi.ID
			}
		}
	}
	f.nextID = maxID

	for bi, wb := range wf.Blocks {
		for ii, wi := range wb.Instrs {
			instr := blocks[bi].Instrs[ii]

			if wi.CalleeName != "" {
				callee, ok := funcByName[wi.CalleeName]
				if !ok {
					return fmt.Errorf("irmod: decode: %s: instr %d calls unknown function %q", f.Name, wi.ID, wi.CalleeName)
				}
				instr.Callee = callee
			}

			for _, op := range wi.Operands {
				v, err := fromWireValue(op, instrByID, globalByName)
				if err != nil {
					return fmt.Errorf("irmod: decode: %s: instr %d: %w", f.Name, wi.ID, err)
				}
				instr.Operands = append(instr.Operands, v)
			}

			if wi.Mask != nil {
				v, err := fromWireValue(*wi.Mask, instrByID, globalByName)
				if err != nil {
					return fmt.Errorf("irmod: decode: %s: instr %d mask: %w", f.Name, wi.ID, err)
				}
				instr.Mask = &v
			}

			memLen, err := fromWireValue(wi.MemLen, instrByID, globalByName)
			if err != nil {
				return fmt.Errorf("irmod: decode: %s: instr %d memlen: %w", f.Name, wi.ID, err)
			}
			instr.MemLen = memLen

			for _, ti := range wi.TargetIndices {
				if ti < 0 || ti >= len(blocks) {
					return fmt.Errorf("irmod: decode: %s: instr %d: target index %d out of range", f.Name, wi.ID, ti)
				}
				instr.Targets = append(instr.Targets, blocks[ti])
			}
		}
	}
	return nil
}

func fromWireValue(wv wireValue, instrByID map[int]*Instr, globalByName map[string]*Global) (Value, error) {
	v := Value{Kind: wv.Kind, Type: wv.Type, Const: wv.Const, Param: wv.Param}
	if wv.InstrID != 0 {
		instr, ok := instrByID[wv.InstrID]
		if !ok {
			return Value{}, fmt.Errorf("reference to unknown instruction id %d", wv.InstrID)
		}
		v.Instr = instr
	}
	if wv.GlobalName != "" {
		g, ok := globalByName[wv.GlobalName]
		if !ok {
			return Value{}, fmt.Errorf("reference to unknown global %q", wv.GlobalName)
		}
		v.Global = g
	}
	return v, nil
}
