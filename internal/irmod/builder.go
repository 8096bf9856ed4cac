package irmod

// Builder appends instructions to a single Block, assigning each a
// function-scoped ID. internal/lower, internal/entrypoint and
// internal/stub all build new instruction sequences this way rather than
// constructing Instr literals by hand, so every pass gets IDs and result
// types consistently.
type Builder struct {
	F *Func
	B *Block
}

// NewBuilder positions a Builder at the end of b (which must belong to f).
func NewBuilder(f *Func, b *Block) *Builder {
	return &Builder{F: f, B: b}
}

func (bd *Builder) append(i *Instr) *Instr {
	i.ID = bd.F.NextID()
	bd.B.Instrs = append(bd.B.Instrs, i)
	return i
}

// Call emits a call to callee (or, if callee is nil, to externName) with
// the given arguments and result type (nil for void).
func (bd *Builder) Call(callee *Func, externName string, retType *Type, args ...Value) *Instr {
	return bd.append(&Instr{Op: OpCall, Type: retType, Operands: args, Callee: callee, ExternName: externName})
}

// Load emits a plain load of accessType from addr.
func (bd *Builder) Load(addr Value, accessType *Type) *Instr {
	return bd.append(&Instr{Op: OpLoad, Type: accessType, AccessType: accessType, Operands: []Value{addr}})
}

// Store emits a plain store of val to addr.
func (bd *Builder) Store(addr, val Value) *Instr {
	return bd.append(&Instr{Op: OpStore, AccessType: val.Type, Operands: []Value{addr, val}})
}

// GEP emits the address of field/element index within parentType,
// relative to base.
func (bd *Builder) GEP(base Value, parentType *Type, index int64, resultType *Type) *Instr {
	return bd.append(&Instr{Op: OpGEP, Type: PtrTo(resultType), Operands: []Value{base}, GEPParentType: parentType, GEPIndex: index})
}

// ExtractValue emits an extraction of field/element fieldIndex out of agg.
func (bd *Builder) ExtractValue(agg Value, fieldIndex int, resultType *Type) *Instr {
	return bd.append(&Instr{Op: OpExtractValue, Type: resultType, Operands: []Value{agg}, FieldIndex: fieldIndex})
}

// InsertValue emits agg with field/element fieldIndex replaced by val.
func (bd *Builder) InsertValue(agg Value, fieldIndex int, val Value) *Instr {
	return bd.append(&Instr{Op: OpInsertValue, Type: agg.Type, Operands: []Value{agg, val}, FieldIndex: fieldIndex})
}

// Alloca emits a stack allocation of t, returning its address.
func (bd *Builder) Alloca(t *Type) *Instr {
	return bd.append(&Instr{Op: OpAlloca, Type: PtrTo(t), AllocaType: t})
}

// Bitcast reinterprets v's bits as resultType.
func (bd *Builder) Bitcast(v Value, resultType *Type) *Instr {
	return bd.append(&Instr{Op: OpBitcast, Type: resultType, Operands: []Value{v}})
}

// ZExt zero-extends v to resultType.
func (bd *Builder) ZExt(v Value, resultType *Type) *Instr {
	return bd.append(&Instr{Op: OpZExt, Type: resultType, Operands: []Value{v}})
}

// Trunc truncates v down to resultType.
func (bd *Builder) Trunc(v Value, resultType *Type) *Instr {
	return bd.append(&Instr{Op: OpTrunc, Type: resultType, Operands: []Value{v}})
}

// ExtractElement reads one lane out of a vector value.
func (bd *Builder) ExtractElement(vec Value, lane int, resultType *Type) *Instr {
	return bd.append(&Instr{Op: OpExtractElement, Type: resultType, Operands: []Value{vec}, FieldIndex: lane})
}

// Ret emits a return, with vals as the (possibly empty) return values.
func (bd *Builder) Ret(vals ...Value) *Instr {
	return bd.append(&Instr{Op: OpRet, Operands: vals})
}

// Br emits an unconditional branch to target.
func (bd *Builder) Br(target *Block) *Instr {
	return bd.append(&Instr{Op: OpBr, Targets: []*Block{target}})
}

// CondBr emits a conditional branch.
func (bd *Builder) CondBr(cond Value, ifTrue, ifFalse *Block) *Instr {
	return bd.append(&Instr{Op: OpCondBr, Operands: []Value{cond}, Targets: []*Block{ifTrue, ifFalse}})
}

// InsertBefore splices newInstrs into b immediately before the instruction
// at index idx, shifting later instructions down. Access lowering uses this
// to replace a single interesting instruction with its lowered form while
// preserving every other instruction's relative position.
func InsertBefore(b *Block, idx int, newInstrs ...*Instr) {
	b.Instrs = append(b.Instrs[:idx:idx], append(newInstrs, b.Instrs[idx:]...)...)
}

// Replace swaps the instruction at index idx for newInstrs.
func Replace(b *Block, idx int, newInstrs ...*Instr) {
	tail := append([]*Instr{}, b.Instrs[idx+1:]...)
	b.Instrs = append(b.Instrs[:idx], append(newInstrs, tail...)...)
}
