package irmod

// Opcode enumerates the instruction shapes this IR carries. It is a small
// subset of LLVM's instruction set — just enough to exercise every rule in
// spec.md §4.1/§4.2: plain loads/stores, atomics, masked vector
// loads/stores, memory intrinsics, GEP/extractvalue/insertvalue for
// aggregate decomposition, calls, branches, and the handful of terminators
// a function body needs.
type Opcode int

const (
	OpAlloca Opcode = iota
	OpLoad
	OpStore
	OpAtomicRMW
	OpAtomicCAS
	OpMaskedLoad
	OpMaskedStore
	OpMemCopy
	OpMemMove
	OpMemSet
	OpGEP          // constant-offset getelementptr
	OpExtractValue // read one field/element out of an aggregate SSA value
	OpInsertValue  // write one field/element into an aggregate SSA value
	OpExtractElement
	OpInsertElement
	OpBitcast
	OpAddrSpaceCast
	OpIntToPtr
	OpPtrToInt
	OpZExt
	OpSExt
	OpTrunc
	OpCall
	OpBr
	OpCondBr
	OpRet
	OpUnreachable
)

// AtomicOp distinguishes the kind of atomic read-modify-write.
type AtomicOp int

const (
	AtomicXchg AtomicOp = iota
	AtomicAdd
	AtomicCAS
)

// Instr is one instruction in a Block. Only the fields relevant to its Op
// are meaningful; the rest are zero. This mirrors the teacher's flat
// Inst{Op, Arg, Width, Val, Name} shape (std/compiler/ir.go) but widened
// with named fields because this IR's instructions are typed and carry
// explicit operand lists rather than an implicit operand stack.
type Instr struct {
	ID       int
	Op       Opcode
	Type     *Type // result type (zero Type for void ops: store/br/ret/...)
	Operands []Value

	// OpAlloca
	AllocaType *Type

	// OpLoad/OpStore/OpAtomicRMW/OpAtomicCAS/OpMaskedLoad/OpMaskedStore/
	// OpMemCopy/OpMemMove/OpMemSet: address is Operands[0] unless noted
	// below per-op.
	AccessType  *Type // the type being loaded/stored (element type for masked ops)
	AtomicKind  AtomicOp
	Mask        *Value // OpMaskedLoad: Operands[1]; OpMaskedStore: Operands[2]
	MemLen      Value  // OpMemCopy/OpMemMove/OpMemSet length operand

	// OpGEP: address of field/element GEPIndex within GEPParentType,
	// relative to the base address in Operands[0]. Each level of aggregate
	// decomposition issues its own single-index GEP against the
	// immediately containing type, rather than one instruction carrying a
	// multi-level index path, so the interpreter always has the one
	// aggregate type it needs to compute a byte offset.
	GEPParentType *Type
	GEPIndex      int64

	// OpExtractValue/OpInsertValue/OpExtractElement/OpInsertElement
	FieldIndex int // struct field or array/vector element index

	// OpCall
	Callee     *Func
	ExternName string // set when calling a not-yet-resolved/external function by name

	// OpBr/OpCondBr
	Targets []*Block // [0]=unconditional target, or [0]=true,[1]=false for CondBr

	// OpUnreachable has no payload; classify always treats it as "not
	// interesting" per spec.md §9 Open Questions.

	// SwiftError marks an address operand as a swifterror value; the
	// classifier rejects any access through one (spec.md §4.1).
	SwiftError bool
}

// Result returns a Value referencing this instruction's own output. Valid
// for any Instr whose Type is non-nil.
func (i *Instr) Result() Value { return InstrRef(i) }

// IsTerminator reports whether this instruction ends its Block.
func (i *Instr) IsTerminator() bool {
	switch i.Op {
	case OpBr, OpCondBr, OpRet, OpUnreachable:
		return true
	default:
		return false
	}
}
