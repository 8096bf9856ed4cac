// Package irmod is the in-memory IR this tool instruments and executes.
//
// It plays the role LLVM IR plays in the original input-gen tooling: a
// typed, explicit representation of a function's instructions that the
// classifier, lowering, entry-point synthesizer, stubber and pruner all
// rewrite in place, and that internal/interp later walks directly instead
// of compiling to a native target.
package irmod

import "fmt"

// PrimKind enumerates the ten primitive types the callback ABI dispatches
// on. This enumeration drives internal/abi's three callback tables; adding
// a new primitive type means extending it here and in lockstep everywhere
// abi.PrimType is switched over.
type PrimKind int

const (
	I1 PrimKind = iota
	I8
	I16
	I32
	I64
	I128
	Ptr
	Float
	Double
	FP80
	numPrimKinds
)

func (k PrimKind) String() string {
	switch k {
	case I1:
		return "i1"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case I128:
		return "i128"
	case Ptr:
		return "ptr"
	case Float:
		return "float"
	case Double:
		return "double"
	case FP80:
		return "x86_fp80"
	default:
		return fmt.Sprintf("prim(%d)", int(k))
	}
}

// AllPrimKinds returns the ten primitive kinds in ABI-table order.
func AllPrimKinds() []PrimKind {
	out := make([]PrimKind, 0, numPrimKinds)
	for k := PrimKind(0); k < numPrimKinds; k++ {
		out = append(out, k)
	}
	return out
}

// ByteSize returns the in-memory size of a primitive kind. Aggregate sizes
// are computed by Type.ByteSize instead.
func (k PrimKind) ByteSize() uint64 {
	switch k {
	case I1, I8:
		return 1
	case I16:
		return 2
	case I32, Float:
		return 4
	case I64, Double, Ptr:
		return 8
	case I128:
		return 16
	case FP80:
		return 10
	default:
		return 0
	}
}

// TypeTag distinguishes primitive types from the aggregate shapes that
// access lowering must decompose element-wise.
type TypeTag int

const (
	TagPrimitive TypeTag = iota
	TagStruct
	TagArray
	TagVector
)

// Type is either a primitive (leaf) type or an aggregate that lowering
// decomposes recursively until it reaches primitive leaves.
type Type struct {
	Tag      TypeTag
	Prim     PrimKind // valid when Tag == TagPrimitive
	AddrSpace int      // valid when Prim == Ptr; non-zero is classifier-rejected

	// TagStruct
	Fields []StructField

	// TagArray / TagVector
	Elem     *Type
	Count    int
	Scalable bool // TagVector only; scalable vectors are explicitly unsupported
}

// StructField names and types one field of a TagStruct type, in
// declaration order (the order access lowering's constant-GEP walk uses).
type StructField struct {
	Name string
	Type *Type
}

// Prim builds a leaf primitive type.
func Prim(k PrimKind) *Type { return &Type{Tag: TagPrimitive, Prim: k} }

// PtrTo builds a pointer-in-addrspace-0 leaf type. The classifier treats
// the pointee only loosely (this IR does not type-check loads against
// pointee types); it exists so callers can label what a pointer points at.
func PtrTo(elem *Type) *Type {
	return &Type{Tag: TagPrimitive, Prim: Ptr, Elem: elem}
}

// Struct builds an aggregate struct type from ordered fields.
func Struct(fields ...StructField) *Type {
	return &Type{Tag: TagStruct, Fields: fields}
}

// Array builds a fixed-length array type.
func Array(elem *Type, count int) *Type {
	return &Type{Tag: TagArray, Elem: elem, Count: count}
}

// Vector builds a fixed-length (or, if scalable is true, scalable) vector
// type. Scalable vectors are a non-goal (spec.md §1); internal/lower
// rejects them with lower.ErrUnsupportedIR rather than silently
// mishandling them.
func Vector(elem *Type, count int, scalable bool) *Type {
	return &Type{Tag: TagVector, Elem: elem, Count: count, Scalable: scalable}
}

// IsAggregate reports whether the type must be decomposed element-wise by
// access lowering rather than handled as a single leaf access.
func (t *Type) IsAggregate() bool {
	return t.Tag == TagStruct || t.Tag == TagArray || t.Tag == TagVector
}

// ByteSize computes the in-memory footprint. Struct fields are assumed
// packed in declaration order with each field naturally aligned to its own
// size, matching this IR's GEP offset computation in FieldOffset.
func (t *Type) ByteSize() uint64 {
	switch t.Tag {
	case TagPrimitive:
		return t.Prim.ByteSize()
	case TagArray, TagVector:
		return t.Elem.ByteSize() * uint64(t.Count)
	case TagStruct:
		var off uint64
		for _, f := range t.Fields {
			sz := f.Type.ByteSize()
			align := sz
			if align == 0 {
				align = 1
			}
			if rem := off % align; rem != 0 {
				off += align - rem
			}
			off += sz
		}
		return off
	}
	return 0
}

// FieldOffset returns the byte offset of field/element index within t
// (a struct, array or vector), using the same packed/naturally-aligned
// layout ByteSize assumes.
func (t *Type) FieldOffset(index int) uint64 {
	switch t.Tag {
	case TagArray, TagVector:
		return t.Elem.ByteSize() * uint64(index)
	case TagStruct:
		var off uint64
		for i := 0; i < index; i++ {
			sz := t.Fields[i].Type.ByteSize()
			align := sz
			if align == 0 {
				align = 1
			}
			if rem := off % align; rem != 0 {
				off += align - rem
			}
			off += sz
		}
		sz := t.Fields[index].Type.ByteSize()
		align := sz
		if align == 0 {
			align = 1
		}
		if rem := off % align; rem != 0 {
			off += align - rem
		}
		return off
	}
	return 0
}

// ElemAt returns the type of field/element index within an aggregate t.
func (t *Type) ElemAt(index int) *Type {
	switch t.Tag {
	case TagArray, TagVector:
		return t.Elem
	case TagStruct:
		return t.Fields[index].Type
	}
	return nil
}

// String renders a type the way this tool's diagnostics and the
// record-mode report print it.
func (t *Type) String() string {
	switch t.Tag {
	case TagPrimitive:
		return t.Prim.String()
	case TagArray:
		return fmt.Sprintf("[%d x %s]", t.Count, t.Elem)
	case TagVector:
		if t.Scalable {
			return fmt.Sprintf("<vscale x %d x %s>", t.Count, t.Elem)
		}
		return fmt.Sprintf("<%d x %s>", t.Count, t.Elem)
	case TagStruct:
		s := "{"
		for i, f := range t.Fields {
			if i > 0 {
				s += ", "
			}
			s += f.Type.String()
		}
		return s + "}"
	default:
		return "?"
	}
}
