package irmod

// Block is a straight-line sequence of instructions ending in a terminator
// (or, mid-construction, not yet terminated). Access lowering splits blocks
// when it lowers masked vector operations (spec.md §4.2).
type Block struct {
	Label  string
	Instrs []*Instr
}

// Terminator returns the block's terminating instruction, or nil if the
// block is not yet terminated.
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// Param describes one function parameter.
type Param struct {
	Name string
	Type *Type
}

// Func is a function in the module: either a definition (len(Blocks) > 0)
// or a declaration (no blocks), the latter being what internal/stub must
// give a weak body to before the module can be executed standalone.
type Func struct {
	Name     string
	Params   []Param
	RetType  *Type // nil for void
	Blocks   []*Block
	Linkage  Linkage

	nextID int
}

// Linkage distinguishes ordinary definitions from externally-linked
// declarations and from the weak bodies internal/stub synthesizes for them.
type Linkage int

const (
	LinkageNormal Linkage = iota
	LinkageExternalDecl
	LinkageWeak
)

// IsDeclaration reports whether f has no body (spec.md §4.4's stubbing
// target).
func (f *Func) IsDeclaration() bool {
	return len(f.Blocks) == 0
}

// NewBlock appends and returns a fresh block.
func (f *Func) NewBlock(label string) *Block {
	b := &Block{Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NextID returns a fresh, function-scoped instruction ID counter value.
func (f *Func) NextID() int {
	f.nextID++
	return f.nextID
}

// EntryBlock returns the function's first block, or nil if it has none.
func (f *Func) EntryBlock() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// AllInstrs iterates every instruction in the function, in block order.
func (f *Func) AllInstrs(yield func(b *Block, i *Instr)) {
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			yield(b, instr)
		}
	}
}

// Global is a module-level variable. The classifier never redirects an
// access to a global through the runtime, whatever its Section or name
// (spec.md §4.1's exclusions).
type Global struct {
	Name       string
	Type       *Type
	IsConstant bool
	IsExternal bool
	Section    string
	Companion  *Global // set by internal/stub once rewritten (spec.md §4.4)
}

// Module is the whole instrumentable unit: functions plus globals. One
// Module corresponds to one "compiled program" or "extracted target
// function plus its callees" in spec.md's terms.
type Module struct {
	Funcs   []*Func
	Globals []*Global
	Target  *Func // the function the whole exercise is about (spec.md §1)
}

// FuncByName looks up a function by exact name, or returns nil.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddFunc appends f to the module and returns it, for chaining.
func (m *Module) AddFunc(f *Func) *Func {
	m.Funcs = append(m.Funcs, f)
	return f
}

// RemoveFuncs deletes every function whose name is in dead, preserving the
// relative order of survivors. Used by internal/prune.
func (m *Module) RemoveFuncs(dead map[string]bool) {
	kept := m.Funcs[:0]
	for _, f := range m.Funcs {
		if !dead[f.Name] {
			kept = append(kept, f)
		}
	}
	m.Funcs = kept
}
