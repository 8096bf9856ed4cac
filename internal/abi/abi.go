// Package abi is the single source of truth for the callback naming and
// signature convention both halves of this tool — the instrumentation
// passes in internal/lower, internal/entrypoint and internal/stub, and the
// runtime in internal/rtstate — agree on. Neither half is useful without
// the other; this package is the contract between them (spec.md §1).
package abi

import (
	"fmt"

	"github.com/input-gen/ig/internal/irmod"
)

// Prefix is one of the three mode prefixes every callback symbol in a
// compiled artifact begins with. Exactly one prefix is used within any one
// artifact (spec.md §3 Callback table invariant).
type Prefix string

const (
	RecordPrefix   Prefix = "__record_"
	GeneratePrefix Prefix = "__inputgen_"
	RunPrefix      Prefix = "__inputrun_"
)

// Mode names the three cooperating modes spec.md §1 describes.
type Mode int

const (
	ModeRecord Mode = iota
	ModeGenerate
	ModeRun
)

func (m Mode) Prefix() Prefix {
	switch m {
	case ModeRecord:
		return RecordPrefix
	case ModeGenerate:
		return GeneratePrefix
	case ModeRun:
		return RunPrefix
	default:
		panic(fmt.Sprintf("abi: unknown mode %d", int(m)))
	}
}

func (m Mode) String() string {
	switch m {
	case ModeRecord:
		return "record"
	case ModeGenerate:
		return "generate"
	case ModeRun:
		return "run"
	default:
		return "unknown"
	}
}

// PrimType is an alias of irmod.PrimKind: the ABI dispatches on the exact
// same ten-way primitive type enumeration the IR carries, by design (spec.md
// §9 Design Notes: "a fixed enumeration of ten primitive types drives all
// three tables").
type PrimType = irmod.PrimKind

// Callbacks names the three per-type callees spec.md §3 requires.
type Callbacks struct {
	Access string // access_<T>
	Get    string // get_<T>
	Arg    string // arg_<T>
}

// FixedCallbacks names every callee that is not parameterized by type.
type FixedCallbacks struct {
	MemMove             string
	MemCopy             string
	MemSet              string
	TranslatePtr        string
	Push                string
	Pop                 string
	Init                string
	Deinit              string
	Global              string
	VersionMismatchCheck string
	Entry               string // entry, or entry_<funcname> per spec.md §6
}

// Table is the full callback table for one mode: one Callbacks entry per
// primitive type plus the fixed callbacks, all sharing Prefix.
type Table struct {
	Prefix Prefix
	Mode   Mode
	Types  map[PrimType]Callbacks
	Fixed  FixedCallbacks
}

// Version is the ABI generation number embedded in
// version_mismatch_check_v<N> (spec.md §4.3, §7). Bump this if the callback
// signatures below ever change shape.
const Version = 1

// NewTable builds the callback table for mode, deriving every symbol name
// from Prefix + type/callback name so the naming convention lives in one
// place.
func NewTable(mode Mode) *Table {
	prefix := mode.Prefix()
	t := &Table{Prefix: prefix, Mode: mode, Types: make(map[PrimType]Callbacks)}
	for _, k := range irmod.AllPrimKinds() {
		t.Types[k] = Callbacks{
			Access: string(prefix) + "access_" + k.String(),
			Get:    string(prefix) + "get_" + k.String(),
			Arg:    string(prefix) + "arg_" + k.String(),
		}
	}
	t.Fixed = FixedCallbacks{
		MemMove:              string(prefix) + "memmove",
		MemCopy:              string(prefix) + "memcpy",
		MemSet:               string(prefix) + "memset",
		TranslatePtr:         string(prefix) + "translate_ptr",
		Push:                 string(prefix) + "push",
		Pop:                  string(prefix) + "pop",
		Init:                 string(prefix) + "init",
		Deinit:               string(prefix) + "deinit",
		Global:               string(prefix) + "global",
		VersionMismatchCheck: fmt.Sprintf("%sversion_mismatch_check_v%d", prefix, Version),
		Entry:                string(prefix) + "entry",
	}
	return t
}

// EntryFor returns the entry symbol for a named target function, honoring
// the optional `entry[_<funcname>]` expansion spec.md §6 allows.
func (t *Table) EntryFor(funcName string) string {
	if funcName == "" {
		return t.Fixed.Entry
	}
	return t.Fixed.Entry + "_" + funcName
}

// Validate checks the three-prefix invariant: every symbol in the table,
// fixed or per-type, must begin with t.Prefix.
func (t *Table) Validate() error {
	check := func(name string) error {
		if len(name) < len(t.Prefix) || name[:len(t.Prefix)] != string(t.Prefix) {
			return fmt.Errorf("abi: symbol %q does not carry prefix %q", name, t.Prefix)
		}
		return nil
	}
	for k, cb := range t.Types {
		for _, name := range []string{cb.Access, cb.Get, cb.Arg} {
			if err := check(name); err != nil {
				return fmt.Errorf("type %s: %w", k, err)
			}
		}
	}
	fv := []string{
		t.Fixed.MemMove, t.Fixed.MemCopy, t.Fixed.MemSet, t.Fixed.TranslatePtr,
		t.Fixed.Push, t.Fixed.Pop, t.Fixed.Init, t.Fixed.Deinit, t.Fixed.Global,
		t.Fixed.VersionMismatchCheck, t.Fixed.Entry,
	}
	for _, name := range fv {
		if err := check(name); err != nil {
			return err
		}
	}
	return nil
}

// KindCode is the wire value passed as an access callback's kind-code
// operand (spec.md §6).
type KindCode int

const (
	KindRead KindCode = iota
	KindWrite
	KindReadWrite
)

// AccessCallback documents the conceptual signature of access_<T>,
// including the two trailing hint slots spec.md §9 calls "reserved
// placeholders": always passed as (nil, 0) by internal/lower, never read
// by internal/rtstate.
type AccessCallback struct {
	Addr       uint64
	ValueBits  uint64
	ByteSize   uint64
	ObjectBase uint64
	Kind       KindCode
	HintPtr    uint64
	HintCount  uint64
}
