package abi

import "strings"

// Role distinguishes which of the three per-type roles, or which fixed
// callback, a callback symbol plays. internal/interp uses Resolve to
// decide whether an OpCall target is ordinary code or one of this table's
// callbacks, and internal/rtstate uses the resolved Role/PrimType pair to
// pick the right handler without re-deriving the naming convention itself.
type Role int

const (
	RoleNone Role = iota
	RoleAccess
	RoleGet
	RoleArg
	RoleFixedMemMove
	RoleFixedMemCopy
	RoleFixedMemSet
	RoleFixedTranslatePtr
	RoleFixedPush
	RoleFixedPop
	RoleFixedInit
	RoleFixedDeinit
	RoleFixedGlobal
	RoleFixedVersionCheck
	RoleFixedEntry
)

// fixedIndex pairs each FixedCallbacks name with its Role. The map is
// built afresh on every call; Resolve calls it once per lookup.
func (t *Table) fixedIndex() map[string]Role {
	return map[string]Role{
		t.Fixed.MemMove:              RoleFixedMemMove,
		t.Fixed.MemCopy:              RoleFixedMemCopy,
		t.Fixed.MemSet:               RoleFixedMemSet,
		t.Fixed.TranslatePtr:         RoleFixedTranslatePtr,
		t.Fixed.Push:                 RoleFixedPush,
		t.Fixed.Pop:                  RoleFixedPop,
		t.Fixed.Init:                 RoleFixedInit,
		t.Fixed.Deinit:               RoleFixedDeinit,
		t.Fixed.Global:               RoleFixedGlobal,
		t.Fixed.VersionMismatchCheck: RoleFixedVersionCheck,
		t.Fixed.Entry:                RoleFixedEntry,
	}
}

// Resolve reports whether name is one of this table's callback symbols,
// and if so, which role it plays (and, for the three per-type roles, which
// primitive type). Entry symbols that carry a per-function suffix
// (entry_<funcname>, spec.md §6) still resolve as RoleFixedEntry.
func (t *Table) Resolve(name string) (PrimType, Role, bool) {
	if role, ok := t.fixedIndex()[name]; ok {
		return 0, role, true
	}
	if strings.HasPrefix(name, t.Fixed.Entry+"_") {
		return 0, RoleFixedEntry, true
	}
	for k, cb := range t.Types {
		switch name {
		case cb.Access:
			return k, RoleAccess, true
		case cb.Get:
			return k, RoleGet, true
		case cb.Arg:
			return k, RoleArg, true
		}
	}
	return 0, RoleNone, false
}
