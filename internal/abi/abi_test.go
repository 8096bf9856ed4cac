package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-gen/ig/internal/irmod"
)

func TestNewTablePrefixesMatchMode(t *testing.T) {
	cases := []struct {
		mode   Mode
		prefix Prefix
	}{
		{ModeRecord, RecordPrefix},
		{ModeGenerate, GeneratePrefix},
		{ModeRun, RunPrefix},
	}
	for _, c := range cases {
		table := NewTable(c.mode)
		assert.Equal(t, c.prefix, table.Prefix)
		require.NoError(t, table.Validate())
	}
}

func TestEntryForDefaultAndNamed(t *testing.T) {
	table := NewTable(ModeGenerate)
	assert.Equal(t, string(GeneratePrefix)+"entry", table.EntryFor(""))
	assert.Equal(t, string(GeneratePrefix)+"entry_memcpy_harness", table.EntryFor("memcpy_harness"))
}

func TestValidateCatchesWrongPrefix(t *testing.T) {
	table := NewTable(ModeRun)
	table.Fixed.MemMove = "__record_memmove"
	assert.Error(t, table.Validate())
}

func TestModeStringAndPrefix(t *testing.T) {
	assert.Equal(t, "record", ModeRecord.String())
	assert.Equal(t, "generate", ModeGenerate.String())
	assert.Equal(t, "run", ModeRun.String())
	assert.Equal(t, RecordPrefix, ModeRecord.Prefix())
}

func TestResolveFixedCallback(t *testing.T) {
	table := NewTable(ModeGenerate)
	_, role, ok := table.Resolve(table.Fixed.MemCopy)
	require.True(t, ok)
	assert.Equal(t, RoleFixedMemCopy, role)
}

func TestResolvePerTypeCallback(t *testing.T) {
	table := NewTable(ModeRun)
	cb := table.Types[irmod.I32]
	prim, role, ok := table.Resolve(cb.Access)
	require.True(t, ok)
	assert.Equal(t, RoleAccess, role)
	assert.Equal(t, irmod.I32, prim)
}

func TestResolveNamedEntrySuffixStillResolvesAsEntry(t *testing.T) {
	table := NewTable(ModeGenerate)
	_, role, ok := table.Resolve(table.EntryFor("my_target"))
	require.True(t, ok)
	assert.Equal(t, RoleFixedEntry, role)
}

func TestResolveUnknownNameFails(t *testing.T) {
	table := NewTable(ModeGenerate)
	_, _, ok := table.Resolve("not_a_callback")
	assert.False(t, ok)
}
