package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-gen/ig/internal/irmod"
)

func twoFuncModule() *irmod.Module {
	a := &irmod.Func{Name: "alpha"}
	b := &irmod.Func{Name: "beta"}
	return &irmod.Module{Funcs: []*irmod.Func{a, b}}
}

func TestResolveTargetByName(t *testing.T) {
	mod := twoFuncModule()
	opts := DefaultInstrumentOptions()
	opts.EntrySelector = "beta"

	f, err := opts.ResolveTarget(mod)
	require.NoError(t, err)
	assert.Equal(t, "beta", f.Name)
}

func TestResolveTargetByNameMissing(t *testing.T) {
	mod := twoFuncModule()
	opts := DefaultInstrumentOptions()
	opts.EntrySelector = "gamma"

	_, err := opts.ResolveTarget(mod)
	assert.Error(t, err)
}

func TestResolveTargetByIndex(t *testing.T) {
	mod := twoFuncModule()
	opts := DefaultInstrumentOptions()
	opts.ByIndex = true
	opts.EntrySelector = "1"

	f, err := opts.ResolveTarget(mod)
	require.NoError(t, err)
	assert.Equal(t, "beta", f.Name)
}

func TestResolveTargetByIndexOutOfRange(t *testing.T) {
	mod := twoFuncModule()
	opts := DefaultInstrumentOptions()
	opts.ByIndex = true
	opts.EntrySelector = "5"

	_, err := opts.ResolveTarget(mod)
	assert.Error(t, err)
}

func TestResolveTargetByIndexNotANumber(t *testing.T) {
	mod := twoFuncModule()
	opts := DefaultInstrumentOptions()
	opts.ByIndex = true
	opts.EntrySelector = "beta"

	_, err := opts.ResolveTarget(mod)
	assert.Error(t, err)
}

func TestExpandOutputTemplateFn(t *testing.T) {
	opts := DefaultInstrumentOptions()
	opts.OutputTemplate = "%{fn}.generate.c"
	target := &irmod.Func{Name: "memcpy_harness"}

	assert.Equal(t, "memcpy_harness.generate.c", opts.ExpandOutputTemplate(target))
}

func TestExpandOutputTemplateUUIDIsUnique(t *testing.T) {
	opts := DefaultInstrumentOptions()
	opts.OutputTemplate = "%{fn}-%{uuid}.c"
	target := &irmod.Func{Name: "f"}

	a := opts.ExpandOutputTemplate(target)
	b := opts.ExpandOutputTemplate(target)
	assert.NotEqual(t, a, b)
}

func TestResolveSeedUsesFallbackWhenUnset(t *testing.T) {
	os.Unsetenv(SeedEnvVar)
	assert.Equal(t, int64(42), ResolveSeed(42))
}

func TestResolveSeedHonorsEnvOverride(t *testing.T) {
	os.Setenv(SeedEnvVar, "7")
	defer os.Unsetenv(SeedEnvVar)
	assert.Equal(t, int64(7), ResolveSeed(42))
}

func TestResolveSeedFallsBackOnGarbage(t *testing.T) {
	os.Setenv(SeedEnvVar, "not-a-number")
	defer os.Unsetenv(SeedEnvVar)
	assert.Equal(t, int64(42), ResolveSeed(42))
}
