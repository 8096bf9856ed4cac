// Package config holds the instrumentation-option struct spec.md §6
// defines, plus the one environment-variable override (INPUT_GEN_SEED)
// the default driver honors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/irmod"
)

// InstrumentOptions are the compile-time flags cmd/instrument exposes on
// the transform (spec.md §6 "Instrumentation options").
type InstrumentOptions struct {
	Mode abi.Mode

	// EntrySelector names the target function: either its symbol name, or
	// (if ByIndex is true) a zero-based index into the module's function
	// list.
	EntrySelector string
	ByIndex       bool

	// Prune toggles internal/prune's dead-function elimination. Default
	// on, per spec.md §6.
	Prune bool

	// VersionCheck toggles emitting the version_mismatch_check_v<N> call
	// at the top of the synthesized entry point. Default on.
	VersionCheck bool

	// OutputTemplate names the artifact file, honoring the two
	// expansions spec.md §6 defines: %{fn} (target function name) and
	// %{uuid} (a fresh random UUID per build).
	OutputTemplate string
}

// DefaultInstrumentOptions matches spec.md §6's stated defaults.
func DefaultInstrumentOptions() InstrumentOptions {
	return InstrumentOptions{
		Mode:           abi.ModeGenerate,
		Prune:          true,
		VersionCheck:   true,
		OutputTemplate: "%{fn}.out",
	}
}

// ResolveTarget finds the function InstrumentOptions.EntrySelector names.
func (o InstrumentOptions) ResolveTarget(mod *irmod.Module) (*irmod.Func, error) {
	if o.ByIndex {
		idx, err := strconv.Atoi(o.EntrySelector)
		if err != nil {
			return nil, fmt.Errorf("config: entry selector %q is not a valid index: %w", o.EntrySelector, err)
		}
		if idx < 0 || idx >= len(mod.Funcs) {
			return nil, fmt.Errorf("config: entry index %d out of range (%d functions)", idx, len(mod.Funcs))
		}
		return mod.Funcs[idx], nil
	}
	f := mod.FuncByName(o.EntrySelector)
	if f == nil {
		return nil, fmt.Errorf("config: no function named %q", o.EntrySelector)
	}
	return f, nil
}

// ExpandOutputTemplate applies the %{fn}/%{uuid} expansions.
func (o InstrumentOptions) ExpandOutputTemplate(target *irmod.Func) string {
	out := o.OutputTemplate
	out = strings.ReplaceAll(out, "%{fn}", target.Name)
	if strings.Contains(out, "%{uuid}") {
		out = strings.ReplaceAll(out, "%{uuid}", uuid.NewString())
	}
	return out
}

// SeedEnvVar is the override spec.md §6 names.
const SeedEnvVar = "INPUT_GEN_SEED"

// ResolveSeed returns the INPUT_GEN_SEED override if set, otherwise
// fallback.
func ResolveSeed(fallback int64) int64 {
	v := os.Getenv(SeedEnvVar)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
