// Package driver is the seed-range fan-out shell spec.md §5/§6 describe
// for cmd/generator (and, in single-seed form, cmd/recorder): one
// goroutine per seed, each with its own heap and runtime state, writing
// {executable-filename}.{"code"|"report"}.{seed}.c artifacts or
// discarding them when the output directory is "-".
//
// Grounded on std/compiler/main.go's os.Args-driven CLI loop, generalized
// from "compile one program" to "fan out N independent seed workers" —
// sync.WaitGroup fan-out is ordinary Go idiom rather than anything the
// single-threaded teacher shows, since spec.md §5 requires concurrency the
// teacher never needed.
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/entrypoint"
	"github.com/input-gen/ig/internal/interp"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/internal/rtstate"
	"github.com/input-gen/ig/internal/serialize"
)

// DiscardSentinel is the output directory value meaning "run every seed
// but write nothing" (spec.md §6), used by timing/coverage harnesses that
// only care about side effects of running, not the artifacts.
const DiscardSentinel = "-"

// SeedResult is one seed's outcome, collected so callers can report a
// summary without every worker racing to write to the same log.
type SeedResult struct {
	Seed int64
	Err  error
}

// GenerateRange runs one Generate-mode worker per seed in [start, end),
// each building its own entry call, heap and args blob, and writing
// exeName.code.<seed>.c into outputDir (or discarding, if outputDir is
// DiscardSentinel). Workers share only mod, target and table, all of
// which are read-only after internal/lower, internal/stub and
// internal/prune have run — satisfying spec.md §5's "no shared state
// between seeds, not even the allocator."
func GenerateRange(mod *irmod.Module, target *irmod.Func, table *abi.Table, start, end int64, versionCheck bool, outputDir, exeName string, log *logrus.Logger) []SeedResult {
	if end <= start {
		return nil
	}
	// Resolved once, before any goroutine starts: entrypoint.Resolve may
	// call mod.AddFunc, which isn't safe to call from multiple goroutines,
	// and calling it per-seed against an already-instrumented module would
	// add a second, duplicate entry function.
	ef, err := entrypoint.Resolve(mod, target, table, versionCheck, entrypoint.BuildGenerate)
	if err != nil {
		return []SeedResult{{Seed: start, Err: fmt.Errorf("driver: resolving entry: %w", err)}}
	}

	results := make([]SeedResult, end-start)
	var wg sync.WaitGroup
	for seed := start; seed < end; seed++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			err := generateOne(mod, target, ef, table, seed, outputDir, exeName)
			results[seed-start] = SeedResult{Seed: seed, Err: err}
			entry := log.WithField("seed", seed)
			if err != nil {
				entry.WithError(err).Error("generate: seed failed")
			} else {
				entry.Debug("generate: seed complete")
			}
		}(seed)
	}
	wg.Wait()
	return results
}

func generateOne(mod *irmod.Module, target *irmod.Func, ef *irmod.Func, table *abi.Table, seed int64, outputDir, exeName string) error {
	state := rtstate.NewGenerateState(table, seed)
	in := interp.New(mod, state)

	var outBytes []byte
	if target.RetType != nil {
		outObj := state.Heap.AllocObject(target.RetType.ByteSize(), true)
		outBytes = encodeAddr(outObj.Base)
	} else {
		outBytes = encodeAddr(0)
	}

	seedArg := make([]byte, 4)
	seedArg[0], seedArg[1], seedArg[2], seedArg[3] = byte(seed), byte(seed>>8), byte(seed>>16), byte(seed>>24)

	if _, err := in.Run(ef, [][]byte{seedArg, outBytes}); err != nil {
		return fmt.Errorf("driver: running entry for seed %d: %w", seed, err)
	}

	args, argPointers := packArgs(target, state.Args())
	file, err := serialize.BuildFile(state.Heap, args, argPointers)
	if err != nil {
		return fmt.Errorf("driver: building artifact for seed %d: %w", seed, err)
	}

	return writeArtifact(outputDir, exeName, "code", seed, file)
}

// packArgs lays out one 8-byte little-endian word per target parameter
// (matching internal/entrypoint.BuildRun's packed-buffer layout) and
// marks which offsets hold a fabricated pointer so internal/serialize can
// emit a RelocArg entry for it.
func packArgs(target *irmod.Func, words []uint64) ([]byte, []serialize.ArgPointer) {
	args := make([]byte, 8*len(target.Params))
	var ptrs []serialize.ArgPointer
	for i, p := range target.Params {
		off := uint64(8 * i)
		w := uint64(0)
		if i < len(words) {
			w = words[i]
		}
		copy(args[off:off+8], encodeAddr(w))
		if p.Type.Tag == irmod.TagPrimitive && p.Type.Prim == irmod.Ptr {
			ptrs = append(ptrs, serialize.ArgPointer{Offset: off, Target: w})
		}
	}
	return args, ptrs
}

func encodeAddr(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// writeArtifact serializes file and writes it to
// outputDir/exeName.<kind>.<seed>.c, or discards it entirely when
// outputDir is DiscardSentinel.
func writeArtifact(outputDir, exeName, kind string, seed int64, file *serialize.File) error {
	if outputDir == DiscardSentinel {
		return nil
	}
	name := fmt.Sprintf("%s.%s.%d.c", exeName, kind, seed)
	path := filepath.Join(outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("driver: opening %s: %w", path, err)
	}
	defer f.Close()
	return serialize.Write(f, file)
}

// RecordRange runs one Record-mode worker per seed in [start, end),
// tapping the target's real arguments (here, the interpreter's own
// evaluation of them — this tool has no separate traced process to
// observe) and writing both exeName.code.<seed>.c (replayable by Run
// mode) and exeName.report.<seed>.c (a human-readable summary; spec.md
// §6: "Record-mode auxiliary report is human-readable text; its format
// is not part of the contract").
func RecordRange(mod *irmod.Module, target *irmod.Func, table *abi.Table, start, end int64, versionCheck bool, callArgs [][]byte, outputDir, exeName string, log *logrus.Logger) []SeedResult {
	if end <= start {
		return nil
	}
	ef, err := entrypoint.Resolve(mod, target, table, versionCheck, entrypoint.BuildRecord)
	if err != nil {
		return []SeedResult{{Seed: start, Err: fmt.Errorf("driver: resolving entry: %w", err)}}
	}

	results := make([]SeedResult, end-start)
	var wg sync.WaitGroup
	for seed := start; seed < end; seed++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			err := recordOne(mod, target, ef, table, seed, callArgs, outputDir, exeName)
			results[seed-start] = SeedResult{Seed: seed, Err: err}
			entry := log.WithField("seed", seed)
			if err != nil {
				entry.WithError(err).Error("record: seed failed")
			} else {
				entry.Debug("record: seed complete")
			}
		}(seed)
	}
	wg.Wait()
	return results
}

func recordOne(mod *irmod.Module, target *irmod.Func, ef *irmod.Func, table *abi.Table, seed int64, callArgs [][]byte, outputDir, exeName string) error {
	state := rtstate.NewRecordState(table, seed)
	in := interp.New(mod, state)

	ret, err := in.Run(ef, callArgs)
	if err != nil {
		return fmt.Errorf("driver: recording seed %d: %w", seed, err)
	}

	args, argPointers := packArgs(target, state.Args())
	file, err := serialize.BuildFile(state.Heap, args, argPointers)
	if err != nil {
		return fmt.Errorf("driver: building artifact for seed %d: %w", seed, err)
	}
	if err := writeArtifact(outputDir, exeName, "code", seed, file); err != nil {
		return err
	}
	return writeReport(outputDir, exeName, seed, target, state, ret)
}

// writeReport writes the human-readable auxiliary report Record mode
// produces alongside its replayable artifact. Its exact wording is not
// contractual (spec.md §6), so it stays a plain summary rather than a
// structured format other tools would need to parse.
func writeReport(outputDir, exeName string, seed int64, target *irmod.Func, state *rtstate.State, ret []byte) error {
	if outputDir == DiscardSentinel {
		return nil
	}
	name := fmt.Sprintf("%s.report.%d.c", exeName, seed)
	path := filepath.Join(outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("driver: opening %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "target: %s\n", target.Name)
	fmt.Fprintf(f, "seed: %d\n", seed)
	fmt.Fprintf(f, "args:\n")
	for i, w := range state.Args() {
		fmt.Fprintf(f, "  %d: 0x%x\n", i, w)
	}
	if len(ret) > 0 {
		fmt.Fprintf(f, "return: 0x%x\n", encodeHex(ret))
	}
	return nil
}

func encodeHex(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// RunOne replays one previously generated or recorded artifact against
// the Run-mode entry point and returns the decoded return value bytes,
// if any.
func RunOne(mod *irmod.Module, target *irmod.Func, table *abi.Table, file *serialize.File, versionCheck bool) ([]byte, error) {
	ef, err := entrypoint.Resolve(mod, target, table, versionCheck, entrypoint.BuildRun)
	if err != nil {
		return nil, fmt.Errorf("driver: resolving entry: %w", err)
	}

	state, err := rtstate.NewFromArtifact(table, file)
	if err != nil {
		return nil, fmt.Errorf("driver: loading artifact: %w", err)
	}
	in := interp.New(mod, state)

	bufArg := encodeAddr(state.ArgsBase)
	return in.Run(ef, [][]byte{bufArg})
}
