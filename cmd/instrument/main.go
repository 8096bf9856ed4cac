// cmd/instrument is the (ambient) carrier for the compile-time
// instrumentation options spec.md §4/§6 describe: mode, entry selector,
// prune toggle, version-check toggle, output filename template. It runs
// the prune -> stub -> lower -> entrypoint pipeline over a module (prune
// and lower are skipped in run mode) and writes the instrumented result
// back out.
//
// Grounded on std/compiler/main.go's flag-handling shape (usage message,
// os.Exit(1) on misuse) but using cobra/pflag in place of its hand-rolled
// os.Args loop, matching the rest of the pack's CLI tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/config"
	"github.com/input-gen/ig/internal/entrypoint"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/internal/lower"
	"github.com/input-gen/ig/internal/prune"
	"github.com/input-gen/ig/internal/stub"
	"github.com/input-gen/ig/pkg/iglog"
)

func main() {
	log := iglog.New()
	opts := config.DefaultInstrumentOptions()
	var (
		modeFlag   string
		modulePath string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "instrument --module <file> --out <file>",
		Short: "Instrument a module for record, generate or run mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch modeFlag {
			case "record":
				opts.Mode = abi.ModeRecord
			case "generate":
				opts.Mode = abi.ModeGenerate
			case "run":
				opts.Mode = abi.ModeRun
			default:
				return fmt.Errorf("unknown --mode %q (want record|generate|run)", modeFlag)
			}
			return run(modulePath, outPath, opts, log)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&modeFlag, "mode", "generate", "instrumentation mode: record|generate|run")
	flags.StringVar(&opts.EntrySelector, "entry", "", "target function name or index")
	flags.BoolVar(&opts.ByIndex, "entry-by-index", false, "treat --entry as a zero-based function index")
	flags.BoolVar(&opts.Prune, "prune", opts.Prune, "delete functions unreachable from the target")
	flags.BoolVar(&opts.VersionCheck, "version-check", opts.VersionCheck, "emit the ABI version check at entry")
	flags.StringVar(&opts.OutputTemplate, "output-template", opts.OutputTemplate, "output module filename template (%{fn}, %{uuid})")
	flags.StringVar(&modulePath, "module", "", "input module file (gob-encoded irmod.Module)")
	flags.StringVar(&outPath, "out", "", "output module file; defaults to the expanded output template")

	if err := cmd.Execute(); err != nil {
		log.WithError(err).Error("instrument failed")
		os.Exit(1)
	}
}

func run(modulePath, outPath string, opts config.InstrumentOptions, log *iglog.Logger) error {
	if modulePath == "" {
		return fmt.Errorf("--module is required")
	}
	f, err := os.Open(modulePath)
	if err != nil {
		return fmt.Errorf("opening module: %w", err)
	}
	mod, err := irmod.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding module: %w", err)
	}

	target, err := opts.ResolveTarget(mod)
	if err != nil {
		return err
	}
	mod.Target = target
	log.WithField("target", target.Name).WithField("mode", opts.Mode.String()).Info("instrumenting")

	table := abi.NewTable(opts.Mode)
	if err := table.Validate(); err != nil {
		return fmt.Errorf("internal: invalid callback table: %w", err)
	}

	if opts.Prune && opts.Mode != abi.ModeRun {
		removed := prune.Run(mod, target)
		log.WithField("removed", removed).Debug("pruned unreachable functions")
	}

	if _, err := stub.Run(mod, table); err != nil {
		return fmt.Errorf("stubbing declarations: %w", err)
	}

	if opts.Mode != abi.ModeRun {
		if err := lower.Run(mod, table); err != nil {
			return fmt.Errorf("lowering accesses: %w", err)
		}
	}

	switch opts.Mode {
	case abi.ModeGenerate:
		if _, err := entrypoint.BuildGenerate(mod, target, table, opts.VersionCheck); err != nil {
			return fmt.Errorf("building generate entry: %w", err)
		}
	case abi.ModeRecord:
		if _, err := entrypoint.BuildRecord(mod, target, table, opts.VersionCheck); err != nil {
			return fmt.Errorf("building record entry: %w", err)
		}
	case abi.ModeRun:
		if _, err := entrypoint.BuildRun(mod, target, table, opts.VersionCheck); err != nil {
			return fmt.Errorf("building run entry: %w", err)
		}
	}

	if outPath == "" {
		outPath = opts.ExpandOutputTemplate(target)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output module: %w", err)
	}
	defer out.Close()
	if err := irmod.Encode(out, mod); err != nil {
		return fmt.Errorf("encoding output module: %w", err)
	}
	log.WithField("out", outPath).Info("wrote instrumented module")
	return nil
}
