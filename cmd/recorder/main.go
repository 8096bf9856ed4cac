// cmd/recorder is the (ambient) carrier for Record mode's one-shot
// execution (spec.md §4.8 note: Record mode has no seed loop). It runs a
// record-instrumented entry once against caller-supplied argument bit
// patterns and writes the human-readable report spec.md §6's closing
// paragraph describes alongside the replayable artifact.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/driver"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/pkg/iglog"
)

func main() {
	log := iglog.New()

	var (
		modulePath   string
		outputDir    string
		seed         int64
		argWords     []string
		versionCheck bool
	)

	cmd := &cobra.Command{
		Use:   "recorder --module <file> --out <dir|-> [--arg word]...",
		Short: "Record one call against caller-supplied argument words",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(modulePath, outputDir, seed, argWords, versionCheck, log)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&modulePath, "module", "", "input module file (gob-encoded irmod.Module, record-instrumented)")
	flags.StringVar(&outputDir, "out", "-", "output directory, or - to discard (spec.md §6 sentinel)")
	flags.Int64Var(&seed, "seed", 0, "seed label for the artifact's filename")
	flags.StringArrayVar(&argWords, "arg", nil, "one 64-bit argument word, decimal or 0x-prefixed hex; repeatable")
	flags.BoolVar(&versionCheck, "version-check", true, "emit the ABI version check at entry")

	if err := cmd.Execute(); err != nil {
		log.WithError(err).Error("recorder failed")
		os.Exit(1)
	}
}

func run(modulePath, outputDir string, seed int64, argWords []string, versionCheck bool, log *iglog.Logger) error {
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
	if mod.Target == nil {
		return fmt.Errorf("module has no target function")
	}

	callArgs := make([][]byte, len(mod.Target.Params))
	for i := range callArgs {
		var w uint64
		if i < len(argWords) {
			w, err = parseWord(argWords[i])
			if err != nil {
				return fmt.Errorf("parsing --arg %q: %w", argWords[i], err)
			}
		}
		callArgs[i] = encodeWord(w)
	}

	table := abi.NewTable(abi.ModeRecord)
	results := driver.RecordRange(mod, mod.Target, table, seed, seed+1, versionCheck, callArgs, outputDir, "recorder", log)
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func parseWord(s string) (uint64, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func encodeWord(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
