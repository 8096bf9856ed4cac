// cmd/generator implements the named CLI spec.md §6 specifies verbatim:
// `generator <output-dir> <start> <end>`. It loads an already-instrumented
// Generate-mode module and fans the seed range out across
// internal/driver's goroutine-per-seed workers.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/driver"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/pkg/iglog"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: generator <output-dir|-> <start> <end> --module <file>")
}

func main() {
	log := iglog.New()

	var modulePath string
	versionCheck := true
	args := os.Args[1:]
	positional := args[:0:0]
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--module" && i+1 < len(args):
			modulePath = args[i+1]
			i++
		case args[i] == "--no-version-check":
			versionCheck = false
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) != 3 || modulePath == "" {
		usage()
		os.Exit(1)
	}

	outputDir := positional[0]
	start, err1 := strconv.ParseInt(positional[1], 10, 64)
	end, err2 := strconv.ParseInt(positional[2], 10, 64)
	if err1 != nil || err2 != nil || end <= start {
		usage()
		os.Exit(1)
	}

	f, err := os.Open(modulePath)
	if err != nil {
		log.WithError(err).Error("generator: opening module")
		os.Exit(1)
	}
	mod, err := irmod.Decode(f)
	f.Close()
	if err != nil {
		log.WithError(err).Error("generator: decoding module")
		os.Exit(1)
	}
	if mod.Target == nil {
		log.Error("generator: module has no target function")
		os.Exit(1)
	}

	table := abi.NewTable(abi.ModeGenerate)
	exeName := filepath.Base(os.Args[0])

	results := driver.GenerateRange(mod, mod.Target, table, start, end, versionCheck, outputDir, exeName, log)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		log.WithField("failed", failed).WithField("total", len(results)).Error("generator: one or more seeds failed")
		os.Exit(1)
	}
}

