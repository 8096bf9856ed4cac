// cmd/replayer implements the named CLI spec.md §6 specifies verbatim:
// `replayer <input-file>`. It loads an already-instrumented Run-mode
// module, decodes the serialized artifact, and replays it through
// internal/driver.RunOne.
package main

import (
	"fmt"
	"os"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/driver"
	"github.com/input-gen/ig/internal/irmod"
	"github.com/input-gen/ig/internal/serialize"
	"github.com/input-gen/ig/pkg/iglog"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: replayer <input-file> --module <file>")
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

	if len(positional) != 1 || modulePath == "" {
		usage()
		os.Exit(1)
	}
	inputPath := positional[0]

	mf, err := os.Open(modulePath)
	if err != nil {
		log.WithError(err).Error("replayer: opening module")
		os.Exit(1)
	}
	mod, err := irmod.Decode(mf)
	mf.Close()
	if err != nil {
		log.WithError(err).Error("replayer: decoding module")
		os.Exit(1)
	}
	if mod.Target == nil {
		log.Error("replayer: module has no target function")
		os.Exit(1)
	}

	af, err := os.Open(inputPath)
	if err != nil {
		log.WithError(err).Error("replayer: opening input file")
		os.Exit(1)
	}
	file, err := serialize.Read(af)
	af.Close()
	if err != nil {
		log.WithError(err).Error("replayer: decoding input file")
		os.Exit(1)
	}

	table := abi.NewTable(abi.ModeRun)
	if _, err := driver.RunOne(mod, mod.Target, table, file, versionCheck); err != nil {
		log.WithError(err).Error("replayer: run failed")
		os.Exit(1)
	}
	log.WithField("input", inputPath).Info("replayer: run complete")
}
