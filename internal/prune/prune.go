// Package prune implements the module pruner (spec.md §4.5): under
// Generate/Record, delete every function unreachable from the target and
// shrink the module accordingly.
//
// The algorithm is adapted from the teacher's own dead-code pass
// (std/compiler/dce.go's eliminateDeadFunctions): same
// reachable-set-plus-worklist mark phase, same filter-preserving-order
// sweep phase. What changes is the root set and the edge discovery: the
// teacher roots from main.main/init funcs/interface method tables and
// walks OP_CALL/OP_CALL_INTRINSIC/OP_CONVERT edges; this tool roots from a
// single target function and walks irmod.OpCall edges over the explicit IR
// this package was built for.
package prune

import "github.com/input-gen/ig/internal/irmod"

// addRoot is dceAddRoot generalized to work over *irmod.Func lookups
// instead of a name/index map, since irmod.Module already exposes
// FuncByName.
func addRoot(name string, mod *irmod.Module, reachable map[string]bool, worklist []string) []string {
	if mod.FuncByName(name) == nil {
		return worklist
	}
	if !reachable[name] {
		reachable[name] = true
		worklist = append(worklist, name)
	}
	return worklist
}

// Run deletes every function in mod unreachable from target, then returns
// the count of functions removed. Called only under Generate/Record
// (spec.md §4.5); Run mode must not call this, since a replayed artifact's
// module was already pruned by the generation/recording step that produced
// it.
func Run(mod *irmod.Module, target *irmod.Func) int {
	before := len(mod.Funcs)

	reachable := make(map[string]bool)
	var worklist []string
	worklist = addRoot(target.Name, mod, reachable, worklist)

	for len(worklist) > 0 {
		name := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		f := mod.FuncByName(name)
		if f == nil {
			continue
		}
		f.AllInstrs(func(_ *irmod.Block, instr *irmod.Instr) {
			if instr.Op != irmod.OpCall {
				return
			}
			calleeName := instr.ExternName
			if instr.Callee != nil {
				calleeName = instr.Callee.Name
			}
			if calleeName == "" {
				return
			}
			worklist = addRoot(calleeName, mod, reachable, worklist)
		})
	}

	dead := make(map[string]bool, len(mod.Funcs))
	for _, f := range mod.Funcs {
		if !reachable[f.Name] {
			dead[f.Name] = true
		}
	}
	mod.RemoveFuncs(dead)

	return before - len(mod.Funcs)
}
