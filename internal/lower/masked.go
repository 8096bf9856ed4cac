package lower

import (
	"fmt"

	"github.com/input-gen/ig/internal/abi"
	"github.com/input-gen/ig/internal/classify"
	"github.com/input-gen/ig/internal/irmod"
)

// lowerMasked implements the masked-vector half of spec.md §4.2: "split
// the containing block and iterate lanes: for each lane i, test the mask
// bit; if set, compute the per-lane address and emit a scalar access
// callback for the element type."
//
// Since this IR has no phi nodes, the lane loop accumulates a masked
// load's result through a stack slot rather than SSA-merging per-lane
// values at the continuation block; a masked store needs no accumulator,
// it just conditionally stores each lane in place.
//
// Returns the (instruction index, block index) lowerFunc's outer loop
// should resume scanning from — the start of the continuation block, which
// carries every instruction that followed the masked op in the original
// block.
func lowerMasked(f *irmod.Func, bi int, b *irmod.Block, idx int, acc classify.Access, table *abi.Table, eb *irmod.Builder) (int, int, error) {
	instr := b.Instrs[idx]
	vecType := acc.AccessType
	if vecType == nil || vecType.Tag != irmod.TagVector {
		return 0, 0, fmt.Errorf("%w: masked op access type must be a vector", ErrUnsupportedIR)
	}
	if vecType.Scalable {
		return 0, 0, fmt.Errorf("%w: scalable vector masked access", ErrUnsupportedIR)
	}
	elemType := vecType.Elem
	count := vecType.Count

	head := append([]*irmod.Instr{}, b.Instrs[:idx]...)
	tail := append([]*irmod.Instr{}, b.Instrs[idx+1:]...)
	b.Instrs = head

	cont := &irmod.Block{Label: fmt.Sprintf("%s.mcont%d", b.Label, instr.ID), Instrs: tail}

	isLoad := instr.Op == irmod.OpMaskedLoad
	var resultSlot irmod.Value
	if isLoad {
		resultSlot = eb.Alloca(vecType).Result()
	}

	testBlocks := make([]*irmod.Block, count)
	bodyBlocks := make([]*irmod.Block, count)
	for i := 0; i < count; i++ {
		testBlocks[i] = &irmod.Block{Label: fmt.Sprintf("%s.mtest%d_%d", b.Label, instr.ID, i)}
		bodyBlocks[i] = &irmod.Block{Label: fmt.Sprintf("%s.mbody%d_%d", b.Label, instr.ID, i)}
	}

	inserted := make([]*irmod.Block, 0, 2*count+1)
	for i := 0; i < count; i++ {
		inserted = append(inserted, testBlocks[i], bodyBlocks[i])
	}
	inserted = append(inserted, cont)

	f.Blocks = append(f.Blocks[:bi+1], append(inserted, f.Blocks[bi+1:]...)...)

	bd := irmod.NewBuilder(f, b)
	if count == 0 {
		bd.Br(cont)
	} else {
		bd.Br(testBlocks[0])
	}

	for i := 0; i < count; i++ {
		tb, bb := testBlocks[i], bodyBlocks[i]
		next := cont
		if i+1 < count {
			next = testBlocks[i+1]
		}

		tbd := irmod.NewBuilder(f, tb)
		bit := tbd.ExtractElement(*acc.Mask, i, irmod.Prim(irmod.I1)).Result()
		tbd.CondBr(bit, bb, next)

		bbd := irmod.NewBuilder(f, bb)
		elemAddr := bbd.GEP(acc.Addr, vecType, int64(i), elemType).Result()
		translated := bbd.Call(nil, table.Fixed.TranslatePtr, irmod.PtrTo(nil), elemAddr).Result()
		if isLoad {
			val, err := lowerLeaf(bbd, eb, table, translated, elemType, irmod.Value{}, abi.KindRead)
			if err != nil {
				return 0, 0, err
			}
			laneAddr := bbd.GEP(resultSlot, vecType, int64(i), elemType).Result()
			bbd.Store(laneAddr, *val)
		} else {
			laneVal := bbd.ExtractElement(acc.Value, i, elemType).Result()
			if _, err := lowerLeaf(bbd, eb, table, translated, elemType, laneVal, abi.KindWrite); err != nil {
				return 0, 0, err
			}
		}
		bbd.Br(next)
	}

	if isLoad {
		loaded := &irmod.Instr{ID: instr.ID, Op: irmod.OpLoad, Type: vecType, AccessType: vecType, Operands: []irmod.Value{resultSlot}}
		cont.Instrs = append([]*irmod.Instr{loaded}, cont.Instrs...)
	}

	contIdx := bi + 1 + 2*count
	return 0, contIdx, nil
}
