// Package serialize reads and writes the input file format spec.md §6
// defines: a little-endian, unpadded blob of {memory, args, relocations}
// that cmd/generator and cmd/recorder produce and cmd/replayer
// consumes.
//
// The byte-level reader/writer style — fixed-width little-endian fields,
// seek-free sequential emission — is grounded on
// std/compiler/backend.go's putU64/getU64 helpers and elf_x64.go's
// section-by-section binary assembly, generalized from "build an ELF
// image" to "build an input-gen input file".
package serialize

import (
	"bufio"
	"fmt"
	"io"

	"github.com/input-gen/ig/internal/heap"
)

// RelocKind distinguishes the two relocation kinds spec.md §6 defines.
type RelocKind uint8

const (
	// RelocMem rewrites an 8-byte pointer slot inside the memory blob.
	RelocMem RelocKind = iota
	// RelocArg rewrites an 8-byte pointer slot inside the args blob.
	RelocArg
)

// Relocation says "the 8 bytes at Offset (within the memory blob if
// Kind==RelocMem, within the args blob if Kind==RelocArg) hold a pointer
// that must be rebased to point at Target, a byte offset into the memory
// blob." Generation-time addresses are meaningless once loaded at a
// different base, so every fabricated pointer is recorded this way
// instead of written as an absolute address.
type Relocation struct {
	Kind   RelocKind
	Offset uint64
	Target uint64
}

// File is the fully decoded contents of one input-gen input file.
type File struct {
	Memory      []byte
	Args        []byte
	Relocations []Relocation
}

func putU64(w *bufio.Writer, v uint64) error {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	_, err := w.Write(b[:])
	return err
}

func getU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

// Write emits f in the exact §6 wire order: memory-size, memory,
// args-size, args, relocation-count, relocations. Each relocation is
// written as kind (4 bytes, u32), offset (8 bytes), target (8 bytes).
func Write(w io.Writer, f *File) error {
	bw := bufio.NewWriter(w)

	if err := putU64(bw, uint64(len(f.Memory))); err != nil {
		return fmt.Errorf("serialize: memory size: %w", err)
	}
	if _, err := bw.Write(f.Memory); err != nil {
		return fmt.Errorf("serialize: memory: %w", err)
	}
	if err := putU64(bw, uint64(len(f.Args))); err != nil {
		return fmt.Errorf("serialize: args size: %w", err)
	}
	if _, err := bw.Write(f.Args); err != nil {
		return fmt.Errorf("serialize: args: %w", err)
	}
	if err := putU64(bw, uint64(len(f.Relocations))); err != nil {
		return fmt.Errorf("serialize: relocation count: %w", err)
	}
	for _, rel := range f.Relocations {
		kind := [4]byte{byte(rel.Kind)}
		if _, err := bw.Write(kind[:]); err != nil {
			return fmt.Errorf("serialize: relocation kind: %w", err)
		}
		if err := putU64(bw, rel.Offset); err != nil {
			return fmt.Errorf("serialize: relocation offset: %w", err)
		}
		if err := putU64(bw, rel.Target); err != nil {
			return fmt.Errorf("serialize: relocation target: %w", err)
		}
	}
	return bw.Flush()
}

// Read decodes a File previously produced by Write.
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)

	memSize, err := getU64(br)
	if err != nil {
		return nil, fmt.Errorf("serialize: memory size: %w", err)
	}
	mem := make([]byte, memSize)
	if _, err := io.ReadFull(br, mem); err != nil {
		return nil, fmt.Errorf("serialize: memory: %w", err)
	}

	argSize, err := getU64(br)
	if err != nil {
		return nil, fmt.Errorf("serialize: args size: %w", err)
	}
	args := make([]byte, argSize)
	if _, err := io.ReadFull(br, args); err != nil {
		return nil, fmt.Errorf("serialize: args: %w", err)
	}

	relCount, err := getU64(br)
	if err != nil {
		return nil, fmt.Errorf("serialize: relocation count: %w", err)
	}
	rels := make([]Relocation, relCount)
	for i := range rels {
		var kb [4]byte
		if _, err := io.ReadFull(br, kb[:]); err != nil {
			return nil, fmt.Errorf("serialize: relocation %d kind: %w", i, err)
		}
		kind := uint32(kb[0]) | uint32(kb[1])<<8 | uint32(kb[2])<<16 | uint32(kb[3])<<24
		off, err := getU64(br)
		if err != nil {
			return nil, fmt.Errorf("serialize: relocation %d offset: %w", i, err)
		}
		target, err := getU64(br)
		if err != nil {
			return nil, fmt.Errorf("serialize: relocation %d target: %w", i, err)
		}
		rels[i] = Relocation{Kind: RelocKind(kind), Offset: off, Target: target}
	}

	return &File{Memory: mem, Args: args, Relocations: rels}, nil
}

// ArgPointer marks a byte offset within the args blob that holds a
// fabricated heap address rather than a plain scalar, so BuildFile knows
// to emit a RelocArg entry for it.
type ArgPointer struct {
	Offset uint64
	Target uint64
}

// BuildFile packs a generated/recorded heap plus its argument bytes into
// the on-disk File shape: objects are laid out back to back in allocation
// order (heap.Heap.Snapshot already trims each to its touched length),
// and every pointer heap.Heap.AllPointers recorded is translated from an
// absolute fabrication-time address into a (blob-offset -> blob-offset)
// relocation.
func BuildFile(h *heap.Heap, args []byte, argPointers []ArgPointer) (*File, error) {
	snaps := h.Snapshot()

	type span struct{ start, end uint64 }
	offsets := make([]span, len(snaps))
	mem := make([]byte, 0, 4096)
	for i, s := range snaps {
		start := uint64(len(mem))
		mem = append(mem, s.Data...)
		offsets[i] = span{start: start, end: uint64(len(mem))}
	}

	blobOffset := func(addr uint64) (uint64, bool) {
		for i, s := range snaps {
			if addr >= s.Base && addr < s.Base+uint64(len(s.Data)) {
				return offsets[i].start + (addr - s.Base), true
			}
		}
		return 0, false
	}

	var rels []Relocation
	for _, p := range h.AllPointers() {
		locOff, ok := blobOffset(p.Location)
		if !ok {
			continue // the storing object was itself trimmed away; nothing to relocate
		}
		if p.Target == 0 {
			continue // a fabricated null pointer needs no relocation
		}
		targetOff, ok := blobOffset(p.Target)
		if !ok {
			return nil, fmt.Errorf("serialize: pointer at 0x%x targets unknown address 0x%x", p.Location, p.Target)
		}
		rels = append(rels, Relocation{Kind: RelocMem, Offset: locOff, Target: targetOff})
	}
	for _, ap := range argPointers {
		if ap.Target == 0 {
			continue
		}
		targetOff, ok := blobOffset(ap.Target)
		if !ok {
			return nil, fmt.Errorf("serialize: arg pointer at offset %d targets unknown address 0x%x", ap.Offset, ap.Target)
		}
		rels = append(rels, Relocation{Kind: RelocArg, Offset: ap.Offset, Target: targetOff})
	}

	return &File{Memory: mem, Args: args, Relocations: rels}, nil
}
