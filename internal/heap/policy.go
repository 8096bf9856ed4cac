package heap

// Policy isolates the two soft-failure decisions spec.md §4.6/§7 make for
// out-of-bounds accesses, so a future reader finds both choices in one
// place instead of scattered booleans (spec.md §9 Design Notes: "keep them
// behind a clearly commented policy switch").
type Policy struct {
	// OnOOBRead, when true (the spec.md default), returns zero bytes for a
	// read outside every known region instead of aborting; the heap has no
	// memory outside its regions, so no other contents are read. False
	// would make an OOB read fatal — useful for a test
	// harness hunting for address-computation bugs, never for ordinary
	// generation/replay.
	OnOOBRead bool

	// OnOOBWrite, when true (the spec.md default), silently drops a write
	// outside every known region instead of aborting, to keep fuzzy
	// inputs productive rather than crashing the whole seed.
	OnOOBWrite bool
}

// DefaultPolicy matches spec.md §4.6/§7 exactly: soft failure on both axes.
var DefaultPolicy = Policy{OnOOBRead: true, OnOOBWrite: true}
