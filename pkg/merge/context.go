package merge

import (
	"github.com/sirupsen/logrus"

	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/calltree"
)

// Reserved shared-allocation IDs (spec §3): 0 is "unmapped stack", 1 is
// "unmapped heap". Real allocations start at 2.
const (
	UnmappedStackAllocID int64 = 0
	UnmappedHeapAllocID  int64 = 1
	firstAllocID         int64 = 2
)

// Context holds the state shared across every AddTrace call for one
// analysis run: the accumulated tree, the address interner, the
// shared-allocation-id counter, and the logger. It replaces what would
// otherwise be package-level globals; callers construct exactly one per
// analysis and thread it through the Engine.
type Context struct {
	Root     *calltree.Node
	Interner *addrfmt.Interner
	Logger   logrus.FieldLogger

	nextAllocID int64

	// MemoryConflictCount counts how often a memory access caused a
	// linear-conflict split (spec §9 open question: whether this occurs
	// in practice is unclear upstream; we keep the tolerant behavior but
	// surface a counter so it can be audited).
	MemoryConflictCount uint64
}

// NewContext returns a fresh analysis context. A nil resolver is
// permitted (see addrfmt.NewInterner); a nil logger falls back to
// logrus.StandardLogger().
func NewContext(resolver addrfmt.SymbolResolver, logger logrus.FieldLogger) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Context{
		Root:        calltree.NewRoot(),
		Interner:    addrfmt.NewInterner(resolver),
		Logger:      logger,
		nextAllocID: firstAllocID,
	}
}

// NewAllocationID mints the next process-wide shared allocation ID.
func (c *Context) NewAllocationID() int64 {
	id := c.nextAllocID
	c.nextAllocID++

	return id
}
