package merge

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/calltree"
	"github.com/sidechannel-merge/sidechannel/pkg/testcaseset"
)

// ConditionCode tags a structural anomaly (spec §7) with the decision-tree
// case that produced it, for inclusion in warning logs.
type ConditionCode int

const (
	CaseLinearMatch ConditionCode = iota + 1
	CaseLinearConflict
	CaseExhaustedSoleOccupant
	CaseExhaustedMatchingSplit
	CaseExhaustedNewSplit
	CaseWeird
)

// frame is one entry of the open-call-chain stack: where to resume in the
// caller's successor list once the matching Return is processed.
type frame struct {
	node  *calltree.Node
	index int
}

// Engine ingests one trace at a time and merges it into ctx.Root.
// AddTrace is not safe to call concurrently with itself or with any
// other mutation of ctx (spec §5: strictly single-threaded ingestion).
type Engine struct {
	ctx *Context

	current      *calltree.Node
	index        int
	currentCSID  uint64
	frames       []frame
	csidStack    []uint64
	stackDict    map[int32]int64
	heapDict     map[int32]int64
	traceIdx     int
	testCase     int
}

// NewEngine returns an Engine that merges traces into ctx.
func NewEngine(ctx *Context) *Engine {
	return &Engine{ctx: ctx}
}

// AddTrace ingests every record of reader under testCase, fully merging
// it into the shared tree before returning. reader.Next must return
// io.EOF to signal a normally terminated trace; any other error aborts
// ingestion and is returned to the caller (spec §7: input errors
// propagate).
func (e *Engine) AddTrace(testCase int, reader TraceReader) error {
	e.current = e.ctx.Root
	e.index = 0
	e.currentCSID = 0
	e.frames = e.frames[:0]
	e.csidStack = e.csidStack[:0]
	e.stackDict = make(map[int32]int64)
	e.heapDict = make(map[int32]int64)
	e.traceIdx = 0
	e.testCase = testCase

	e.ctx.Root.TestCases.Add(testCase)

	for {
		rec, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		e.dispatch(rec)
		e.traceIdx++
	}
}

func (e *Engine) dispatch(rec Record) {
	switch rec.Kind {
	case RecordCall:
		e.handleCall(rec)
	case RecordJump:
		e.handleBranch(rec)
	case RecordReturn:
		e.handleReturn(rec)
	case RecordHeapAllocation:
		e.handleAllocation(rec, true)
	case RecordStackAllocation:
		e.handleAllocation(rec, false)
	case RecordImageMemoryAccess:
		e.handleImageMemoryAccess(rec)
	case RecordStackMemoryAccess:
		e.handleStackMemoryAccess(rec)
	case RecordHeapMemoryAccess:
		e.handleHeapMemoryAccess(rec)
	}
}

// step implements the six-case decision tree of spec §4.4 generically
// over the current position (e.current, e.index): it returns the node
// that now represents this record (target), and the (host, nextIndex)
// position the engine should continue from for the next record at this
// same tree depth. makeLeaf is only invoked when a genuinely new node
// must be created (cases 2, 3, 5, 6); it must not set TestCases.
func (e *Engine) step(key calltree.Key, makeLeaf func() *calltree.Node) (target, host *calltree.Node, nextIndex int) {
	cur := e.current
	idx := e.index

	if idx < len(cur.Successors) {
		existing := cur.Successors[idx]
		if existing.Key() == key {
			existing.TestCases.Add(e.testCase)
			return existing, cur, idx + 1 // case 1: linear match
		}

		// case 2: linear conflict
		leaf := e.newLeafFor(makeLeaf)
		b := calltree.Split(cur, idx, e.testCase, leaf)

		return leaf, b, 1
	}

	if len(cur.SplitSuccessors) == 0 {
		if cur.TestCases.Count() <= 1 {
			// case 3: exhausted, sole occupant
			leaf := e.newLeafFor(makeLeaf)
			cur.Successors = append(cur.Successors, leaf)

			return leaf, cur, idx + 1
		}

		// case 6: weird. No divergence record exists to split against;
		// recover by creating a split successor anyway.
		e.warnWeird(cur)

		leaf := e.newLeafFor(makeLeaf)
		split := e.newSplitFor(leaf)
		cur.SplitSuccessors = append(cur.SplitSuccessors, split)

		return leaf, split, 1
	}

	for _, ss := range cur.SplitSuccessors {
		if len(ss.Successors) > 0 && ss.Successors[0].Key() == key {
			// case 4: exhausted, matching split successor
			ss.TestCases.Add(e.testCase)
			ss.Successors[0].TestCases.Add(e.testCase)

			return ss.Successors[0], ss, 1
		}
	}

	// case 5: exhausted, new split successor
	leaf := e.newLeafFor(makeLeaf)
	split := e.newSplitFor(leaf)
	cur.SplitSuccessors = append(cur.SplitSuccessors, split)

	return leaf, split, 1
}

func (e *Engine) newLeafFor(makeLeaf func() *calltree.Node) *calltree.Node {
	leaf := makeLeaf()
	leaf.TestCases = newSingletonSet(e.testCase)

	return leaf
}

func (e *Engine) newSplitFor(leaf *calltree.Node) *calltree.Node {
	return &calltree.Node{
		Kind:       calltree.KindSplit,
		TestCases:  newSingletonSet(e.testCase),
		Successors: []*calltree.Node{leaf},
	}
}

func (e *Engine) handleCall(rec Record) {
	src := e.ctx.Interner.InternImage(rec.SourceImageID, rec.SourceOffset)
	dst := e.ctx.Interner.InternImage(rec.DestImageID, rec.DestOffset)
	newCSID := rollingCallStackHash(e.currentCSID, src, dst)

	key := calltree.Key{Kind: calltree.KindCall, A: uint64(src), B: uint64(dst)}
	makeLeaf := func() *calltree.Node {
		return &calltree.Node{
			Kind:         calltree.KindCall,
			CallSourceID: src,
			CallTargetID: dst,
			CallStackID:  newCSID,
		}
	}

	target, host, nextIndex := e.step(key, makeLeaf)

	e.frames = append(e.frames, frame{node: host, index: nextIndex})
	e.csidStack = append(e.csidStack, e.currentCSID)

	e.current = target
	e.index = 0
	e.currentCSID = target.CallStackID
}

func (e *Engine) handleBranch(rec Record) {
	src := e.ctx.Interner.InternImage(rec.SourceImageID, rec.SourceOffset)

	var dst addrfmt.TaggedID
	if rec.Taken {
		dst = e.ctx.Interner.InternImage(rec.DestImageID, rec.DestOffset)
	}

	key := calltree.Key{Kind: calltree.KindBranch, A: uint64(src), B: uint64(dst)}
	makeLeaf := func() *calltree.Node {
		return &calltree.Node{
			Kind:           calltree.KindBranch,
			BranchSourceID: src,
			BranchTargetID: dst,
			BranchTaken:    rec.Taken,
		}
	}

	_, host, nextIndex := e.step(key, makeLeaf)
	e.current = host
	e.index = nextIndex
}

func (e *Engine) handleReturn(rec Record) {
	src := e.ctx.Interner.InternImage(rec.SourceImageID, rec.SourceOffset)
	dst := e.ctx.Interner.InternImage(rec.DestImageID, rec.DestOffset)

	key := calltree.Key{Kind: calltree.KindReturn, A: uint64(src), B: uint64(dst)}
	makeLeaf := func() *calltree.Node {
		return &calltree.Node{Kind: calltree.KindReturn, ReturnSourceID: src, ReturnTargetID: dst}
	}

	_, host, nextIndex := e.step(key, makeLeaf)
	e.current = host
	e.index = nextIndex

	if len(e.frames) == 0 {
		e.warnEmptyStack()
		e.current = e.ctx.Root
		e.index = 0
		e.currentCSID = 0

		return
	}

	f := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	csid := e.csidStack[len(e.csidStack)-1]
	e.csidStack = e.csidStack[:len(e.csidStack)-1]

	e.current = f.node
	e.index = f.index
	e.currentCSID = csid
}

func (e *Engine) handleAllocation(rec Record, isHeap bool) {
	key := calltree.Key{Kind: calltree.KindAllocation, A: uint64(rec.Size), Flag: isHeap}
	makeLeaf := func() *calltree.Node {
		sharedID := e.ctx.NewAllocationID()
		return &calltree.Node{
			Kind:          calltree.KindAllocation,
			AllocSharedID: sharedID,
			AllocSize:     rec.Size,
			AllocIsHeap:   isHeap,
		}
	}

	target, host, nextIndex := e.step(key, makeLeaf)
	e.current = host
	e.index = nextIndex

	if isHeap {
		e.heapDict[rec.AllocID] = target.AllocSharedID
	} else {
		e.stackDict[rec.AllocID] = target.AllocSharedID
	}
}

func (e *Engine) handleImageMemoryAccess(rec Record) {
	instr := e.ctx.Interner.InternImage(rec.InstrImageID, rec.InstrOffset)
	addr := e.ctx.Interner.InternImage(rec.MemImageID, rec.MemOffset)
	e.handleMemoryAccess(instr, addr, rec.IsWrite)
}

func (e *Engine) handleStackMemoryAccess(rec Record) {
	instr := e.ctx.Interner.InternImage(rec.InstrImageID, rec.InstrOffset)

	sharedID, ok := e.stackDict[rec.StackAllocID]
	if !ok {
		e.warnUnmappedAllocation(false)
		sharedID = UnmappedStackAllocID
	}

	addr := e.ctx.Interner.InternMemory(sharedID, rec.MemOffset, false)
	e.handleMemoryAccess(instr, addr, rec.IsWrite)
}

func (e *Engine) handleHeapMemoryAccess(rec Record) {
	instr := e.ctx.Interner.InternImage(rec.InstrImageID, rec.InstrOffset)

	sharedID, ok := e.heapDict[rec.HeapAllocID]
	if !ok {
		e.warnUnmappedAllocation(true)
		sharedID = UnmappedHeapAllocID
	}

	addr := e.ctx.Interner.InternMemory(sharedID, rec.MemOffset, true)
	e.handleMemoryAccess(instr, addr, rec.IsWrite)
}

func (e *Engine) handleMemoryAccess(instr, addr addrfmt.TaggedID, isWrite bool) {
	key := calltree.Key{Kind: calltree.KindMemoryAccess, A: uint64(instr)}
	makeLeaf := func() *calltree.Node {
		return &calltree.Node{Kind: calltree.KindMemoryAccess, MemInstructionID: instr, MemIsWrite: isWrite}
	}

	cur := e.current
	idx := e.index
	causesConflict := idx < len(cur.Successors) && cur.Successors[idx].Key() != key

	target, host, nextIndex := e.step(key, makeLeaf)

	if causesConflict {
		e.ctx.MemoryConflictCount++
		e.ctx.Logger.WithFields(logFields(e.traceIdx, CaseLinearConflict)).
			Warn("memory access caused a linear-conflict split; expected only at conditional-move-like sites")
	}

	target.AddMemoryTarget(addr, e.testCase)

	e.current = host
	e.index = nextIndex
}

func (e *Engine) warnWeird(node *calltree.Node) {
	e.ctx.Logger.WithFields(logFields(e.traceIdx, CaseWeird)).
		Warn("weird case: multiple prior traces ended here with no divergence record to split against")
}

func (e *Engine) warnEmptyStack() {
	e.ctx.Logger.WithFields(logFields(e.traceIdx, CaseWeird)).
		Warn("return seen with an empty call-stack frame; continuing from root")
}

func (e *Engine) warnUnmappedAllocation(isHeap bool) {
	kind := "stack"
	if isHeap {
		kind = "heap"
	}

	e.ctx.Logger.WithFields(logFields(e.traceIdx, CaseWeird)).
		Warnf("memory access through an unmapped %s allocation; using sentinel", kind)
}

func logFields(traceIdx int, code ConditionCode) map[string]any {
	return map[string]any{
		"trace_record_index": traceIdx,
		"condition_code":     int(code),
	}
}

func newSingletonSet(testCase int) *testcaseset.Set {
	s := testcaseset.New()
	s.Add(testCase)

	return s
}

// rollingCallStackHash computes the call-stack identifier for entering a
// call from src to dst under the parent stack id prev, per spec §3/§9:
// a 64-bit hash over the 24-byte little-endian layout prev ∥ src ∥ dst.
func rollingCallStackHash(prev uint64, src, dst addrfmt.TaggedID) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], prev)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(src))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(dst))

	return xxhash.Sum64(buf[:])
}
