// Package calltree implements the merged call-tree node model that the
// merge engine builds incrementally, one trace at a time.
package calltree

import (
	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/testcaseset"
)

// Kind tags the variant a Node represents. Go has no native sum type, so
// every variant's payload fields live on the one Node struct; only the
// fields documented for Kind are meaningful.
type Kind uint8

const (
	// KindRoot is the single entry point of the tree. Every trace starts
	// its walk here.
	KindRoot Kind = iota
	// KindSplit is an internal branch of the merge, introduced whenever
	// two traces disagree about what happens next.
	KindSplit
	// KindCall records a call from SourceID to TargetID; it is itself a
	// split-like node rooting the subtree of everything that happens
	// inside the callee under CallStackID.
	KindCall
	// KindBranch records a conditional jump. Leaf: no children.
	KindBranch
	// KindReturn records a return. Leaf: no children.
	KindReturn
	// KindAllocation records a heap or stack allocation. Leaf: no
	// children.
	KindAllocation
	// KindMemoryAccess records a read or write at InstructionID, fanning
	// out into Targets by accessed address. Leaf: no successor children,
	// but carries its own internal fan-out.
	KindMemoryAccess
)

// MemoryTarget is one observed address accessed by a MemoryAccess node,
// together with the test cases that touched it. Targets are recorded in
// first-observed order.
type MemoryTarget struct {
	Addr      addrfmt.TaggedID
	TestCases *testcaseset.Set
}

// Node is one node of the merged call tree. See Kind for which fields are
// meaningful for a given variant.
type Node struct {
	Kind      Kind
	TestCases *testcaseset.Set

	// Successors is the ordered linear tail shared by every test case
	// that reached this node without diverging. Meaningful for
	// KindRoot/KindSplit/KindCall.
	Successors []*Node
	// SplitSuccessors holds the alternative continuations once traces
	// diverge past Successors. Meaningful for KindRoot/KindSplit/KindCall.
	// Pairwise disjoint test-case sets; each element is itself a
	// KindSplit node whose own Successors[0] is the distinguishing node.
	SplitSuccessors []*Node

	// KindCall payload.
	CallSourceID addrfmt.TaggedID
	CallTargetID addrfmt.TaggedID
	CallStackID  uint64

	// KindBranch payload.
	BranchSourceID addrfmt.TaggedID
	BranchTargetID addrfmt.TaggedID
	BranchTaken    bool

	// KindReturn payload.
	ReturnSourceID addrfmt.TaggedID
	ReturnTargetID addrfmt.TaggedID

	// KindAllocation payload.
	AllocSharedID int64
	AllocSize     uint32
	AllocIsHeap   bool

	// KindMemoryAccess payload.
	MemInstructionID addrfmt.TaggedID
	MemIsWrite       bool
	memTargets       []*MemoryTarget
	memTargetIndex   map[addrfmt.TaggedID]int
}

// NewRoot returns a fresh root node with an empty test-case set.
func NewRoot() *Node {
	return &Node{Kind: KindRoot, TestCases: testcaseset.New()}
}

// Targets returns the node's recorded memory targets in first-observed
// order. Only meaningful for KindMemoryAccess.
func (n *Node) Targets() []*MemoryTarget {
	return n.memTargets
}

// AddMemoryTarget records that testCase accessed addr through this
// MemoryAccess node, creating the target entry if this is the first time
// addr has been seen here.
func (n *Node) AddMemoryTarget(addr addrfmt.TaggedID, testCase int) *MemoryTarget {
	if n.memTargetIndex == nil {
		n.memTargetIndex = make(map[addrfmt.TaggedID]int)
	}

	if idx, ok := n.memTargetIndex[addr]; ok {
		n.memTargets[idx].TestCases.Add(testCase)
		return n.memTargets[idx]
	}

	t := &MemoryTarget{Addr: addr, TestCases: testcaseset.New()}
	t.TestCases.Add(testCase)

	n.memTargetIndex[addr] = len(n.memTargets)
	n.memTargets = append(n.memTargets, t)

	return t
}
