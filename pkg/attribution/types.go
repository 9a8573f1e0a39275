// Package attribution implements the second-pass traversal that discovers
// divergence points in a merged call tree and groups them by call-stack
// identity.
package attribution

import (
	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/testcaseset"
)

// FindingType classifies the instruction at which a divergence was found.
type FindingType uint8

const (
	FindingCall FindingType = iota
	FindingReturn
	FindingJump
	FindingMemoryAccess
)

// String renders the finding type the way the leakage report names it.
func (f FindingType) String() string {
	switch f {
	case FindingCall:
		return "call"
	case FindingReturn:
		return "return"
	case FindingJump:
		return "jump"
	case FindingMemoryAccess:
		return "memory access"
	default:
		return "unknown"
	}
}

// PartitionNode is one node of a test-case partition tree: it describes
// how a set of test cases is subdivided by the outcomes observed at an
// instruction (and, for nested nodes, at higher still-open divergences
// along the same call-stack path). IsDummy marks a node inserted purely
// to preserve partition shape across an unrelated higher-priority split
// (spec §4.5 step 5), rather than one reflecting this instruction's own
// outcome.
type PartitionNode struct {
	TestCases *testcaseset.Set
	Children  []*PartitionNode
	IsDummy   bool
}

// AnalysisData holds every independent divergence occurrence recorded
// for one instruction within one call-stack context.
type AnalysisData struct {
	InstructionID addrfmt.TaggedID
	Type          FindingType
	Roots         []*PartitionNode
}

// CallStackNode is one node of the call-stack tree, parallel to the
// merged call tree: one node per unique call-stack id encountered at a
// Call node.
type CallStackNode struct {
	StackID  uint64
	SourceID addrfmt.TaggedID // the Call node's source instruction, zero at the synthetic root
	TargetID addrfmt.TaggedID // the Call node's target, zero at the synthetic root

	Interesting bool

	InstructionAnalysisData map[addrfmt.TaggedID]*AnalysisData
	instrOrder              []addrfmt.TaggedID

	parent       *CallStackNode
	children     map[uint64]*CallStackNode
	childOrder   []uint64
}

func newCallStackNode(stackID uint64, source, target addrfmt.TaggedID, parent *CallStackNode) *CallStackNode {
	return &CallStackNode{
		StackID:                  stackID,
		SourceID:                 source,
		TargetID:                 target,
		InstructionAnalysisData:  make(map[addrfmt.TaggedID]*AnalysisData),
		parent:                   parent,
		children:                 make(map[uint64]*CallStackNode),
	}
}

// Children returns this node's children in first-observed order.
func (n *CallStackNode) Children() []*CallStackNode {
	out := make([]*CallStackNode, len(n.childOrder))
	for i, id := range n.childOrder {
		out[i] = n.children[id]
	}

	return out
}

// Findings returns this node's per-instruction analysis data in
// first-observed order.
func (n *CallStackNode) Findings() []*AnalysisData {
	out := make([]*AnalysisData, len(n.instrOrder))
	for i, id := range n.instrOrder {
		out[i] = n.InstructionAnalysisData[id]
	}

	return out
}

func (n *CallStackNode) childFor(stackID uint64, source, target addrfmt.TaggedID) *CallStackNode {
	if c, ok := n.children[stackID]; ok {
		return c
	}

	c := newCallStackNode(stackID, source, target, n)
	n.children[stackID] = c
	n.childOrder = append(n.childOrder, stackID)

	return c
}

func (n *CallStackNode) analysisData(instrID addrfmt.TaggedID, typ FindingType) *AnalysisData {
	if ad, ok := n.InstructionAnalysisData[instrID]; ok {
		return ad
	}

	ad := &AnalysisData{InstructionID: instrID, Type: typ}
	n.InstructionAnalysisData[instrID] = ad
	n.instrOrder = append(n.instrOrder, instrID)

	return ad
}

func (n *CallStackNode) markInteresting() {
	for c := n; c != nil && !c.Interesting; c = c.parent {
		c.Interesting = true
	}
}
