package attribution

import (
	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/calltree"
)

// front tracks, per instruction, the partition node currently open along
// the DFS path being walked. It is cloned (not mutated in place) on every
// descent into a split successor so that each branch grows its own shape.
type front map[addrfmt.TaggedID]*PartitionNode

// Walk performs the leakage attribution pass over a merged call tree,
// returning the root of the call-stack tree. It is the second pass: the
// tree built by the merge engine is read-only here.
func Walk(root *calltree.Node) *CallStackNode {
	rootCS := newCallStackNode(0, 0, 0, nil)
	visit(root, rootCS, front{})

	return rootCS
}

func visit(node *calltree.Node, csNode *CallStackNode, f front) {
	for _, child := range node.Successors {
		visitLinear(child, csNode, f)
	}

	groups := groupBySourceInstr(node.SplitSuccessors)

	for instrID, members := range groups {
		if len(members) < 2 {
			continue
		}

		if _, open := f[instrID]; !open {
			pnode := &PartitionNode{TestCases: node.TestCases.Copy()}
			ad := csNode.analysisData(instrID, kindOfMember(members[0]))
			ad.Roots = append(ad.Roots, pnode)
			f[instrID] = pnode
		}

		csNode.markInteresting()
	}

	for _, ss := range node.SplitSuccessors {
		branch := make(front, len(f))

		for instrID, pnode := range f {
			var child *PartitionNode
			if isRealMember(groups, instrID, ss) {
				child = &PartitionNode{TestCases: ss.TestCases.Copy()}
			} else {
				child = &PartitionNode{TestCases: ss.TestCases.Copy(), IsDummy: true}
			}

			pnode.Children = append(pnode.Children, child)
			branch[instrID] = child
		}

		visit(ss, csNode, branch)
	}
}

// visitLinear handles one element of a node's linear Successors tail: a
// Call descends into a fresh call-stack context with an empty front, a
// MemoryAccess may itself record an independent finding, and every other
// leaf kind has nothing further to walk.
func visitLinear(node *calltree.Node, csNode *CallStackNode, f front) {
	switch node.Kind {
	case calltree.KindCall:
		child := csNode.childFor(node.CallStackID, node.CallSourceID, node.CallTargetID)
		visit(node, child, front{})
	case calltree.KindMemoryAccess:
		recordMemoryFinding(node, csNode)
	}
}

func recordMemoryFinding(node *calltree.Node, csNode *CallStackNode) {
	targets := node.Targets()
	if len(targets) < 2 {
		return
	}

	root := &PartitionNode{TestCases: node.TestCases.Copy()}
	for _, tgt := range targets {
		root.Children = append(root.Children, &PartitionNode{TestCases: tgt.TestCases.Copy()})
	}

	ad := csNode.analysisData(node.MemInstructionID, FindingMemoryAccess)
	ad.Roots = append(ad.Roots, root)
	csNode.markInteresting()
}

// groupBySourceInstr groups split successors by the source instruction-id
// of their first (distinguishing) node, considering only control-flow
// kinds (Branch/Call/Return) as spec §4.5 step 2 requires: an Allocation
// or MemoryAccess distinguishing node carries no comparable instruction
// identity and is never grouped here.
func groupBySourceInstr(splitSuccessors []*calltree.Node) map[addrfmt.TaggedID][]*calltree.Node {
	groups := make(map[addrfmt.TaggedID][]*calltree.Node)

	for _, ss := range splitSuccessors {
		if len(ss.Successors) == 0 {
			continue
		}

		instrID, ok := sourceInstrOf(ss.Successors[0])
		if !ok {
			continue
		}

		groups[instrID] = append(groups[instrID], ss)
	}

	return groups
}

func sourceInstrOf(n *calltree.Node) (addrfmt.TaggedID, bool) {
	switch n.Kind {
	case calltree.KindBranch:
		return n.BranchSourceID, true
	case calltree.KindCall:
		return n.CallSourceID, true
	case calltree.KindReturn:
		return n.ReturnSourceID, true
	default:
		return 0, false
	}
}

func kindOfMember(ss *calltree.Node) FindingType {
	switch ss.Successors[0].Kind {
	case calltree.KindCall:
		return FindingCall
	case calltree.KindReturn:
		return FindingReturn
	default:
		return FindingJump
	}
}

// isRealMember reports whether ss is the split successor responsible for
// this round's divergence group on instrID (as opposed to a successor
// that merely needs a shape-preserving dummy child for an unrelated,
// already-open partition).
func isRealMember(groups map[addrfmt.TaggedID][]*calltree.Node, instrID addrfmt.TaggedID, ss *calltree.Node) bool {
	members := groups[instrID]
	if len(members) < 2 {
		return false
	}

	for _, m := range members {
		if m == ss {
			return true
		}
	}

	return false
}
