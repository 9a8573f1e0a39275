package calltree

import "github.com/sidechannel-merge/sidechannel/pkg/testcaseset"

// Split divides parent's linear successors at idx because testCase's
// trace diverges there with leaf as the new distinguishing continuation.
//
// parent.Successors[idx:] and parent's existing SplitSuccessors are
// displaced onto a new split node A (carrying every test case but
// testCase); a second new split node B carries only leaf and testCase.
// parent keeps Successors[:idx] and gets SplitSuccessors = [A, B].
//
// leaf must already have its own TestCases set populated with exactly
// testCase; Split does not mutate it. Split returns B so the caller can
// keep walking the new branch.
func Split(parent *Node, idx int, testCase int, leaf *Node) *Node {
	tail := append([]*Node(nil), parent.Successors[idx:]...)

	a := &Node{
		Kind:            KindSplit,
		TestCases:       parent.TestCases.Copy(),
		Successors:      tail,
		SplitSuccessors: parent.SplitSuccessors,
	}
	a.TestCases.Remove(testCase)

	bSet := testcaseset.New()
	bSet.Add(testCase)
	b := &Node{
		Kind:       KindSplit,
		TestCases:  bSet,
		Successors: []*Node{leaf},
	}

	parent.Successors = parent.Successors[:idx:idx]
	parent.SplitSuccessors = []*Node{a, b}

	return b
}
