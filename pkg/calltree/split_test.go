package calltree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidechannel-merge/sidechannel/pkg/calltree"
	"github.com/sidechannel-merge/sidechannel/pkg/testcaseset"
)

func leafWithTestCase(tc int) *calltree.Node {
	set := testcaseset.New()
	set.Add(tc)

	return &calltree.Node{Kind: calltree.KindBranch, BranchSourceID: 99, TestCases: set}
}

func TestSplitDisplacesTailAndPreservesMembership(t *testing.T) {
	parent := calltree.NewRoot()
	parent.TestCases.Add(0)
	parent.TestCases.Add(1)

	x0 := leafWithTestCase(0)
	x0.TestCases.Add(1)
	x1 := leafWithTestCase(0)
	x1.TestCases.Add(1)
	parent.Successors = []*calltree.Node{x0, x1}

	newLeaf := leafWithTestCase(1)
	b := calltree.Split(parent, 1, 1, newLeaf)

	require.Len(t, parent.Successors, 1)
	assert.Same(t, x0, parent.Successors[0])

	require.Len(t, parent.SplitSuccessors, 2)
	a, bAgain := parent.SplitSuccessors[0], parent.SplitSuccessors[1]
	assert.Same(t, b, bAgain)

	assert.Equal(t, calltree.KindSplit, a.Kind)
	assert.True(t, a.TestCases.Contains(0))
	assert.False(t, a.TestCases.Contains(1), "displaced tail keeps every test case except the diverging one")
	require.Len(t, a.Successors, 1)
	assert.Same(t, x1, a.Successors[0])

	assert.Equal(t, calltree.KindSplit, b.Kind)
	assert.True(t, b.TestCases.Contains(1))
	assert.Equal(t, 1, b.TestCases.Count())
	require.Len(t, b.Successors, 1)
	assert.Same(t, newLeaf, b.Successors[0])
}

func TestSplitCarriesOldSplitSuccessorsIntoA(t *testing.T) {
	parent := calltree.NewRoot()
	parent.TestCases.Add(0)
	parent.TestCases.Add(1)
	parent.TestCases.Add(2)

	oldSplit := &calltree.Node{Kind: calltree.KindSplit, TestCases: testcaseset.New()}
	oldSplit.TestCases.Add(2)
	parent.SplitSuccessors = []*calltree.Node{oldSplit}

	x0 := leafWithTestCase(0)
	x0.TestCases.Add(1)
	parent.Successors = []*calltree.Node{x0}

	newLeaf := leafWithTestCase(1)
	calltree.Split(parent, 0, 1, newLeaf)

	require.Len(t, parent.SplitSuccessors, 2)
	a := parent.SplitSuccessors[0]
	require.Len(t, a.SplitSuccessors, 1)
	assert.Same(t, oldSplit, a.SplitSuccessors[0])
}
