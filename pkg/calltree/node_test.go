package calltree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/calltree"
	"github.com/sidechannel-merge/sidechannel/pkg/testcaseset"
)

func TestKeyDistinguishesByKind(t *testing.T) {
	call := &calltree.Node{Kind: calltree.KindCall, CallSourceID: 1, CallTargetID: 2}
	branch := &calltree.Node{Kind: calltree.KindBranch, BranchSourceID: 1, BranchTargetID: 2}

	assert.NotEqual(t, call.Key(), branch.Key())
}

func TestKeyIgnoresBranchTaken(t *testing.T) {
	taken := &calltree.Node{Kind: calltree.KindBranch, BranchSourceID: 1, BranchTargetID: 2, BranchTaken: true}
	notTaken := &calltree.Node{Kind: calltree.KindBranch, BranchSourceID: 1, BranchTargetID: 2, BranchTaken: false}

	assert.Equal(t, taken.Key(), notTaken.Key())
}

func TestKeyAllocationIgnoresSharedID(t *testing.T) {
	a := &calltree.Node{Kind: calltree.KindAllocation, AllocSharedID: 10, AllocSize: 16, AllocIsHeap: true}
	b := &calltree.Node{Kind: calltree.KindAllocation, AllocSharedID: 99, AllocSize: 16, AllocIsHeap: true}

	assert.Equal(t, a.Key(), b.Key())
}

func TestAddMemoryTargetPreservesInsertionOrder(t *testing.T) {
	n := &calltree.Node{Kind: calltree.KindMemoryAccess, TestCases: testcaseset.New()}

	n.AddMemoryTarget(30, 0)
	n.AddMemoryTarget(10, 1)
	n.AddMemoryTarget(30, 2)

	targets := n.Targets()
	if assert.Len(t, targets, 2) {
		assert.Equal(t, addrfmt.TaggedID(30), targets[0].Addr)
		assert.Equal(t, addrfmt.TaggedID(10), targets[1].Addr)
		assert.Equal(t, 2, targets[0].TestCases.Count())
		assert.True(t, targets[0].TestCases.Contains(0))
		assert.True(t, targets[0].TestCases.Contains(2))
		assert.Equal(t, 1, targets[1].TestCases.Count())
	}
}
