package testcaseset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidechannel-merge/sidechannel/pkg/testcaseset"
)

func TestAddContainsRemove(t *testing.T) {
	s := testcaseset.New()
	require.False(t, s.Contains(3))

	s.Add(3)
	s.Add(130) // forces growth past a single 64-bit word
	assert.True(t, s.Contains(3))
	assert.True(t, s.Contains(130))
	assert.Equal(t, 2, s.Count())

	s.Remove(3)
	assert.False(t, s.Contains(3))
	assert.Equal(t, 1, s.Count())
}

func TestCopyIsIndependent(t *testing.T) {
	s := testcaseset.New()
	s.Add(1)
	s.Add(2)

	c := s.Copy()
	c.Add(5)

	assert.False(t, s.Contains(5))
	assert.True(t, c.Contains(5))
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 3, c.Count())
}

func TestMembersAscending(t *testing.T) {
	s := testcaseset.New()
	for _, id := range []int{40, 1, 9, 200} {
		s.Add(id)
	}

	assert.Equal(t, []int{1, 9, 40, 200}, s.Members())
}

func TestHashStableAcrossInsertionOrder(t *testing.T) {
	a := testcaseset.New()
	a.Add(1)
	a.Add(2)
	a.Add(3)

	b := testcaseset.New()
	b.Add(3)
	b.Add(1)
	b.Add(2)

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashDiffersOnContent(t *testing.T) {
	a := testcaseset.New()
	a.Add(1)

	b := testcaseset.New()
	b.Add(2)

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestUnion(t *testing.T) {
	a := testcaseset.New()
	a.Add(1)
	b := testcaseset.New()
	b.Add(2)

	u := testcaseset.Union(a, b)
	assert.Equal(t, 2, u.Count())
	assert.True(t, u.Contains(1))
	assert.True(t, u.Contains(2))
	assert.False(t, a.Contains(2), "Union must not mutate its inputs")
}
