// Package testcaseset implements a compact set over small, dense,
// non-negative test-case identifiers.
package testcaseset

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

// Set is an unordered set of test-case IDs. The zero value is not usable;
// construct one with New. Not safe for concurrent mutation.
type Set struct {
	bits *bitset.BitSet
}

// New returns an empty set.
func New() *Set {
	return &Set{bits: bitset.New(0)}
}

// Add inserts id into the set, growing the backing storage if needed.
func (s *Set) Add(id int) {
	s.bits.Set(uint(id))
}

// Remove deletes id from the set. Removing an absent id is a no-op.
func (s *Set) Remove(id int) {
	s.bits.Clear(uint(id))
}

// Contains reports whether id is a member of the set.
func (s *Set) Contains(id int) bool {
	return s.bits.Test(uint(id))
}

// Copy returns an independent deep copy of the set.
func (s *Set) Copy() *Set {
	return &Set{bits: s.bits.Clone()}
}

// Count returns the number of members via word-wise population count.
func (s *Set) Count() int {
	return int(s.bits.Count())
}

// Each calls fn once per member, in ascending order. Iteration stops early
// if fn returns false.
func (s *Set) Each(fn func(id int) bool) {
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		if !fn(int(i)) {
			return
		}
	}
}

// Members returns the set's contents as an ascending slice. Prefer Each in
// hot paths to avoid the allocation.
func (s *Set) Members() []int {
	out := make([]int, 0, s.Count())
	s.Each(func(id int) bool {
		out = append(out, id)
		return true
	})

	return out
}

// Hash returns a stable 64-bit digest of the set's backing words and their
// count. Two sets built by adding the same members hash identically
// regardless of insertion order; Remove does not shrink the backing words,
// so a set that once held a larger id hashes differently.
func (s *Set) Hash() uint64 {
	words := s.bits.Bytes()

	buf := make([]byte, 8*len(words)+8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	binary.LittleEndian.PutUint64(buf[8*len(words):], uint64(len(words)))

	return xxhash.Sum64(buf)
}

// Union returns a new set containing every member of s or other.
func Union(s, other *Set) *Set {
	out := s.Copy()
	other.Each(func(id int) bool {
		out.Add(id)
		return true
	})

	return out
}
