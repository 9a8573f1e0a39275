package calltree

// Key is the distinguishing identity of a node as used by the merge
// engine's match/conflict decision tree (spec'd per-kind in §4.4): Call
// and Return compare (source, target); Branch compares (source, target)
// — Taken is informational only and never part of the key; Allocation
// compares (size, isHeap); MemoryAccess compares only the instruction id.
type Key struct {
	Kind Kind
	A, B uint64
	Flag bool
}

// Key returns n's distinguishing key. Only meaningful for
// KindCall/KindBranch/KindReturn/KindAllocation/KindMemoryAccess; Root and
// Split nodes have no identity of their own.
func (n *Node) Key() Key {
	switch n.Kind {
	case KindCall:
		return Key{Kind: KindCall, A: uint64(n.CallSourceID), B: uint64(n.CallTargetID)}
	case KindBranch:
		return Key{Kind: KindBranch, A: uint64(n.BranchSourceID), B: uint64(n.BranchTargetID)}
	case KindReturn:
		return Key{Kind: KindReturn, A: uint64(n.ReturnSourceID), B: uint64(n.ReturnTargetID)}
	case KindAllocation:
		return Key{Kind: KindAllocation, A: uint64(n.AllocSize), Flag: n.AllocIsHeap}
	case KindMemoryAccess:
		return Key{Kind: KindMemoryAccess, A: uint64(n.MemInstructionID)}
	default:
		return Key{Kind: n.Kind}
	}
}
