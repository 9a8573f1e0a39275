package report

import (
	"fmt"
	"io"

	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/calltree"
)

// CallTreeDumpOptions gates what the dump includes, mirroring
// spec.md §6.3's include-memory-accesses-in-dump flag. Whether a dump is
// written at all (dump-call-tree) is decided by the caller.
type CallTreeDumpOptions struct {
	IncludeMemoryAccesses bool
}

// DumpCallTree renders a preorder pretty-print of the merged tree to w,
// 4 spaces per depth level. Node markers follow spec.md §4.6.1.
func DumpCallTree(w io.Writer, root *calltree.Node, interner *addrfmt.Interner, opts CallTreeDumpOptions) error {
	d := &dumper{w: w, interner: interner, opts: opts}
	return d.node(root, 0)
}

type dumper struct {
	w        io.Writer
	interner *addrfmt.Interner
	opts     CallTreeDumpOptions
	err      error
}

func (d *dumper) node(n *calltree.Node, depth int) error {
	if err := d.writeNode(n, depth); err != nil {
		return err
	}

	for _, s := range n.Successors {
		if err := d.node(s, depth+1); err != nil {
			return err
		}
	}

	for _, s := range n.SplitSuccessors {
		if err := d.node(s, depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (d *dumper) writeNode(n *calltree.Node, depth int) error {
	indent := indentOf(depth)

	switch n.Kind {
	case calltree.KindRoot:
		return d.printf("%s@root\n", indent)

	case calltree.KindSplit:
		return d.printf("%s@split\n", indent)

	case calltree.KindCall:
		return d.printf("%s#call %s -> %s ($%x)\n", indent,
			d.interner.Format(n.CallSourceID), d.interner.Format(n.CallTargetID), n.CallStackID)

	case calltree.KindBranch:
		if n.BranchTaken {
			return d.printf("%s#branch %s -> %s\n", indent,
				d.interner.Format(n.BranchSourceID), d.interner.Format(n.BranchTargetID))
		}

		return d.printf("%s#branch %s -> <?> (not taken)\n", indent, d.interner.Format(n.BranchSourceID))

	case calltree.KindReturn:
		return d.printf("%s#return %s -> %s\n", indent,
			d.interner.Format(n.ReturnSourceID), d.interner.Format(n.ReturnTargetID))

	case calltree.KindAllocation:
		if !d.opts.IncludeMemoryAccesses {
			return nil
		}

		tag := "S"
		if n.AllocIsHeap {
			tag = "H"
		}

		kind := "stackalloc"
		if n.AllocIsHeap {
			kind = "heapalloc"
		}

		return d.printf("%s#%s %s#%d, %d bytes\n", indent, kind, tag, n.AllocSharedID, n.AllocSize)

	case calltree.KindMemoryAccess:
		if !d.opts.IncludeMemoryAccesses {
			return nil
		}

		verb := "reads"
		if n.MemIsWrite {
			verb = "writes"
		}

		if err := d.printf("%s#memory %s %s\n", indent, d.interner.Format(n.MemInstructionID), verb); err != nil {
			return err
		}

		targetIndent := indentOf(depth + 1)

		for _, tgt := range n.Targets() {
			seq := FormatIDSequence(tgt.TestCases.Members())
			if err := d.printf("%s%s : %s (%d total)\n", targetIndent, d.interner.Format(tgt.Addr), seq, tgt.TestCases.Count()); err != nil {
				return err
			}
		}

		return nil
	}

	return nil
}

func (d *dumper) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(d.w, format, args...)
	if err != nil {
		return fmt.Errorf("writing call-tree dump: %w", err)
	}

	return nil
}

func indentOf(depth int) string {
	b := make([]byte, depth*4)
	for i := range b {
		b[i] = ' '
	}

	return string(b)
}
