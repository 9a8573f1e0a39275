package report

import (
	"fmt"
	"io"

	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/attribution"
)

// DumpCallStackLeakage renders the call-stack leakage report: a DFS over
// the call-stack tree, 2-space indent per depth, pruning subtrees that
// contain no finding. Format follows spec.md §4.6.2.
func DumpCallStackLeakage(w io.Writer, root *attribution.CallStackNode, interner *addrfmt.Interner) error {
	l := &leakageDumper{w: w, interner: interner}
	return l.node(root, 0)
}

type leakageDumper struct {
	w        io.Writer
	interner *addrfmt.Interner
}

func (l *leakageDumper) node(n *attribution.CallStackNode, depth int) error {
	// The root always prints, even with nothing interesting beneath it
	// (spec.md §8 S1: identical traces still produce a report containing
	// just the root), matching pkg/report/calltree.go's root-always-prints
	// convention. Every other node is pruned unless it is interesting.
	if depth != 0 && !n.Interesting {
		return nil
	}

	indent := indentOf2(depth)

	if err := l.printf("%s%s\n", indent, l.header(n)); err != nil {
		return err
	}

	for _, f := range n.Findings() {
		if err := l.finding(f, indent); err != nil {
			return err
		}
	}

	for _, child := range n.Children() {
		if err := l.node(child, depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (l *leakageDumper) header(n *attribution.CallStackNode) string {
	if n.StackID == 0 {
		return "<root> ($0)"
	}

	return fmt.Sprintf("%s -> %s ($%x)", l.interner.Format(n.SourceID), l.interner.Format(n.TargetID), n.StackID)
}

func (l *leakageDumper) finding(f *attribution.AnalysisData, indent string) error {
	if err := l.printf("%s[L] %s (%s)\n", indent, l.interner.Format(f.InstructionID), f.Type); err != nil {
		return err
	}

	if err := l.printf("%s- Number of calls: %d\n", indent, len(f.Roots)); err != nil {
		return err
	}

	for _, root := range f.Roots {
		if err := l.partitionTree(root, indent); err != nil {
			return err
		}
	}

	return nil
}

func (l *leakageDumper) partitionTree(root *attribution.PartitionNode, basePrefix string) error {
	return l.partitionChildren(root.Children, basePrefix)
}

func (l *leakageDumper) partitionChildren(children []*attribution.PartitionNode, prefix string) error {
	for i, c := range children {
		last := i == len(children)-1

		connector := "├── "
		childPrefix := prefix + "│   "
		if last {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		label := formatPartitionLabel(c)
		if err := l.printf("%s%s%s\n", prefix, connector, label); err != nil {
			return err
		}

		if err := l.partitionChildren(c.Children, childPrefix); err != nil {
			return err
		}
	}

	return nil
}

func formatPartitionLabel(n *attribution.PartitionNode) string {
	label := fmt.Sprintf("%s (%d total)", FormatIDSequence(n.TestCases.Members()), n.TestCases.Count())
	if n.IsDummy {
		return "[M] " + label
	}

	return label
}

func (l *leakageDumper) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(l.w, format, args...)
	if err != nil {
		return fmt.Errorf("writing call-stack leakage report: %w", err)
	}

	return nil
}

func indentOf2(depth int) string {
	b := make([]byte, depth*2)
	for i := range b {
		b[i] = ' '
	}

	return string(b)
}
