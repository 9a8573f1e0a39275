package attribution_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidechannel-merge/sidechannel/pkg/attribution"
	"github.com/sidechannel-merge/sidechannel/pkg/merge"
)

type sliceReader struct {
	records []merge.Record
	pos     int
}

func (r *sliceReader) Next() (merge.Record, error) {
	if r.pos >= len(r.records) {
		return merge.Record{}, io.EOF
	}

	rec := r.records[r.pos]
	r.pos++

	return rec, nil
}

func call(src, dst uint32) merge.Record {
	return merge.Record{Kind: merge.RecordCall, SourceImageID: 1, SourceOffset: src, DestImageID: 1, DestOffset: dst, Taken: true}
}

func ret(src, dst uint32) merge.Record {
	return merge.Record{Kind: merge.RecordReturn, SourceImageID: 1, SourceOffset: src, DestImageID: 1, DestOffset: dst}
}

func branchTaken(src, dst uint32) merge.Record {
	return merge.Record{Kind: merge.RecordJump, SourceImageID: 1, SourceOffset: src, DestImageID: 1, DestOffset: dst, Taken: true}
}

func imageAccess(instrOffset, memOffset uint32) merge.Record {
	return merge.Record{
		Kind:         merge.RecordImageMemoryAccess,
		InstrImageID: 1,
		InstrOffset:  instrOffset,
		MemImageID:   2,
		MemOffset:    memOffset,
	}
}

func newTestContext() *merge.Context {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return merge.NewContext(nil, logger)
}

func TestIdenticalTracesYieldNothingInteresting(t *testing.T) {
	ctx := newTestContext()
	eng := merge.NewEngine(ctx)

	trace := func() *sliceReader {
		return &sliceReader{records: []merge.Record{call(10, 20), branchTaken(21, 25), ret(25, 11)}}
	}

	require.NoError(t, eng.AddTrace(0, trace()))
	require.NoError(t, eng.AddTrace(1, trace()))

	rootCS := attribution.Walk(ctx.Root)
	assert.False(t, rootCS.Interesting)
	require.Len(t, rootCS.Children(), 1)
	assert.Empty(t, rootCS.Children()[0].Findings())
}

func TestBranchDivergenceAttributesToCalleeFrame(t *testing.T) {
	ctx := newTestContext()
	eng := merge.NewEngine(ctx)

	require.NoError(t, eng.AddTrace(0, &sliceReader{records: []merge.Record{call(10, 20), branchTaken(21, 25), ret(25, 11)}}))
	require.NoError(t, eng.AddTrace(1, &sliceReader{records: []merge.Record{call(10, 20), branchTaken(21, 30), ret(30, 11)}}))

	rootCS := attribution.Walk(ctx.Root)
	require.True(t, rootCS.Interesting)
	require.Len(t, rootCS.Children(), 1)

	callCS := rootCS.Children()[0]
	require.True(t, callCS.Interesting)
	require.Len(t, callCS.Findings(), 1)

	finding := callCS.Findings()[0]
	assert.Equal(t, attribution.FindingJump, finding.Type)
	expectedSource := ctx.Interner.InternImage(1, 21)
	assert.Equal(t, expectedSource, finding.InstructionID)

	require.Len(t, finding.Roots, 1)
	root := finding.Roots[0]
	assert.Equal(t, 2, root.TestCases.Count())
	require.Len(t, root.Children, 2)

	for _, c := range root.Children {
		assert.False(t, c.IsDummy)
		assert.Equal(t, 1, c.TestCases.Count())
	}
}

func TestMemoryAccessDivergenceWithoutEnclosingCall(t *testing.T) {
	ctx := newTestContext()
	eng := merge.NewEngine(ctx)

	require.NoError(t, eng.AddTrace(0, &sliceReader{records: []merge.Record{imageAccess(42, 0x100)}}))
	require.NoError(t, eng.AddTrace(1, &sliceReader{records: []merge.Record{imageAccess(42, 0x200)}}))

	rootCS := attribution.Walk(ctx.Root)
	require.True(t, rootCS.Interesting)
	require.Len(t, rootCS.Findings(), 1)

	finding := rootCS.Findings()[0]
	assert.Equal(t, attribution.FindingMemoryAccess, finding.Type)
	require.Len(t, finding.Roots, 1)
	assert.Len(t, finding.Roots[0].Children, 2)
}

func TestNestedDivergenceAttributesToInnerFrameOnly(t *testing.T) {
	ctx := newTestContext()
	eng := merge.NewEngine(ctx)

	outer := func(inner merge.Record) []merge.Record {
		return []merge.Record{
			call(1, 100),
			call(101, 200),
			inner,
			ret(201, 102),
			ret(102, 2),
		}
	}

	require.NoError(t, eng.AddTrace(0, &sliceReader{records: outer(branchTaken(201, 210))}))
	require.NoError(t, eng.AddTrace(1, &sliceReader{records: outer(branchTaken(201, 220))}))

	rootCS := attribution.Walk(ctx.Root)
	require.Len(t, rootCS.Children(), 1)
	fCS := rootCS.Children()[0]
	require.Len(t, fCS.Children(), 1)
	gCS := fCS.Children()[0]

	assert.Empty(t, fCS.Findings(), "divergence happens inside g, not at f's own frame")
	require.Len(t, gCS.Findings(), 1)
	assert.True(t, gCS.Interesting)
	assert.True(t, fCS.Interesting, "ancestors of an interesting frame are marked interesting too")
	assert.True(t, rootCS.Interesting)
}
