package addrfmt_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
)

type stubResolver struct {
	calls int
}

func (r *stubResolver) FormatAddress(imageID int32, offset uint32) string {
	r.calls++
	return fmt.Sprintf("sym@%d:%#x", imageID, offset)
}

func TestInternImageCachesResolverCalls(t *testing.T) {
	resolver := &stubResolver{}
	in := addrfmt.NewInterner(resolver)

	id1 := in.InternImage(7, 0x100)
	id2 := in.InternImage(7, 0x100)
	id3 := in.InternImage(7, 0x104)

	require.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, 2, resolver.calls)
	assert.Equal(t, "sym@7:0x100", in.Format(id1))
}

func TestInternImageIsNotMemory(t *testing.T) {
	in := addrfmt.NewInterner(nil)
	id := in.InternImage(1, 0x10)
	assert.False(t, id.IsMemory())
}

func TestInternMemoryStackAndHeap(t *testing.T) {
	in := addrfmt.NewInterner(nil)

	stackID := in.InternMemory(4, 0x20, false)
	heapID := in.InternMemory(4, 0x20, true)

	assert.True(t, stackID.IsMemory())
	assert.False(t, stackID.IsHeap())
	assert.True(t, heapID.IsMemory())
	assert.True(t, heapID.IsHeap())
	assert.NotEqual(t, stackID, heapID)

	assert.Equal(t, "S#4+0x20", in.Format(stackID))
	assert.Equal(t, "H#4+0x20", in.Format(heapID))
}

func TestUnmappedStackRendersSentinel(t *testing.T) {
	in := addrfmt.NewInterner(nil)
	id := in.InternMemory(0, 0x40, false)
	assert.Equal(t, "S#?", in.Format(id))
}
