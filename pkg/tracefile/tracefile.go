// Package tracefile provides a concrete binary encoding of trace records
// on disk: a tag byte followed by the kind's fixed-width little-endian
// fields. It is the only package that knows about this
// wire format; pkg/merge depends solely on the abstract TraceReader
// interface and never on this package.
package tracefile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sidechannel-merge/sidechannel/pkg/merge"
)

// tag identifies a record's wire layout; values match merge.RecordKind.
type tag = merge.RecordKind

// branchFields is the shared layout of Call/Jump/Return records.
type branchFields struct {
	SourceImageID int32
	SourceOffset  uint32
	DestImageID   int32
	DestOffset    uint32
	Taken         uint8
}

type allocationFields struct {
	AllocID int32
	Size    uint32
}

type imageAccessFields struct {
	IsWrite      uint8
	InstrImageID int32
	InstrOffset  uint32
	MemImageID   int32
	MemOffset    uint32
}

type stackAccessFields struct {
	IsWrite      uint8
	InstrImageID int32
	InstrOffset  uint32
	StackAllocID int32
	MemOffset    uint32
}

type heapAccessFields struct {
	IsWrite      uint8
	InstrImageID int32
	InstrOffset  uint32
	HeapAllocID  int32
	MemOffset    uint32
}

// Reader decodes a binary record stream into merge.Record values. It
// implements merge.TraceReader.
type Reader struct {
	r io.Reader
}

// NewReader wraps r (typically a *bufio.Reader for short-read efficiency;
// the caller chooses buffering, mirroring the teacher's preference for
// constructing io types at the call site rather than inside the package).
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

var _ merge.TraceReader = (*Reader)(nil)

// Next decodes the next record, returning io.EOF exactly when the stream
// is exhausted at a record boundary.
func (d *Reader) Next() (merge.Record, error) {
	var t uint8
	if err := binary.Read(d.r, binary.LittleEndian, &t); err != nil {
		if err == io.EOF {
			return merge.Record{}, io.EOF
		}

		return merge.Record{}, fmt.Errorf("reading record tag: %w", err)
	}

	kind := tag(t)

	switch kind {
	case merge.RecordCall, merge.RecordJump, merge.RecordReturn:
		var f branchFields
		if err := binary.Read(d.r, binary.LittleEndian, &f); err != nil {
			return merge.Record{}, fmt.Errorf("reading branch record: %w", err)
		}

		return merge.Record{
			Kind:          kind,
			SourceImageID: f.SourceImageID,
			SourceOffset:  f.SourceOffset,
			DestImageID:   f.DestImageID,
			DestOffset:    f.DestOffset,
			Taken:         f.Taken != 0,
		}, nil

	case merge.RecordHeapAllocation, merge.RecordStackAllocation:
		var f allocationFields
		if err := binary.Read(d.r, binary.LittleEndian, &f); err != nil {
			return merge.Record{}, fmt.Errorf("reading allocation record: %w", err)
		}

		return merge.Record{Kind: kind, AllocID: f.AllocID, Size: f.Size}, nil

	case merge.RecordImageMemoryAccess:
		var f imageAccessFields
		if err := binary.Read(d.r, binary.LittleEndian, &f); err != nil {
			return merge.Record{}, fmt.Errorf("reading image memory access record: %w", err)
		}

		return merge.Record{
			Kind:         kind,
			IsWrite:      f.IsWrite != 0,
			InstrImageID: f.InstrImageID,
			InstrOffset:  f.InstrOffset,
			MemImageID:   f.MemImageID,
			MemOffset:    f.MemOffset,
		}, nil

	case merge.RecordStackMemoryAccess:
		var f stackAccessFields
		if err := binary.Read(d.r, binary.LittleEndian, &f); err != nil {
			return merge.Record{}, fmt.Errorf("reading stack memory access record: %w", err)
		}

		return merge.Record{
			Kind:         kind,
			IsWrite:      f.IsWrite != 0,
			InstrImageID: f.InstrImageID,
			InstrOffset:  f.InstrOffset,
			StackAllocID: f.StackAllocID,
			MemOffset:    f.MemOffset,
		}, nil

	case merge.RecordHeapMemoryAccess:
		var f heapAccessFields
		if err := binary.Read(d.r, binary.LittleEndian, &f); err != nil {
			return merge.Record{}, fmt.Errorf("reading heap memory access record: %w", err)
		}

		return merge.Record{
			Kind:         kind,
			IsWrite:      f.IsWrite != 0,
			InstrImageID: f.InstrImageID,
			InstrOffset:  f.InstrOffset,
			HeapAllocID:  f.HeapAllocID,
			MemOffset:    f.MemOffset,
		}, nil

	default:
		return merge.Record{}, fmt.Errorf("unrecognized record tag %d", t)
	}
}

// ReadImageTable decodes the prefix table of loaded images that precedes
// the record stream: a u32 count followed by, per entry, a 4-byte id, two
// 8-byte bounds, and a length-prefixed name.
func ReadImageTable(r io.Reader) ([]merge.ImageFileInfo, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading image table count: %w", err)
	}

	out := make([]merge.ImageFileInfo, 0, count)

	for i := uint32(0); i < count; i++ {
		var hdr struct {
			ID      int32
			Low     uint64
			High    uint64
			NameLen uint16
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, fmt.Errorf("reading image table entry %d: %w", i, err)
		}

		name := make([]byte, hdr.NameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("reading image table entry %d name: %w", i, err)
		}

		out = append(out, merge.ImageFileInfo{ID: hdr.ID, Low: hdr.Low, High: hdr.High, Name: string(name)})
	}

	return out, nil
}
