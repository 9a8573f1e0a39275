package tracefile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sidechannel-merge/sidechannel/pkg/merge"
)

// Writer encodes merge.Record values into the binary wire format read
// by Reader. It exists for building fixtures and for any future
// preprocessor emitting this format; the merge engine never uses it.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}

	return 0
}

// Write encodes one record.
func (e *Writer) Write(rec merge.Record) error {
	if err := binary.Write(e.w, binary.LittleEndian, uint8(rec.Kind)); err != nil {
		return fmt.Errorf("writing record tag: %w", err)
	}

	switch rec.Kind {
	case merge.RecordCall, merge.RecordJump, merge.RecordReturn:
		f := branchFields{
			SourceImageID: rec.SourceImageID,
			SourceOffset:  rec.SourceOffset,
			DestImageID:   rec.DestImageID,
			DestOffset:    rec.DestOffset,
			Taken:         boolByte(rec.Taken),
		}

		return binary.Write(e.w, binary.LittleEndian, f)

	case merge.RecordHeapAllocation, merge.RecordStackAllocation:
		f := allocationFields{AllocID: rec.AllocID, Size: rec.Size}
		return binary.Write(e.w, binary.LittleEndian, f)

	case merge.RecordImageMemoryAccess:
		f := imageAccessFields{
			IsWrite:      boolByte(rec.IsWrite),
			InstrImageID: rec.InstrImageID,
			InstrOffset:  rec.InstrOffset,
			MemImageID:   rec.MemImageID,
			MemOffset:    rec.MemOffset,
		}

		return binary.Write(e.w, binary.LittleEndian, f)

	case merge.RecordStackMemoryAccess:
		f := stackAccessFields{
			IsWrite:      boolByte(rec.IsWrite),
			InstrImageID: rec.InstrImageID,
			InstrOffset:  rec.InstrOffset,
			StackAllocID: rec.StackAllocID,
			MemOffset:    rec.MemOffset,
		}

		return binary.Write(e.w, binary.LittleEndian, f)

	case merge.RecordHeapMemoryAccess:
		f := heapAccessFields{
			IsWrite:      boolByte(rec.IsWrite),
			InstrImageID: rec.InstrImageID,
			InstrOffset:  rec.InstrOffset,
			HeapAllocID:  rec.HeapAllocID,
			MemOffset:    rec.MemOffset,
		}

		return binary.Write(e.w, binary.LittleEndian, f)

	default:
		return fmt.Errorf("unrecognized record kind %d", rec.Kind)
	}
}

// WriteImageTable encodes the prefix table of loaded images.
func WriteImageTable(w io.Writer, images []merge.ImageFileInfo) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(images))); err != nil {
		return fmt.Errorf("writing image table count: %w", err)
	}

	for _, img := range images {
		hdr := struct {
			ID      int32
			Low     uint64
			High    uint64
			NameLen uint16
		}{ID: img.ID, Low: img.Low, High: img.High, NameLen: uint16(len(img.Name))}

		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return fmt.Errorf("writing image table entry: %w", err)
		}

		if _, err := w.Write([]byte(img.Name)); err != nil {
			return fmt.Errorf("writing image table entry name: %w", err)
		}
	}

	return nil
}
