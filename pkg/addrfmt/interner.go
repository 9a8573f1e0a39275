// Package addrfmt interns (image, offset) and (allocation, offset) address
// tuples into compact tagged 64-bit identifiers and caches their
// human-readable rendering.
package addrfmt

import "fmt"

// TaggedID is an opaque 64-bit address identifier. Bit 63 selects
// memory/data addresses (vs. image/code); bit 62 selects heap vs. stack
// and is only meaningful when bit 63 is set.
type TaggedID uint64

const (
	memoryFlag = uint64(1) << 63
	heapFlag   = uint64(1) << 62

	// payloadMask keeps the id/offset payload within bits 32..61 (30 bits),
	// so an image or allocation id never bleeds into the reserved flag bits.
	payloadMask = uint64(1)<<30 - 1
)

// IsMemory reports whether id identifies a heap/stack data address rather
// than an image/code address.
func (id TaggedID) IsMemory() bool {
	return uint64(id)&memoryFlag != 0
}

// IsHeap reports whether id identifies a heap address. Only meaningful
// when IsMemory is true.
func (id TaggedID) IsHeap() bool {
	return uint64(id)&heapFlag != 0
}

// SymbolResolver formats an (image, offset) code address into a
// human-readable string. Implementations are invoked at most once per
// distinct pair by the interner; they must be pure.
type SymbolResolver interface {
	FormatAddress(imageID int32, offset uint32) string
}

type imageKey struct {
	imageID int32
	offset  uint32
}

// Interner maps image/allocation addresses to tagged IDs, caching the
// formatted string for each on first occurrence.
type Interner struct {
	resolver SymbolResolver

	imageIDs map[imageKey]TaggedID
	strings  map[TaggedID]string
}

// NewInterner returns an Interner backed by resolver. A nil resolver is
// permitted; image addresses then format using a numeric fallback.
func NewInterner(resolver SymbolResolver) *Interner {
	return &Interner{
		resolver: resolver,
		imageIDs: make(map[imageKey]TaggedID),
		strings:  make(map[TaggedID]string),
	}
}

// InternImage interns an (image, offset) code address, computing and
// caching its formatted string on first sight.
func (in *Interner) InternImage(imageID int32, offset uint32) TaggedID {
	key := imageKey{imageID, offset}
	if id, ok := in.imageIDs[key]; ok {
		return id
	}

	id := TaggedID((uint64(uint32(imageID))&payloadMask)<<32 | uint64(offset))

	var formatted string
	if in.resolver != nil {
		formatted = in.resolver.FormatAddress(imageID, offset)
	} else {
		formatted = fmt.Sprintf("%d+%#x", imageID, offset)
	}

	in.imageIDs[key] = id
	in.strings[id] = formatted

	return id
}

// InternMemory interns a (shared-allocation, offset) data address. allocID
// 0 is the reserved "unmapped stack" sentinel and 1 is the reserved
// "unmapped heap" sentinel (see pkg/merge.Context); isHeap must be false
// for allocID 0 and true for allocID 1.
func (in *Interner) InternMemory(allocID int64, offset uint32, isHeap bool) TaggedID {
	raw := memoryFlag | (uint64(uint32(allocID))&payloadMask)<<32 | uint64(offset)
	if isHeap {
		raw |= heapFlag
	}
	id := TaggedID(raw)

	if _, ok := in.strings[id]; ok {
		return id
	}

	in.strings[id] = formatMemory(allocID, offset, isHeap)

	return id
}

func formatMemory(allocID int64, offset uint32, isHeap bool) string {
	tag := "S"
	if isHeap {
		tag = "H"
	}

	if !isHeap && allocID == 0 {
		return "S#?"
	}

	return fmt.Sprintf("%s#%d+%#x", tag, allocID, offset)
}

// Format returns the cached human-readable string for id, computing it if
// this is the first time id (a memory address) has been seen via this
// exact call path rather than InternMemory/InternImage.
func (in *Interner) Format(id TaggedID) string {
	if s, ok := in.strings[id]; ok {
		return s
	}

	// Memory addresses are fully self-describing; reconstruct and cache.
	if id.IsMemory() {
		raw := uint64(id) &^ (memoryFlag | heapFlag)
		allocID := int64(int32(raw >> 32))
		offset := uint32(raw)
		s := formatMemory(allocID, offset, id.IsHeap())
		in.strings[id] = s

		return s
	}

	// An un-cached image address means it was never interned through this
	// Interner; fall back to a numeric rendering rather than panic.
	raw := uint64(id)
	imageID := int32(raw >> 32)
	offset := uint32(raw)

	return fmt.Sprintf("%d+%#x", imageID, offset)
}
