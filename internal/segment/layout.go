package segment

import (
	"encoding/binary"
)

// On-disk layout. All sizes are rounded up to 64 KiB pages; the value just
// needs to be a multiple of the machine's actual page size.
//
//	offset 0          metadata page (64 KiB)
//	  offset 0           sync block (1024 B)
//	  offset 1024        descriptor (1024 B)
//	  offset 2048        implementation template (1024 B)
//	offset 64K        data block: regions (each page-rounded), then arrays
//	                  (array i occupies pageRound(elm_max * elm_size[i]) bytes)
//
// All multibyte integers are little-endian host order; the format is not
// portable across endianness.
const (
	// PageSize is the allocation granularity of every span in the file.
	PageSize uint64 = 1 << 16

	syncOffset = 0
	syncSize   = 1024

	descOffset = syncOffset + syncSize
	descSize   = 1024

	impOffset = descOffset + descSize

	// ImpSize is the size of the implementation template area. Shorter
	// templates are zero-padded; longer ones are rejected.
	ImpSize = 1024

	// dataOffset is where the data block starts: the metadata spans
	// page-rounded together.
	dataOffset = PageSize
)

// Sync block word offsets. Each field is a naturally-aligned 64-bit word
// accessed atomically; the lock word is a compare-and-swap spinlock with
// acquire/release semantics protecting initialization and count publication.
const (
	syncWordLock    = 0
	syncWordInitRes = 8
	syncWordInitCpl = 16
	syncWordWriter  = 24
	syncWordCount   = 32
)

// Descriptor field offsets within the descriptor block. The descriptor is
// written once by the initializing attacher and reconciled byte-for-byte by
// every other attacher.
const (
	descWordElmMax   = 0  // u64: maximal number of elements
	descWordDataSize = 8  // u64: data block total size
	descByteRgnCount = 16 // u8: number of regions
	descByteArrCount = 17 // u8: number of arrays
	descFixedSize    = 24 // u64-aligned end of the fixed part
	// next: rgnSizes [rgnCount]u64, elmSizes [arrCount]u8
)

// pageRound rounds n up to the next page boundary.
func pageRound(n uint64) uint64 {
	return (n + (PageSize - 1)) &^ (PageSize - 1)
}

// descriptorSize returns the number of descriptor bytes used for the given
// region and array counts.
func descriptorSize(rgnCount, arrCount int) int {
	return descFixedSize + 8*rgnCount + arrCount
}

// encodeDescriptor renders the descriptor for the given geometry into a
// descSize-sized buffer. The tail beyond the used bytes stays zero so that
// reconciliation can compare the full block.
func encodeDescriptor(elmMax, dataSize uint64, rgnSizes []uint64, elmSizes []byte) []byte {
	buf := make([]byte, descSize)
	binary.LittleEndian.PutUint64(buf[descWordElmMax:], elmMax)
	binary.LittleEndian.PutUint64(buf[descWordDataSize:], dataSize)
	buf[descByteRgnCount] = byte(len(rgnSizes))
	buf[descByteArrCount] = byte(len(elmSizes))

	off := descFixedSize
	for _, size := range rgnSizes {
		binary.LittleEndian.PutUint64(buf[off:], size)
		off += 8
	}
	copy(buf[off:], elmSizes)
	return buf
}

// dataSpanSize computes the data block size implied by a geometry: the
// page-rounded regions followed by the page-rounded arrays.
func dataSpanSize(elmMax uint64, rgnSizes []uint64, elmSizes []byte) uint64 {
	var size uint64
	for _, rgn := range rgnSizes {
		size += pageRound(rgn)
	}
	for _, elm := range elmSizes {
		size += pageRound(elmMax * uint64(elm))
	}
	return size
}
