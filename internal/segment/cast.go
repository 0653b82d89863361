package segment

import (
	"sync/atomic"
	"unsafe"
)

// Typed views over mapped byte spans. The segment format is host-endian by
// contract, so reinterpreting the mapped bytes is both correct and the only
// way to keep reads allocation-free. Callers must pass spans obtained from a
// segment: those are page-aligned, which satisfies every alignment
// requirement below.

// U64s reinterprets a byte span as a []uint64.
func U64s(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// F64s reinterprets a byte span as a []float64.
func F64s(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// U64Bytes reinterprets a []uint64 as its backing bytes. Used by writers
// that copy typed columns into a segment's arrays.
func U64Bytes(v []uint64) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8)
}

// F64Bytes reinterprets a []float64 as its backing bytes.
func F64Bytes(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8)
}

// wordAt returns the atomic 64-bit word at the given byte offset of a
// mapped span. The offset must be 8-byte aligned.
func wordAt(b []byte, off uintptr) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&b[off]))
}

// WordAt exposes an atomic word inside a region to sibling packages. Blocks
// keep their second-tier flags in region 0 and access them through this.
func WordAt(b []byte, off uintptr) *atomic.Uint64 {
	return wordAt(b, off)
}
