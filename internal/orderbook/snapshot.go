// Package orderbook provides pure, allocation-free operations over
// fixed-stride per-tick volume arrays, and the derivation of end-of-block
// orderbook snapshots from a predecessor snapshot plus a block's updates.
//
// A volume encodes both side and quantity: negative is a bid, positive is an
// ask, zero is an empty tick level. A snapshot (OBS) is a 1024-entry window
// of volumes with an explicit start tick. Snapshot derivation works through
// a 1 Mi-entry scratch array (GOS) so that price moves far beyond the
// predecessor window still land inside the working range.
package orderbook

import (
	"github.com/iamNilotpal/tickvault/internal/segment"
)

const (
	// SnapshotTicks is the number of tick levels saved in a snapshot.
	SnapshotTicks = 1024

	// WorkTicks is the number of tick levels of the derivation scratch.
	WorkTicks = 1 << 20

	// RegionSize is the byte size of a snapshot region: the start tick
	// followed by the volume array.
	RegionSize = 8 + SnapshotTicks*8

	// NoBid and NoAsk are the sentinel tick values reported when a side is
	// absent from a scanned range.
	NoBid uint64 = 0
	NoAsk uint64 = ^uint64(0)
)

// Snapshot is a view over a snapshot byte span: a u64 start tick followed by
// 1024 f64 volumes aligned to it. The span usually lives inside a block
// segment's auxiliary region.
type Snapshot []byte

// NewSnapshot allocates a detached, zeroed snapshot. Used by tests and by
// the derivation of a block with no predecessor.
func NewSnapshot() Snapshot {
	return make(Snapshot, RegionSize)
}

// Start returns the snapshot's start (inclusive) tick.
func (s Snapshot) Start() uint64 {
	return segment.U64s(s[:8])[0]
}

// SetStart sets the snapshot's start tick.
func (s Snapshot) SetStart(start uint64) {
	segment.U64s(s[:8])[0] = start
}

// End returns the snapshot's end (exclusive) tick.
func (s Snapshot) End() uint64 {
	return s.Start() + SnapshotTicks
}

// Mid returns the snapshot's mid tick.
func (s Snapshot) Mid() uint64 {
	return s.Start() + SnapshotTicks/2
}

// Volumes returns the snapshot's volume array.
func (s Snapshot) Volumes() []float64 {
	return segment.F64s(s[8:RegionSize])
}

// IsAsk reports whether a non-zero volume is an ask.
func IsAsk(vol float64) bool {
	return vol > 0
}
