package storage

import (
	"runtime"
	"sync/atomic"

	"github.com/iamNilotpal/tickvault/internal/orderbook"
	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/pkg/errors"
)

// Block is a loaded block segment: a fixed-capacity run of event rows for
// one level. The refcount is process-local; a block can be dropped from the
// index's map only when it reaches zero.
type Block struct {
	idx    *Index
	number uint64
	seg    *segment.Segment
	refs   uint32
}

// Number returns the block's 0-based number.
func (b *Block) Number() uint64 { return b.number }

// Rows returns the block's published row count.
func (b *Block) Rows() uint64 { return b.seg.Count() }

// MaxRows returns the block's fixed row capacity.
func (b *Block) MaxRows() uint64 { return b.seg.MaxElements() }

// Start returns the block's start time from the index table.
func (b *Block) Start() uint64 { return b.idx.tableStart(b.number) }

// End returns the block's current end time from the index table.
func (b *Block) End() uint64 { return b.idx.tableEnd(b.number) }

// Columns returns per-array spans covering the block's published rows.
func (b *Block) Columns() ([][]byte, uint64, error) {
	rows := b.seg.Count()
	cols, err := b.seg.ReadRange(0, rows)
	if err != nil {
		return nil, 0, err
	}
	return cols, rows, nil
}

// Times views the block's published time column.
func (b *Block) Times() ([]uint64, error) {
	cols, _, err := b.Columns()
	if err != nil {
		return nil, err
	}
	return segment.U64s(cols[ColTime]), nil
}

// FirstRowAt resolves the first published row whose time is >= t by linear
// scan, the way every monotonic consumer reads. It reports absent when all
// rows are earlier.
func (b *Block) FirstRowAt(t uint64) (uint64, bool, error) {
	times, err := b.Times()
	if err != nil {
		return 0, false, err
	}
	for i, rowTime := range times {
		if rowTime >= t {
			return uint64(i), true, nil
		}
	}
	return 0, false, nil
}

// write copies n rows starting at row offset of the source columns into the
// block's reserved slots and publishes them.
func (b *Block) write(cols Columns, offset, n uint64) error {
	if _, err := b.seg.WriteAcquire(); err != nil {
		return err
	}
	dst, _, err := b.seg.WriteSlots(n)
	if err != nil {
		return err
	}

	sizes := b.idx.level.ElementSizes()
	for i, col := range cols {
		stride := uint64(sizes[i])
		copy(dst[i], col[offset*stride:(offset+n)*stride])
	}
	if _, err := b.seg.WriteDone(n); err != nil {
		return err
	}
	_, err = b.seg.WriteRelease()
	return err
}

/*
 * Second-tier data: the derived end-of-block orderbook snapshot. Its
 * producer is the first reader that needs it, not the writer that appended
 * the block. The wip flag elects that producer; the done flag publishes the
 * result.
 */

// syncWord returns one of the block sync region's atomic words.
func (b *Block) syncWord(off uintptr) *atomic.Uint64 {
	return segment.WordAt(b.seg.Region(0), off)
}

// SnapshotReady reports whether the block's orderbook snapshot has been
// derived and published.
func (b *Block) SnapshotReady() bool {
	return b.syncWord(blockSyncWordDone).Load() != 0
}

// Snapshot returns the block's orderbook snapshot region. Only meaningful
// once SnapshotReady reports true.
func (b *Block) Snapshot() orderbook.Snapshot {
	return orderbook.Snapshot(b.seg.Region(1))
}

// EnsureSnapshot derives the block's orderbook snapshot if nobody has yet.
//
// The first caller to win the wip flag computes it from the predecessor
// block's snapshot (derived recursively when missing) overlaid with this
// block's updates; losers spin until the winner publishes the done flag.
// priceToTick converts stored prices into tick values; work is the shared
// derivation scratch, allocated by the caller so spins never allocate.
// It reports whether the bid/ask span was lost (did not fit the window).
func (b *Block) EnsureSnapshot(work []float64, priceToTick func(float64) uint64) (bool, error) {
	if !b.idx.level.HasSnapshot() {
		return false, errors.NewStorageError(
			nil, errors.ErrorCodeInvalidLevel, "Level 0 blocks carry no orderbook snapshot",
		).WithIdentifier(b.idx.id).WithBlock(b.number)
	}
	if b.SnapshotReady() {
		return false, nil
	}

	if b.syncWord(blockSyncWordWIP).Swap(1) != 0 {
		// Someone else is deriving: wait for publication.
		for !b.SnapshotReady() {
			runtime.Gosched()
		}
		return false, nil
	}

	loss, err := b.deriveSnapshot(work, priceToTick)
	if err != nil {
		// Leave wip set: the snapshot state is unknown, and a retry by
		// another reader would race the failed attempt.
		return false, err
	}

	// Publish: done raised with release semantics, then wip lowered.
	b.syncWord(blockSyncWordDone).Store(1)
	b.syncWord(blockSyncWordWIP).Store(0)
	return loss, nil
}

// deriveSnapshot computes the snapshot content. Caller holds the wip flag.
func (b *Block) deriveSnapshot(work []float64, priceToTick func(float64) uint64) (bool, error) {
	cols, rows, err := b.Columns()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, errors.NewStorageError(
			nil, errors.ErrorCodeInternal, "Snapshot derivation on an empty block",
		).WithIdentifier(b.idx.id).WithBlock(b.number)
	}

	priceCol, volCol := ColL1Price, ColL1Vol
	if b.idx.level == Level2 {
		priceCol, volCol = ColL2Price, ColL2Vol
	}
	prices := segment.F64s(cols[priceCol])
	vols := segment.F64s(cols[volCol])

	ticks := make([]uint64, rows)
	for i, price := range prices {
		ticks[i] = priceToTick(price)
	}

	// The predecessor snapshot seeds the derivation. The first block has
	// none: it starts from an empty book anchored at its first update.
	var prev orderbook.Snapshot
	if b.number > 0 {
		pred, err := b.idx.LoadNumber(b.number - 1)
		if err != nil {
			return false, err
		}
		if _, err := pred.EnsureSnapshot(work, priceToTick); err != nil {
			b.idx.Unload(pred)
			return false, err
		}
		prev = pred.Snapshot()
		loss := orderbook.Generate(b.Snapshot(), prev, work, ticks, vols)
		b.idx.Unload(pred)
		return loss, nil
	}

	prev = orderbook.NewSnapshot()
	anchor := max(ticks[0], orderbook.SnapshotTicks/2)
	prev.SetStart(anchor - orderbook.SnapshotTicks/2)
	return orderbook.Generate(b.Snapshot(), prev, work, ticks, vols), nil
}
