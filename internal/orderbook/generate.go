package orderbook

// NewWork allocates a derivation scratch window.
func NewWork() []float64 {
	return make([]float64, WorkTicks)
}

// Generate derives the snapshot at the end of a block from the snapshot at
// the end of its predecessor plus the block's per-tick volume updates.
//
// The predecessor snapshot is placed so that its mid tick sits in the middle
// of the scratch window, the updates are overlaid, and the best and worst
// bid/ask are computed over the union of the predecessor range and the
// updated range. The new anchor is the midpoint of best bid and best ask
// (falling back to the single existing side, then to the predecessor mid),
// and dst becomes the 1024-tick window centered on it.
//
// It reports loss: the best-to-worst bid/ask span did not fit in the
// 1024-tick snapshot window.
func Generate(dst, src Snapshot, work []float64, ticks []uint64, vols []float64) bool {
	clear(work)

	srcStart := src.Start()
	srcEnd := src.End()
	srcMid := src.Mid()

	workStart := uint64(0)
	if srcMid >= WorkTicks/2 {
		workStart = srcMid - WorkTicks/2
	}

	AddSnapshot(work, workStart, src)

	updMin, updMax := AddUpdates(work, workStart, ticks, vols)

	// Scan the union of the predecessor window and the updated range.
	scanStart := srcStart
	scanEnd := srcEnd
	if len(ticks) > 0 {
		scanStart = min(scanStart, updMin)
		scanEnd = max(scanEnd, updMax+1)
	}

	bestBid, worstBid, bestAsk, worstAsk, _ := BestWorst(work, workStart, scanStart, scanEnd)

	anchor := Anchor(bestBid, bestAsk, srcMid, SnapshotTicks)

	dst.SetStart(anchor - SnapshotTicks/2)
	ExtractSnapshot(work, workStart, dst)

	// Loss: the populated bid/ask span exceeds the snapshot window.
	if bestBid == NoBid && bestAsk == NoAsk {
		return false
	}
	spanStart := bestAsk
	if worstBid != NoBid {
		spanStart = min(worstBid, bestAsk)
	}
	spanEnd := bestBid
	if worstAsk != NoAsk {
		spanEnd = max(bestBid, worstAsk)
	}
	return spanStart < dst.Start() || dst.End() <= spanEnd
}
