package history

// shiftHeatmap slides the heatmap by shiftCols columns left and shiftRows
// tick rows, preserving every cell that still overlaps the window. A shift
// beyond either dimension preserves nothing; the stale cells are left in
// place because every row is regenerated in full right after.
func (h *History) shiftHeatmap(shiftCols uint64, shiftRows int64) {
	rows, cols := h.rows, h.cols

	absRows := uint64(shiftRows)
	if shiftRows < 0 {
		absRows = uint64(-shiftRows)
	}
	if shiftCols >= cols || absRows >= rows {
		return
	}

	// Destination row range that has a source counterpart.
	dstLo := int64(0)
	if shiftRows < 0 {
		dstLo = -shiftRows
	}
	dstHi := int64(rows)
	if shiftRows > 0 {
		dstHi = int64(rows) - shiftRows
	}

	// Source row range mirroring it.
	srcLo := uint64(dstLo + shiftRows)
	srcHi := uint64(dstHi + shiftRows)

	// Column by column, left to right: the source column is always to the
	// right of the destination, so nothing is read after being written.
	for c := uint64(0); c < cols-shiftCols; c++ {
		src := (c + shiftCols) * rows
		dst := c * rows
		copy(
			h.heatmap[dst+uint64(dstLo):dst+uint64(dstHi)],
			h.heatmap[src+srcLo:src+srcHi],
		)
	}
}

// regenRow recomputes the n trailing cells of one heatmap row from the
// tick's processed updates. A nil tick means no volume data: the cells are
// zero.
//
// Cell (col, row) is the time-weighted average volume of the row's tick
// over [heatmapEnd-(W-col)*R, heatmapEnd-(W-col-1)*R): the ordered update
// list is walked backward from the newest processed update, attributing
// each contiguous interval bounded by the cell edges to its then-current
// volume; the start volume fills the tail before the first update.
func (h *History) regenRow(row uint64, n uint64, tck *Tick) {
	rows, cols := h.rows, h.cols
	res := int64(h.res)
	endAID := int64(h.timeHmp / h.res)

	var volStart float64
	var upds []*Update
	if tck != nil {
		volStart = tck.volStart
		upds = tck.updates
	}

	idx := len(upds) - 1
	for k := uint64(0); k < n; k++ {
		col := cols - 1 - k
		cell := &h.heatmap[col*rows+row]

		aid := endAID - int64(cols) + int64(col)
		cellStart := aid * res
		cellEnd := cellStart + res

		// Drop updates at or beyond this cell's end; they were consumed
		// by the cells to the right.
		for idx >= 0 && int64(upds[idx].time) >= cellEnd {
			idx--
		}

		switch {
		case idx < 0:
			// No update before the cell end: the start volume held
			// throughout.
			*cell = volStart
		case int64(upds[idx].time) <= cellStart:
			// The latest update predates the cell: its volume held
			// throughout.
			*cell = upds[idx].vol
		default:
			// Updates inside the cell: weight each volume by the span it
			// was in effect.
			var sum float64
			end := cellEnd
			j := idx
			for j >= 0 && int64(upds[j].time) > cellStart {
				sum += upds[j].vol * float64(end-int64(upds[j].time))
				end = int64(upds[j].time)
				j--
			}
			base := volStart
			if j >= 0 {
				base = upds[j].vol
			}
			sum += base * float64(end-cellStart)
			*cell = sum / float64(res)
		}
	}
}
