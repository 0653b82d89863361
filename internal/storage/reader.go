package storage

import (
	"github.com/iamNilotpal/tickvault/internal/segment"
)

// Reader streams an index's rows over [start, end], one block-bounded batch
// at a time. It holds at most one loaded block and releases it on
// transition, the way the reconstruction consumers do. Iteration stops at a
// successor block whose end time is past end: that block's rows are not
// streamed, even those at or before end.
//
// The published row count of the active block is re-read on every batch, so
// rows appended behind the cursor by a live writer become visible without
// reopening the reader.
type Reader struct {
	idx *Index
	end uint64

	blk    *Block
	row    uint64 // Next row to yield within blk.
	maxCap uint64 // blk's row capacity, cached.
	done   bool
}

// Read opens a streaming reader at the block containing start. A start
// before the first block begins at the first block; it reports absent when
// the index is empty or start is past the last block's end.
func (idx *Index) Read(start, end uint64) (*Reader, bool, error) {
	blk, ok, err := idx.Load(start)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		// A start before the first block still iterates from the front;
		// a start beyond the last end has nothing to stream.
		if count := idx.tableCount(); count > 0 && start < idx.tableStart(0) {
			blk, err = idx.LoadNumber(0)
			if err != nil {
				return nil, false, err
			}
		} else {
			return nil, false, nil
		}
	}

	row, ok, err := blk.FirstRowAt(start)
	if err != nil {
		idx.Unload(blk)
		return nil, false, err
	}
	if !ok {
		// All published rows are earlier; the cursor starts at the
		// block's tail and the next batch picks up whatever gets
		// published there.
		rows := blk.Rows()
		row = rows
	}

	return &Reader{
		idx:    idx,
		end:    end,
		blk:    blk,
		row:    row,
		maxCap: blk.MaxRows(),
	}, true, nil
}

// Block returns the reader's active block.
func (r *Reader) Block() *Block { return r.blk }

// Next yields the next batch: per-array spans starting at the cursor row,
// plus the number of rows whose times are within the iteration end. A zero
// count with done=false means no new rows are published yet; done=true
// means the iteration is over. The spans stay valid until the next call.
func (r *Reader) Next() (cols [][]byte, n uint64, done bool, err error) {
	if r.done {
		return nil, 0, true, nil
	}

	// Exhausted the block's capacity: transition to the successor.
	if r.row == r.maxCap {
		next, err := r.idx.Next(r.blk, r.end)
		if err != nil {
			return nil, 0, false, err
		}
		if next == nil {
			r.blk = nil
			r.done = true
			return nil, 0, true, nil
		}
		r.blk = next
		r.row = 0
		r.maxCap = next.MaxRows()
	}

	rows := r.blk.Rows()
	if r.row == rows {
		return nil, 0, false, nil
	}

	cols, err = r.blk.seg.ReadRange(r.row, rows-r.row)
	if err != nil {
		return nil, 0, false, err
	}

	// Bound the batch to rows within the iteration end.
	times := segment.U64s(cols[ColTime])
	n = uint64(len(times))
	for i, t := range times {
		if t > r.end {
			n = uint64(i)
			r.done = true
			break
		}
	}
	if n == 0 {
		return nil, 0, r.done, nil
	}

	sizes := r.idx.level.ElementSizes()
	for i := range cols {
		cols[i] = cols[i][:n*uint64(sizes[i])]
	}
	r.row += n
	return cols, n, false, nil
}

// Close releases the reader's block, if any.
func (r *Reader) Close() {
	if r.blk != nil {
		r.idx.Unload(r.blk)
		r.blk = nil
	}
	r.done = true
}
