package storage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/pkg/errors"
)

// Index is a per-(venue, instrument, level) append-only time-series: a
// bounded table of (start-time, end-time) pairs ordered by block number,
// plus the map of loaded blocks. At most one writer holds its key at a time;
// any number of readers may search and stream concurrently, in this process
// or another.
type Index struct {
	sys        *System
	id         string // Canonical "venue/instrument/level" identifier.
	venue      string
	instrument string
	level      Level
	dir        string // Directory holding the idx segment and the blocks.

	seg   *segment.Segment // Index segment: one 16-byte-stride array.
	table []byte           // The table array's full span, atomically accessed.

	blocks map[uint64]*Block // Loaded blocks keyed by number.
	key    uint64            // Writer key; nonzero iff write privileges held.
	refs   uint32            // Outstanding handles from System.Open.
}

// Identifier returns the canonical "venue/instrument/level" identifier.
func (idx *Index) Identifier() string { return idx.id }

// Level returns the index's row schema.
func (idx *Index) Level() Level { return idx.level }

// acquireWriteKey takes the on-disk write lease of the index segment and
// stamps a fresh nonzero nonce as the writer key. The lease stays held for
// the whole write session: it is what makes the key exclusive across
// processes.
func (idx *Index) acquireWriteKey() (uint64, error) {
	if idx.key != 0 {
		return 0, errors.NewStorageError(
			errors.ErrWriterHeld, errors.ErrorCodeWriteKey, "Index already opened for writing by this process",
		).WithIdentifier(idx.id)
	}
	if _, err := idx.seg.WriteAcquire(); err != nil {
		return 0, err
	}

	// The nonce only needs to be nonzero and unguessable enough to catch
	// callers replaying a stale key.
	buf := make([]byte, 0, len(idx.id)+16)
	buf = append(buf, idx.id...)
	buf = appendUint64(buf, uint64(os.Getpid()))
	buf = appendUint64(buf, uint64(time.Now().UnixNano()))
	key := xxh3.Hash(buf)
	if key == 0 {
		key = 1
	}
	idx.key = key
	return key, nil
}

// Close releases one handle on the index. A writer passes the key it was
// given at open; this releases the write privileges after verifying the
// key. Readers pass zero.
func (idx *Index) Close(key uint64) error {
	if key != 0 {
		if key != idx.key {
			return errors.NewStorageError(
				nil, errors.ErrorCodeWriteKey, "Writer key mismatch on close",
			).WithIdentifier(idx.id)
		}
		idx.key = 0
		if _, err := idx.seg.WriteRelease(); err != nil {
			return err
		}
	}
	return idx.sys.Release(idx)
}

// destroy drops the loaded blocks and closes the index segment. Called by
// the system when the last handle goes away.
func (idx *Index) destroy() error {
	var firstErr error
	for number, blk := range idx.blocks {
		if blk.refs != 0 {
			if firstErr == nil {
				firstErr = errors.NewStorageError(
					nil, errors.ErrorCodeInternal, "Index destroyed with a loaded block still referenced",
				).WithIdentifier(idx.id).WithBlock(number)
			}
			continue
		}
		if err := blk.seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(idx.blocks, number)
	}
	if err := idx.seg.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

/*
 * Index table access. Entries are two u64 words published with release
 * stores and read with acquire loads; the element count of the index
 * segment bounds what readers may touch.
 */

// tableCount returns the published number of table entries.
func (idx *Index) tableCount() uint64 {
	return idx.seg.Count()
}

// TableCount returns the published number of index-table entries.
func (idx *Index) TableCount() uint64 {
	return idx.tableCount()
}

// TableEntry returns entry i's (start, end) times with acquire loads.
func (idx *Index) TableEntry(i uint64) (start, end uint64) {
	return idx.tableStart(i), idx.tableEnd(i)
}

// tableStart reads entry i's start time with acquire semantics.
func (idx *Index) tableStart(i uint64) uint64 {
	return segment.WordAt(idx.table, uintptr(i*16)).Load()
}

// tableEnd reads entry i's end time with acquire semantics.
func (idx *Index) tableEnd(i uint64) uint64 {
	return segment.WordAt(idx.table, uintptr(i*16+8)).Load()
}

// tableSetStart publishes entry i's start time.
func (idx *Index) tableSetStart(i, start uint64) {
	segment.WordAt(idx.table, uintptr(i*16)).Store(start)
}

// tableSetEnd publishes entry i's end time.
func (idx *Index) tableSetEnd(i, end uint64) {
	segment.WordAt(idx.table, uintptr(i*16+8)).Store(end)
}

// Search locates the block containing time t by bisecting the table on end
// times: the smallest entry whose end time is >= t. Times falling in the
// gap between two blocks belong to the successor. It reports absent for
// times before the first block's start or after the last block's end.
func (idx *Index) Search(t uint64) (uint64, bool) {
	count := idx.tableCount()
	if count == 0 ||
		t < idx.tableStart(0) ||
		t > idx.tableEnd(count-1) {
		return 0, false
	}

	lo, hi := uint64(0), count
	for lo != hi {
		mid := lo + (hi-lo)/2
		if t > idx.tableEnd(mid) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, true
}

// Load returns the block containing time t, or reports absent. The caller
// owns one reference and must release it through Unload.
func (idx *Index) Load(t uint64) (*Block, bool, error) {
	number, ok := idx.Search(t)
	if !ok {
		return nil, false, nil
	}
	blk, err := idx.LoadNumber(number)
	if err != nil {
		return nil, false, err
	}
	return blk, true, nil
}

// LoadNumber returns the block with the given number, attaching its segment
// if this is the first load. The caller owns one reference.
func (idx *Index) LoadNumber(number uint64) (*Block, error) {
	return idx.loadBlock(number, false)
}

func (idx *Index) loadBlock(number uint64, create bool) (*Block, error) {
	if blk, ok := idx.blocks[number]; ok {
		blk.refs++
		return blk, nil
	}

	seg, err := segment.Attach(&segment.Config{
		Path:         filepath.Join(idx.dir, blockFileName(number)),
		Create:       create,
		Template:     idx.sys.blockTemplate(idx.id, number),
		RegionSizes:  idx.level.RegionSizes(),
		ElementSizes: idx.level.ElementSizes(),
		MaxElements:  idx.level.BlockRows(idx.sys.test),
		Logger:       idx.sys.log,
	})
	if err != nil {
		return nil, err
	}

	blk := &Block{idx: idx, number: number, seg: seg, refs: 1}
	idx.blocks[number] = blk
	return blk, nil
}

// Unload releases one reference on a loaded block.
func (idx *Index) Unload(blk *Block) {
	if blk.refs == 0 {
		panic("storage: block unloaded more times than loaded")
	}
	blk.refs--
}

// Next advances a read iteration to the block after blk, releasing blk
// either way. Iteration terminates (nil block) when no successor exists or
// when the successor's end time is beyond the iteration end.
func (idx *Index) Next(blk *Block, end uint64) (*Block, error) {
	number := blk.number
	idx.Unload(blk)

	count := idx.tableCount()
	next := number + 1
	if next >= count || end < idx.tableEnd(next) {
		return nil, nil
	}
	return idx.LoadNumber(next)
}

/*
 * Write path.
 */

// Append writes pre-sorted rows at the end of the stored data. The key must
// be the writer key returned at open. Rows are split across blocks as
// capacity runs out; a block created by this call gets its table entry
// published only once its first rows are on disk.
func (idx *Index) Append(key uint64, cols Columns) error {
	if key == 0 || key != idx.key {
		return errors.NewStorageError(
			nil, errors.ErrorCodeWriteKey, "Append without the index writer key",
		).WithIdentifier(idx.id)
	}
	if err := cols.check(idx.level); err != nil {
		return err
	}

	remaining := cols.rows()
	if remaining == 0 {
		return nil
	}
	times := cols.times()
	for i := uint64(1); i < remaining; i++ {
		if times[i] < times[i-1] {
			return errors.NewStorageError(
				nil, errors.ErrorCodeRowOrder, "Appended rows are not sorted by time",
			).WithIdentifier(idx.id).WithTime(times[i])
		}
	}

	tableMax := idx.seg.MaxElements()
	tableCount := idx.tableCount()

	// Resume in the last block if it still has room.
	var blk *Block
	var created bool
	var prevEnd uint64
	if tableCount > 0 {
		prevEnd = idx.tableEnd(tableCount - 1)
		last, err := idx.LoadNumber(tableCount - 1)
		if err != nil {
			return err
		}
		blk = last
	}

	var offset uint64
	for remaining > 0 {
		if blk == nil {
			if tableCount == tableMax {
				return errors.NewStorageError(
					nil, errors.ErrorCodeIndexTableFull, "Index table is full",
				).WithIdentifier(idx.id).WithDetail("capacity", tableMax)
			}
			var err error
			blk, err = idx.loadBlock(tableCount, true)
			if err != nil {
				return err
			}
			created = true
		}

		avail := blk.seg.MaxElements() - blk.seg.Count()
		if avail == 0 {
			// Only a pre-existing last block can be full here.
			idx.Unload(blk)
			blk, created = nil, false
			continue
		}

		n := min(remaining, avail)
		start := times[offset]
		end := times[offset+n-1]
		if start < prevEnd {
			idx.Unload(blk)
			return errors.NewStorageError(
				nil, errors.ErrorCodeRowOrder, "Appended rows start before the stored end time",
			).WithIdentifier(idx.id).WithTime(start).WithDetail("storedEnd", prevEnd)
		}

		if err := blk.write(cols, offset, n); err != nil {
			idx.Unload(blk)
			return err
		}

		if created {
			// Publish (start, end) at the table's tail, then commit the
			// +1 element so readers can see the entry.
			idx.tableSetStart(tableCount, start)
			idx.tableSetEnd(tableCount, end)
			if _, err := idx.seg.WriteDone(1); err != nil {
				idx.Unload(blk)
				return err
			}
			if err := idx.seg.WriteCommit(); err != nil {
				idx.Unload(blk)
				return err
			}
			tableCount++
		} else {
			idx.tableSetEnd(tableCount-1, end)
		}

		prevEnd = end
		remaining -= n
		offset += n
		idx.Unload(blk)
		blk, created = nil, false
	}
	return nil
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
