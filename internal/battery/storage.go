package battery

import (
	"os"

	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/internal/storage"
)

// Storage runs the storage battery: the literal append-and-iterate
// scenario on a test-sized level-0 index. 6000 rows at two rows per unique
// time fill the 2000-entry table exactly; every row must stream back in
// order and every stored time must land in the first block holding it.
func Storage(p *Params, log *zap.SugaredLogger) (Result, error) {
	rec := newRecorder("stg", p, log)

	dir, err := os.MkdirTemp("", "tickvault-stg-*")
	if err != nil {
		return rec.result(), err
	}
	defer os.RemoveAll(dir)

	if err := storage.InitDir(dir); err != nil {
		return rec.result(), err
	}
	sys, err := storage.Attach(&storage.Config{Path: dir, Test: true, Logger: log})
	if err != nil {
		return rec.result(), err
	}
	defer sys.Close()

	idx, key, err := sys.Open("MKP", "IST", storage.Level0, true)
	if err != nil {
		return rec.result(), err
	}

	const rows = 6000
	t0 := uint64(1_000_000) + p.Seed%1_000_000
	times := make([]uint64, rows)
	bid := make([]float64, rows)
	ask := make([]float64, rows)
	avg := make([]float64, rows)
	vol := make([]float64, rows)
	for i := 0; i < rows; i++ {
		times[i] = t0 + uint64(i/2)*20
		bid[i] = float64(100 + i%7)
		ask[i] = float64(101 + i%7)
		avg[i] = 100.5
		vol[i] = float64(i + 1)
	}
	if err := idx.Append(key, storage.Level0Columns(times, bid, ask, avg, vol)); err != nil {
		return rec.result(), rec.asRunError(err)
	}

	if err := rec.check(idx.TableCount() == rows/3, "table entries %d, want %d", idx.TableCount(), rows/3); err != nil {
		return rec.result(), nil
	}

	// Table consistency and exact search.
	count := idx.TableCount()
	for i := uint64(0); i < count; i++ {
		start, end := idx.TableEntry(i)
		if err := rec.check(start <= end, "entry %d start %d > end %d", i, start, end); err != nil {
			return rec.result(), nil
		}
		if i+1 < count {
			nextStart, _ := idx.TableEntry(i + 1)
			if err := rec.check(end <= nextStart, "entry %d end %d > next start %d", i, end, nextStart); err != nil {
				return rec.result(), nil
			}
		}
	}
	for i, tm := range times {
		// A time pair can straddle a block boundary; search reports the
		// first block holding the time, the block of the pair's first row.
		want := uint64(i&^1) / 3
		number, ok := idx.Search(tm)
		if err := rec.check(ok && number == want, "search(%d) -> (%d,%v), want block %d", tm, number, ok, want); err != nil {
			return rec.result(), nil
		}
	}
	if _, ok := idx.Search(t0 - 1); ok {
		_ = rec.fatalf("search below the first block succeeded")
		return rec.result(), nil
	}
	if _, ok := idx.Search(times[rows-1] + 1); ok {
		_ = rec.fatalf("search beyond the last block succeeded")
		return rec.result(), nil
	}

	// Full iteration.
	reader, ok, err := idx.Read(t0-1, times[rows-1]+1)
	if err != nil || !ok {
		return rec.result(), rec.asRunError(err)
	}
	var streamed int
	for {
		cols, n, done, err := reader.Next()
		if err != nil {
			reader.Close()
			return rec.result(), rec.asRunError(err)
		}
		if done {
			break
		}
		if n == 0 {
			_ = rec.fatalf("reader stalled at row %d", streamed)
			break
		}
		for _, tm := range segment.U64s(cols[storage.ColTime]) {
			if err := rec.check(tm == times[streamed], "streamed row %d time %d, want %d", streamed, tm, times[streamed]); err != nil {
				reader.Close()
				return rec.result(), nil
			}
			streamed++
		}
	}
	reader.Close()
	_ = rec.check(streamed == rows, "streamed %d rows, want %d", streamed, rows)

	if err := idx.Close(key); err != nil {
		return rec.result(), err
	}
	return rec.result(), nil
}
