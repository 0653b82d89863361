package battery

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/internal/orderbook"
	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/internal/storage"
)

// Level runs the level-constants battery: the per-level schemas, block
// capacities and region layouts the on-disk format depends on. A drift in
// any of these silently corrupts every existing archive, which is why they
// get their own battery instead of living only in unit tests.
func Level(p *Params, log *zap.SugaredLogger) (Result, error) {
	rec := newRecorder("lvl", p, log)

	type want struct {
		arrays  int
		strides []byte
		rows    uint64
		regions int
		obs     bool
	}
	wants := map[storage.Level]want{
		storage.Level0: {5, []byte{8, 8, 8, 8, 8}, 1 << 19, 1, false},
		storage.Level1: {3, []byte{8, 8, 8}, 1 << 26, 2, true},
		storage.Level2: {6, []byte{8, 8, 8, 1, 8, 8}, 1 << 26, 2, true},
	}

	for level, w := range wants {
		if err := rec.check(level.Valid(), "level %d invalid", level); err != nil {
			return rec.result(), nil
		}
		_ = rec.check(level.ArrayCount() == w.arrays,
			"level %d arrays %d, want %d", level, level.ArrayCount(), w.arrays)

		strides := level.ElementSizes()
		ok := len(strides) == len(w.strides)
		for i := range strides {
			ok = ok && strides[i] == w.strides[i]
		}
		_ = rec.check(ok, "level %d strides %v, want %v", level, strides, w.strides)

		_ = rec.check(level.BlockRows(false) == w.rows,
			"level %d rows %d, want %d", level, level.BlockRows(false), w.rows)
		_ = rec.check(level.BlockRows(true) == 3,
			"level %d test rows %d, want 3", level, level.BlockRows(true))

		regions := level.RegionSizes()
		_ = rec.check(len(regions) == w.regions,
			"level %d regions %d, want %d", level, len(regions), w.regions)
		_ = rec.check(regions[0] == segment.PageSize,
			"level %d sync region %d, want %d", level, regions[0], segment.PageSize)
		_ = rec.check(level.HasSnapshot() == w.obs,
			"level %d snapshot presence %v", level, level.HasSnapshot())
		if w.obs {
			_ = rec.check(regions[1] == orderbook.RegionSize,
				"level %d snapshot region %d, want %d", level, regions[1], orderbook.RegionSize)
		}
	}

	_ = rec.check(!storage.Level(3).Valid(), "level 3 accepted")
	_ = rec.check(storage.IndexCapacity(false) == 22000,
		"index capacity %d, want 22000", storage.IndexCapacity(false))
	_ = rec.check(storage.IndexCapacity(true) == 2000,
		"test index capacity %d, want 2000", storage.IndexCapacity(true))
	_ = rec.check(orderbook.RegionSize == 8+1024*8,
		"snapshot region size %d", orderbook.RegionSize)

	return rec.result(), nil
}
