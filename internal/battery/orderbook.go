package battery

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/internal/orderbook"
)

// Orderbook runs the snapshot-utility battery: side classification, seeded
// round-trips between windows and snapshots, and the generation scenario
// where updates stretch the bid/ask span beyond the snapshot window.
func Orderbook(p *Params, log *zap.SugaredLogger) (Result, error) {
	rec := newRecorder("obk", p, log)
	rng := rand.New(rand.NewSource(int64(p.Seed)))

	// Side classification over magnitudes from fractions to 2^41.
	for _, vol := range []float64{1, 10, float64(uint64(1) << 41), 1.3} {
		if err := rec.check(orderbook.IsAsk(vol), "IsAsk(%v) = false", vol); err != nil {
			return rec.result(), nil
		}
		if err := rec.check(!orderbook.IsAsk(-vol), "IsAsk(%v) = true", -vol); err != nil {
			return rec.result(), nil
		}
	}

	// Round-trips: a random window extracted into a snapshot and overlaid
	// back reproduces itself exactly.
	for iter := 0; iter < 64; iter++ {
		start := uint64(1<<30) + uint64(rng.Int63n(1<<20))
		window := make([]float64, orderbook.SnapshotTicks)
		mid := rng.Intn(orderbook.SnapshotTicks)
		for i := range window {
			vol := 0.001 + rng.Float64()*1000
			switch {
			case i < mid:
				window[i] = -vol
			case i > mid:
				window[i] = vol
			}
		}

		snap := orderbook.NewSnapshot()
		snap.SetStart(start)
		if err := rec.check(!orderbook.ExtractSnapshot(window, start, snap), "aligned extraction dropped data"); err != nil {
			return rec.result(), nil
		}
		back := make([]float64, orderbook.SnapshotTicks)
		if err := rec.check(!orderbook.AddSnapshot(back, start, snap), "aligned overlay dropped data"); err != nil {
			return rec.result(), nil
		}
		for i := range window {
			if back[i] != window[i] {
				_ = rec.fatalf("round-trip mismatch at tick %d: %v != %v", i, back[i], window[i])
				return rec.result(), nil
			}
		}
	}

	// Generation with loss: a predecessor snapshot at 10^9 plus updates
	// spanning more than the snapshot window.
	src := orderbook.NewSnapshot()
	src.SetStart(1_000_000_000)
	src.Volumes()[500] = -1
	src.Volumes()[524] = 1

	base := src.Start()
	ticks := []uint64{base - 3000, base + 4000, base + 511, base + 513}
	vols := []float64{-2, 2, -3, 3}

	work := orderbook.NewWork()
	dst := orderbook.NewSnapshot()
	loss := orderbook.Generate(dst, src, work, ticks, vols)
	if err := rec.check(loss, "overspanning generation reported no loss"); err != nil {
		return rec.result(), nil
	}
	_ = rec.check(dst.Mid() == base+512, "lossy snapshot mid %d, want %d", dst.Mid(), base+512)
	_ = rec.check(dst.Volumes()[511] == -3, "lossy snapshot best bid volume %v", dst.Volumes()[511])
	_ = rec.check(dst.Volumes()[513] == 3, "lossy snapshot best ask volume %v", dst.Volumes()[513])

	return rec.result(), nil
}
