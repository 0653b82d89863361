package battery

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/internal/history"
)

// Generator is the capability set of the level-1 update generators: the
// batteries drive the engine through it, never through concrete generator
// state.
type Generator interface {
	// Init returns the initial book: resting volumes per price.
	Init() (prices, vols []float64)
	// TickUpdate returns one volume update for an existing price region.
	TickUpdate(now uint64) (price, vol float64)
	// BookUpdate returns one update that may empty a level.
	BookUpdate(now uint64) (price, vol float64)
	// Skip returns the time to jump forward by before the next batch.
	Skip() uint64
}

var _ Generator = (*bookGenerator)(nil)

// bookGenerator is the seeded random generator: a drifting book around a
// center tick, with emptied levels one time in five and batch jumps of
// 1..30 columns.
type bookGenerator struct {
	rng    *rand.Rand
	hist   *history.History
	res    uint64
	center uint64
}

func newBookGenerator(seed uint64, hist *history.History, res uint64) *bookGenerator {
	return &bookGenerator{
		rng:    rand.New(rand.NewSource(int64(seed))),
		hist:   hist,
		res:    res,
		center: 10_000,
	}
}

func (g *bookGenerator) Init() (prices, vols []float64) {
	for i := -18; i <= 18; i++ {
		if i == 0 {
			continue
		}
		vol := 1 + g.rng.Float64()*10
		if i < 0 {
			vol = -vol
		}
		prices = append(prices, float64(g.center)+float64(i))
		vols = append(vols, vol)
	}
	return prices, vols
}

func (g *bookGenerator) mid() uint64 {
	bid, ask := g.hist.BestCurrent()
	if bid != 0 && ask != ^uint64(0) {
		return (bid + ask) / 2
	}
	return g.center
}

func (g *bookGenerator) TickUpdate(now uint64) (price, vol float64) {
	mid := g.mid()
	tick := mid + uint64(g.rng.Intn(21)) - 10
	vol = 1 + g.rng.Float64()*10
	if tick < mid {
		vol = -vol
	}
	return float64(tick), vol
}

func (g *bookGenerator) BookUpdate(now uint64) (price, vol float64) {
	if g.rng.Intn(5) == 0 {
		mid := g.mid()
		return float64(mid + uint64(g.rng.Intn(21)) - 10), 0
	}
	return g.TickUpdate(now)
}

func (g *bookGenerator) Skip() uint64 {
	return uint64(g.rng.Intn(30)+1)*g.res + uint64(g.rng.Int63n(int64(g.res)))
}

// Level1 runs the reconstruction-engine battery: the initial-heatmap
// scenario at full geometry, then ten thousand generated updates driven
// through the prepare/add/process/clean cycle, with the heatmap checked
// against an independent from-scratch recomputation after every batch.
func Level1(p *Params, log *zap.SugaredLogger) (Result, error) {
	rec := newRecorder("lv1", p, log)
	const res = uint64(10_000_000)
	const rows, cols, curve = uint64(100), uint64(100), uint64(200)

	// Initial heatmap at full geometry.
	h, err := history.New(&history.Config{
		TimeResolution:  res,
		PriceResolution: 1,
		Rows:            rows,
		Columns:         cols,
		CurveLength:     curve,
		Logger:          log,
	})
	if err != nil {
		return rec.result(), err
	}

	timeCur := 37*res + 1
	if err := h.Prepare(timeCur); err != nil {
		return rec.result(), rec.asRunError(err)
	}

	gen := newBookGenerator(p.Seed, h, res)
	prices, vols := gen.Init()
	resting := make(map[uint64]float64, len(prices))
	for i, price := range prices {
		resting[h.PriceToTick(price)] = vols[i]
	}
	if err := h.AddInitial(prices, vols); err != nil {
		return rec.result(), rec.asRunError(err)
	}
	if err := h.Process(); err != nil {
		return rec.result(), rec.asRunError(err)
	}

	lo, hi := h.TickRange()
	for row := uint64(0); row < rows; row++ {
		want := resting[lo+row]
		for col := uint64(0); col < cols; col++ {
			if h.HeatmapAt(col, row) != want {
				_ = rec.fatalf("initial cell (%d,%d) = %v, want %v", col, row, h.HeatmapAt(col, row), want)
				return rec.result(), nil
			}
		}
	}
	_ = rec.check(hi-lo == rows, "tick range %d..%d", lo, hi)

	// Ten thousand generated updates, verified batch by batch.
	const total = 10_000
	const perBatch = 100
	fed := 0
	for fed < total {
		next := timeCur + gen.Skip()

		times := make([]uint64, 0, perBatch)
		batchPrices := make([]float64, 0, perBatch)
		batchVols := make([]float64, 0, perBatch)
		at := max(h.MaxTime(), timeCur)
		for i := 0; i < perBatch; i++ {
			span := next - at
			if span > 1 {
				at += uint64(gen.rng.Int63n(int64(span)))
			}
			if at >= h.AcceptanceEnd() {
				at = h.AcceptanceEnd() - 1
			}
			price, vol := gen.BookUpdate(at)
			times = append(times, at)
			batchPrices = append(batchPrices, price)
			batchVols = append(batchVols, vol)
		}
		if err := h.Add(times, batchPrices, batchVols); err != nil {
			return rec.result(), rec.asRunError(err)
		}
		fed += perBatch

		timeCur = next
		if err := h.Prepare(timeCur); err != nil {
			return rec.result(), rec.asRunError(err)
		}
		if err := h.Process(); err != nil {
			return rec.result(), rec.asRunError(err)
		}
		if err := verifyHeatmap(rec, h, res, cols); err != nil {
			return rec.result(), nil
		}

		if fed%(7*perBatch) == 0 {
			if err := h.Clean(); err != nil {
				return rec.result(), rec.asRunError(err)
			}
			if err := verifyHeatmap(rec, h, res, cols); err != nil {
				return rec.result(), nil
			}
		}
	}

	return rec.result(), nil
}

type refUpdate struct {
	time uint64
	vol  float64
}

// refCell computes the deterministic time-weighted average volume of a
// tick over one cell, independently of the engine's incremental path.
func refCell(volStart float64, upds []refUpdate, cellStart, cellEnd uint64) float64 {
	cur := volStart
	at := cellStart
	var total float64
	for _, u := range upds {
		if u.time <= at {
			cur = u.vol
			continue
		}
		if u.time >= cellEnd {
			break
		}
		total += cur * float64(u.time-at)
		at = u.time
		cur = u.vol
	}
	total += cur * float64(cellEnd-at)
	return total / float64(cellEnd-cellStart)
}

// verifyHeatmap compares every in-range heatmap cell to its independent
// recomputation over the engine's retained updates.
func verifyHeatmap(rec *recorder, h *history.History, res, cols uint64) error {
	lo, hi := h.TickRange()
	end := h.HeatmapEnd()

	for tick := lo; tick < hi; tick++ {
		row := tick - lo
		var volStart float64
		var upds []refUpdate
		if tck, ok := h.LookupTick(tick); ok {
			volStart = tck.StartVolume()
			tck.EachProcessed(func(tm uint64, vol float64) {
				upds = append(upds, refUpdate{tm, vol})
			})
		}
		for col := uint64(0); col < cols; col++ {
			// Cells that end at or before time zero precede every
			// update: the start volume held throughout.
			want := volStart
			if (cols-col)*res <= end {
				cellEnd := end - (cols-col-1)*res
				want = refCell(volStart, upds, cellEnd-res, cellEnd)
			}
			got := h.HeatmapAt(col, row)
			diff := want - got
			if diff < -1e-9 || diff > 1e-9 {
				return rec.fatalf("cell (%d,%d) tick %d = %v, want %v", col, row, tick, got, want)
			}
		}
	}
	return nil
}
