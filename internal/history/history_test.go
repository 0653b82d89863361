package history

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tickvault/pkg/errors"
	"github.com/iamNilotpal/tickvault/pkg/logger"
)

const testRes = uint64(10_000_000)

func testHistory(t *testing.T, rows, cols, curve uint64) *History {
	t.Helper()
	h, err := New(&Config{
		TimeResolution:  testRes,
		PriceResolution: 1,
		Rows:            rows,
		Columns:         cols,
		CurveLength:     curve,
		Logger:          logger.NewNop(),
	})
	require.NoError(t, err)
	return h
}

func TestNewValidatesGeometry(t *testing.T) {
	log := logger.NewNop()
	_, err := New(&Config{TimeResolution: 0, PriceResolution: 1, Rows: 2, Columns: 2, Logger: log})
	require.Error(t, err)

	_, err = New(&Config{TimeResolution: 1, PriceResolution: 1, Rows: 3, Columns: 2, Logger: log})
	require.Error(t, err)
	ve, ok := errors.AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, "Rows", ve.Field())

	_, err = New(&Config{TimeResolution: 1, PriceResolution: 0.0001, Rows: 2, Columns: 2, Logger: log})
	require.Error(t, err)
}

func TestPrepareMonotonicity(t *testing.T) {
	h := testHistory(t, 4, 4, 8)
	require.NoError(t, h.Prepare(100))
	err := h.Prepare(99)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeTimeRegression, errors.GetErrorCode(err))

	require.Equal(t, roundUpTo(100, testRes), h.HeatmapEnd())
	require.Equal(t, uint64(100)+8*testRes, h.AcceptanceEnd())
}

func TestAddRejectsBadTimes(t *testing.T) {
	h := testHistory(t, 4, 4, 8)
	require.NoError(t, h.Prepare(testRes+1))

	require.NoError(t, h.Add([]uint64{testRes + 2}, []float64{100}, []float64{-1}))

	// Below the last observed time.
	err := h.Add([]uint64{testRes + 1}, []float64{100}, []float64{-2})
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeTimeRegression, errors.GetErrorCode(err))

	// At or beyond the acceptance horizon.
	err = h.Add([]uint64{h.AcceptanceEnd()}, []float64{100}, []float64{-2})
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeTimeBeyondAcceptance, errors.GetErrorCode(err))
}

func TestAddInitialRequiresFreshTicks(t *testing.T) {
	h := testHistory(t, 4, 4, 8)
	require.NoError(t, h.Prepare(100))
	require.NoError(t, h.AddInitial([]float64{50}, []float64{-1}))

	err := h.AddInitial([]float64{50}, []float64{-2})
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeTickExists, errors.GetErrorCode(err))
}

// Heatmap initial state: initial ticks within a centered window; after the
// first process the whole heatmap reads the resting volumes, with zeros on
// rows carrying no tick.
func TestHeatmapInitial(t *testing.T) {
	const rows, cols, curve = uint64(100), uint64(100), uint64(200)
	h := testHistory(t, rows, cols, curve)

	timeCur := 37*testRes + 1
	require.NoError(t, h.Prepare(timeCur))

	// 37 ticks centered on 10_000: bids below, asks at and above.
	var prices, vols []float64
	resting := make(map[uint64]float64)
	for i := 0; i < 37; i++ {
		tick := uint64(9_982 + i)
		vol := float64(i + 1)
		if tick < 10_000 {
			vol = -vol
		}
		prices = append(prices, float64(tick))
		vols = append(vols, vol)
		resting[tick] = vol
	}
	require.NoError(t, h.AddInitial(prices, vols))

	bid, ask := h.BestCurrent()
	require.Equal(t, uint64(9_999), bid)
	require.Equal(t, uint64(10_000), ask)

	require.NoError(t, h.Prepare(timeCur))
	require.NoError(t, h.Process())

	// Anchored at the bid/ask midpoint.
	require.Equal(t, uint64(9_999), h.Anchor())
	lo, hi := h.TickRange()
	require.Equal(t, uint64(9_999-50), lo)
	require.Equal(t, uint64(9_999+50), hi)

	for row := uint64(0); row < rows; row++ {
		want := resting[lo+row]
		for col := uint64(0); col < cols; col++ {
			require.Equal(t, want, h.HeatmapAt(col, row),
				"cell (%d,%d) tick %d", col, row, lo+row)
		}
	}
}

/*
 * Independent heatmap recomputation, used by the propagation tests: the
 * deterministic time-weighted average over a tick's processed updates.
 */

type refUpdate struct {
	time uint64
	vol  float64
}

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

func verifyHeatmap(t *testing.T, h *History) {
	t.Helper()
	lo, hi := h.TickRange()
	end := h.HeatmapEnd()
	_, cols := h.rows, h.cols

	for tick := lo; tick < hi; tick++ {
		row := tick - lo

		var volStart float64
		var upds []refUpdate
		if tck, ok := h.LookupTick(tick); ok {
			volStart = tck.StartVolume()
			tck.EachProcessed(func(time uint64, vol float64) {
				upds = append(upds, refUpdate{time, vol})
			})
		}

		for col := uint64(0); col < cols; col++ {
			cellEnd := end - (cols-col-1)*h.res
			cellStart := cellEnd - h.res
			want := refCell(volStart, upds, cellStart, cellEnd)
			got := h.HeatmapAt(col, row)
			require.InDeltaf(t, want, got, 1e-9,
				"cell (%d,%d) tick %d window [%d,%d)", col, row, tick, cellStart, cellEnd)
		}
	}
}

// Heatmap propagation across re-anchors: random orderbook updates with
// time jumps of 1..30 columns; after every batch the heatmap matches an
// independent from-scratch recomputation over the retained updates.
func TestHeatmapMatchesRecomputation(t *testing.T) {
	const rows, cols, curve = uint64(40), uint64(20), uint64(64)
	h := testHistory(t, rows, cols, curve)

	rng := rand.New(rand.NewSource(1234))
	timeCur := testRes + 1
	require.NoError(t, h.Prepare(timeCur))

	// Seed a book around tick 10_000.
	var prices, vols []float64
	for i := -15; i <= 15; i++ {
		tick := 10_000 + i
		vol := 1 + rng.Float64()*10
		if i < 0 {
			vol = -vol
		}
		if i == 0 {
			continue
		}
		prices = append(prices, float64(tick))
		vols = append(vols, vol)
	}
	require.NoError(t, h.AddInitial(prices, vols))
	require.NoError(t, h.Process())
	verifyHeatmap(t, h)

	for batch := 0; batch < 60; batch++ {
		// Advance 1..30 columns.
		jump := uint64(rng.Intn(30)+1)*testRes + uint64(rng.Intn(int(testRes)))
		next := timeCur + jump

		// Updates between the current and the next time, drifting around
		// the mid.
		n := rng.Intn(12) + 1
		times := make([]uint64, n)
		prices := make([]float64, n)
		volumes := make([]float64, n)
		at := max(h.MaxTime(), timeCur)
		for i := 0; i < n; i++ {
			span := next - at
			if span > 1 {
				at += uint64(rng.Int63n(int64(span)))
			}
			bid, ask := h.BestCurrent()
			mid := uint64(10_000)
			if bid != 0 && ask != ^uint64(0) {
				mid = (bid + ask) / 2
			}
			tick := mid + uint64(rng.Intn(21)) - 10
			var vol float64
			switch rng.Intn(5) {
			case 0:
				vol = 0 // level emptied
			default:
				vol = 1 + rng.Float64()*10
				if tick < mid {
					vol = -vol
				}
			}
			// Acceptance horizon guard.
			if at >= h.AcceptanceEnd() {
				at = h.AcceptanceEnd() - 1
			}
			times[i] = at
			prices[i] = float64(tick)
			volumes[i] = vol
		}
		require.NoError(t, h.Add(times, prices, volumes))

		timeCur = next
		require.NoError(t, h.Prepare(timeCur))
		require.NoError(t, h.Process())
		verifyHeatmap(t, h)

		if batch%7 == 3 {
			require.NoError(t, h.Clean())
			verifyHeatmap(t, h)
		}
	}
}

// Cleanup boundary: surviving updates are strictly newer than the heatmap
// start; ticks destroyed by cleanup were idle.
func TestCleanBoundary(t *testing.T) {
	const rows, cols = uint64(8), uint64(4)
	h := testHistory(t, rows, cols, 16)

	timeCur := testRes + 1
	require.NoError(t, h.Prepare(timeCur))
	require.NoError(t, h.AddInitial([]float64{100, 104}, []float64{-1, 1}))

	// A tick that empties and goes idle: volume to zero, then time moves
	// far past the retention window.
	require.NoError(t, h.Add(
		[]uint64{timeCur + 1, timeCur + 2},
		[]float64{102, 102},
		[]float64{-5, 0},
	))
	require.NoError(t, h.Process())

	// Jump far enough that everything above falls out of retention.
	timeCur += (cols + 20) * testRes
	require.NoError(t, h.Prepare(timeCur))
	require.NoError(t, h.Process())
	require.NoError(t, h.Clean())

	hmpStart := h.HeatmapEnd() - cols*h.res
	h.RetainedUpdates(func(tick uint64, vol float64, tm uint64) {
		require.Greater(t, tm, hmpStart)
	})

	// Tick 102 went idle (zero volumes, no updates) and was destroyed;
	// 100 and 104 keep their resting volumes.
	_, ok := h.LookupTick(102)
	require.False(t, ok)
	tck, ok := h.LookupTick(100)
	require.True(t, ok)
	require.Equal(t, float64(-1), tck.CurrentVolume())
}

// Queue ordering invariant: retained updates are time-ordered.
func TestQueueOrdering(t *testing.T) {
	h := testHistory(t, 8, 4, 16)
	require.NoError(t, h.Prepare(testRes+1))

	base := testRes + 1
	require.NoError(t, h.Add(
		[]uint64{base + 1, base + 1, base + 5, base + 9},
		[]float64{100, 101, 100, 102},
		[]float64{-1, 1, -2, 2},
	))

	var last uint64
	h.RetainedUpdates(func(_ uint64, _ float64, tm uint64) {
		require.GreaterOrEqual(t, tm, last)
		last = tm
	})
}

func TestBestScanMovesToNextBid(t *testing.T) {
	h := testHistory(t, 8, 4, 0)
	require.NoError(t, h.Prepare(100))
	require.NoError(t, h.AddInitial(
		[]float64{100, 101, 103},
		[]float64{-4, -2, 3},
	))

	bid, ask := h.BestCurrent()
	require.Equal(t, uint64(101), bid)
	require.Equal(t, uint64(103), ask)

	// Empty the best bid: the scan walks down to the next bid.
	require.NoError(t, h.Prepare(102))
	require.NoError(t, h.Add([]uint64{101}, []float64{101}, []float64{0}))
	require.NoError(t, h.Process())

	bid, _ = h.BestCurrent()
	require.Equal(t, uint64(100), bid)
}
