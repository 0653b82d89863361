package history

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tickvault/pkg/logger"
)

// Bid-curve propagation, step by step: a filled bucket holds the max best
// observed within it, buckets the previous best reigned over get it
// propagated, trailing buckets keep the sentinel.
func TestBidCurvePropagation(t *testing.T) {
	h, err := New(&Config{
		TimeResolution:  10,
		PriceResolution: 1,
		Rows:            4,
		Columns:         4,
		CurveLength:     8,
		Logger:          logger.NewNop(),
	})
	require.NoError(t, err)

	require.NoError(t, h.Prepare(101))
	require.Equal(t, uint64(11), h.CurveAID())
	for _, cell := range h.BidCurve() {
		require.Equal(t, noBid, cell)
	}
	for _, cell := range h.AskCurve() {
		require.Equal(t, noAsk, cell)
	}

	// First bid appears before the curve window: observed, nothing drawn.
	require.NoError(t, h.Add([]uint64{105}, []float64{1000}, []float64{-1}))
	bid, _ := h.BestMax()
	require.Equal(t, uint64(1000), bid)
	for _, cell := range h.BidCurve() {
		require.Equal(t, noBid, cell)
	}

	// Better bid at t=126: the old best reigns over buckets 11 and 12,
	// the new best wins bucket 12 by extremum.
	require.NoError(t, h.Add([]uint64{126}, []float64{1002}, []float64{-1}))
	require.Equal(t, uint64(1000), h.BidCurve()[0]) // bucket 11
	require.Equal(t, uint64(1002), h.BidCurve()[1]) // bucket 12
	require.Equal(t, noBid, h.BidCurve()[2])

	// A lower bid doesn't move the best and draws nothing.
	require.NoError(t, h.Add([]uint64{128}, []float64{1001}, []float64{-3}))
	require.Equal(t, uint64(1002), h.BidCurve()[1])

	// The best empties at t=133: the scan falls back to 1001, bucket 13
	// keeps the outgoing best as its extremum.
	require.NoError(t, h.Add([]uint64{133}, []float64{1002}, []float64{0}))
	bid, _ = h.BestMax()
	require.Equal(t, uint64(1001), bid)
	require.Equal(t, uint64(1002), h.BidCurve()[2]) // bucket 13
	for _, cell := range h.BidCurve()[3:] {
		require.Equal(t, noBid, cell)
	}

	// Sliding the grid drops past buckets and re-sentinels the tail.
	require.NoError(t, h.Prepare(151))
	require.Equal(t, uint64(16), h.CurveAID())
	for _, cell := range h.BidCurve() {
		require.Equal(t, noBid, cell)
	}
}

func TestAskCurvePropagation(t *testing.T) {
	h, err := New(&Config{
		TimeResolution:  10,
		PriceResolution: 1,
		Rows:            4,
		Columns:         4,
		CurveLength:     8,
		Logger:          logger.NewNop(),
	})
	require.NoError(t, err)

	require.NoError(t, h.Prepare(101))

	// Asks: 2000 at t=112, improved to 1990 at t=127, both in window.
	require.NoError(t, h.Add([]uint64{112}, []float64{2000}, []float64{5}))
	require.Equal(t, uint64(2000), h.AskCurve()[0])

	require.NoError(t, h.Add([]uint64{127}, []float64{1990}, []float64{5}))
	// Bucket 11 closed under 2000; bucket 12 takes the min of its
	// entering best (2000) and the new one.
	require.Equal(t, uint64(2000), h.AskCurve()[0])
	require.Equal(t, uint64(1990), h.AskCurve()[1])
	for _, cell := range h.AskCurve()[2:] {
		require.Equal(t, noAsk, cell)
	}

	_, ask := h.BestMax()
	require.Equal(t, uint64(1990), ask)
}

func TestCurveSlideKeepsOverlap(t *testing.T) {
	h, err := New(&Config{
		TimeResolution:  10,
		PriceResolution: 1,
		Rows:            4,
		Columns:         4,
		CurveLength:     8,
		Logger:          logger.NewNop(),
	})
	require.NoError(t, err)

	require.NoError(t, h.Prepare(101))
	// Emissions across buckets 11..14.
	require.NoError(t, h.Add([]uint64{111}, []float64{1000}, []float64{-1}))
	require.NoError(t, h.Add([]uint64{145}, []float64{1001}, []float64{-1}))
	require.Equal(t, uint64(1000), h.BidCurve()[0])
	require.Equal(t, uint64(1000), h.BidCurve()[1])
	require.Equal(t, uint64(1000), h.BidCurve()[2])
	require.Equal(t, uint64(1001), h.BidCurve()[3])

	// One-bucket slide: cells move left one slot.
	require.NoError(t, h.Prepare(111))
	require.Equal(t, uint64(12), h.CurveAID())
	require.Equal(t, uint64(1000), h.BidCurve()[0])
	require.Equal(t, uint64(1000), h.BidCurve()[1])
	require.Equal(t, uint64(1001), h.BidCurve()[2])
	require.Equal(t, noBid, h.BidCurve()[3])
}
