package orderbook

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIsAsk(t *testing.T) {
	require.True(t, IsAsk(1))
	require.True(t, IsAsk(10))
	require.True(t, IsAsk(float64(uint64(1)<<41)))
	require.True(t, IsAsk(1.3))
	require.False(t, IsAsk(-1))
	require.False(t, IsAsk(-10))
	require.False(t, IsAsk(-float64(uint64(1)<<41)))
	require.False(t, IsAsk(-1.3))
}

func TestSnapshotAccessors(t *testing.T) {
	s := NewSnapshot()
	s.SetStart(1_000_000_000)
	require.Equal(t, uint64(1_000_000_000), s.Start())
	require.Equal(t, uint64(1_000_000_000+1024), s.End())
	require.Equal(t, uint64(1_000_000_000+512), s.Mid())
	require.Len(t, s.Volumes(), SnapshotTicks)
}

func TestAddIntersections(t *testing.T) {
	src := []float64{1, 2, 3, 4}

	t.Run("full overlap", func(t *testing.T) {
		dst := make([]float64, 8)
		dropped := Add(dst, 100, 8, src, 102, 4)
		require.False(t, dropped)
		require.Equal(t, []float64{0, 0, 1, 2, 3, 4, 0, 0}, dst)
	})

	t.Run("src hangs off the left", func(t *testing.T) {
		dst := make([]float64, 8)
		dropped := Add(dst, 100, 8, src, 98, 4)
		require.True(t, dropped)
		require.Equal(t, []float64{3, 4, 0, 0, 0, 0, 0, 0}, dst)
	})

	t.Run("src hangs off the right", func(t *testing.T) {
		dst := make([]float64, 8)
		dropped := Add(dst, 100, 8, src, 106, 4)
		require.True(t, dropped)
		require.Equal(t, []float64{0, 0, 0, 0, 0, 0, 1, 2}, dst)
	})

	t.Run("no intersection", func(t *testing.T) {
		dst := make([]float64, 8)
		dropped := Add(dst, 100, 8, src, 200, 4)
		require.True(t, dropped)
		require.Equal(t, make([]float64, 8), dst)
	})
}

func TestAddUpdates(t *testing.T) {
	buf := make([]float64, 16)
	ticks := []uint64{101, 105, 99, 130}
	vols := []float64{-1, 2, -3, 4}

	tickMin, tickMax := AddUpdates(buf, 100, ticks, vols)
	require.Equal(t, uint64(99), tickMin)
	require.Equal(t, uint64(130), tickMax)
	require.Equal(t, float64(-1), buf[1])
	require.Equal(t, float64(2), buf[5])
	// 99 and 130 fall outside the window and are dropped.
	require.Equal(t, float64(0), buf[0])
}

func TestBestWorst(t *testing.T) {
	// Ticks:       100  101  102  103  104  105  106  107
	// Volumes:      -5    0   -1    0    2    0    7    0
	buf := []float64{-5, 0, -1, 0, 2, 0, 7, 0}

	bestBid, worstBid, bestAsk, worstAsk, inverted := BestWorst(buf, 100, 100, 108)
	require.Equal(t, uint64(102), bestBid)
	require.Equal(t, uint64(100), worstBid)
	require.Equal(t, uint64(104), bestAsk)
	require.Equal(t, uint64(106), worstAsk)
	require.False(t, inverted)
}

func TestBestWorstSingleSides(t *testing.T) {
	t.Run("bids only", func(t *testing.T) {
		buf := []float64{-5, -1, 0, 0}
		bestBid, worstBid, bestAsk, worstAsk, inverted := BestWorst(buf, 10, 10, 14)
		require.Equal(t, uint64(11), bestBid)
		require.Equal(t, uint64(10), worstBid)
		require.Equal(t, NoAsk, bestAsk)
		require.Equal(t, NoAsk, worstAsk)
		require.False(t, inverted)
	})

	t.Run("asks only", func(t *testing.T) {
		buf := []float64{0, 1, 5, 0}
		bestBid, worstBid, bestAsk, worstAsk, inverted := BestWorst(buf, 10, 10, 14)
		require.Equal(t, NoBid, bestBid)
		require.Equal(t, NoBid, worstBid)
		require.Equal(t, uint64(11), bestAsk)
		require.Equal(t, uint64(12), worstAsk)
		require.False(t, inverted)
	})

	t.Run("empty", func(t *testing.T) {
		buf := make([]float64, 4)
		bestBid, worstBid, bestAsk, worstAsk, inverted := BestWorst(buf, 10, 10, 14)
		require.Equal(t, NoBid, bestBid)
		require.Equal(t, NoBid, worstBid)
		require.Equal(t, NoAsk, bestAsk)
		require.Equal(t, NoAsk, worstAsk)
		require.False(t, inverted)
	})
}

func TestBestWorstInversion(t *testing.T) {
	// An ask below a bid in tick order.
	buf := []float64{3, 0, -2, 0}
	_, _, _, _, inverted := BestWorst(buf, 10, 10, 14)
	require.True(t, inverted)
}

func TestAnchor(t *testing.T) {
	t.Run("both sides", func(t *testing.T) {
		require.Equal(t, uint64(1000), Anchor(990, 1010, 700, 1024))
	})
	t.Run("bid only", func(t *testing.T) {
		require.Equal(t, uint64(990), Anchor(990, NoAsk, 700, 1024))
	})
	t.Run("ask only", func(t *testing.T) {
		require.Equal(t, uint64(1010), Anchor(NoBid, 1010, 700, 1024))
	})
	t.Run("neither side", func(t *testing.T) {
		require.Equal(t, uint64(700), Anchor(NoBid, NoAsk, 700, 1024))
	})
	t.Run("clamped", func(t *testing.T) {
		require.Equal(t, uint64(512), Anchor(100, 120, 512, 1024))
	})
}

// OBS round-trip: extracting a snapshot from a window and overlaying it onto
// an identically-positioned empty window reproduces the original values.
func TestSnapshotRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Uint64Range(1<<20, 1<<30).Draw(t, "start")

		window := make([]float64, SnapshotTicks)
		for i := range window {
			switch rapid.IntRange(0, 2).Draw(t, "side") {
			case 0:
				window[i] = -rapid.Float64Range(0.001, 1000).Draw(t, "bid")
			case 1:
				window[i] = rapid.Float64Range(0.001, 1000).Draw(t, "ask")
			}
		}

		s := NewSnapshot()
		s.SetStart(start)
		dropped := ExtractSnapshot(window, start, s)
		if dropped {
			t.Fatalf("identically positioned extraction dropped data")
		}

		back := make([]float64, SnapshotTicks)
		if AddSnapshot(back, start, s) {
			t.Fatalf("identically positioned overlay dropped data")
		}
		for i := range window {
			if back[i] != window[i] {
				t.Fatalf("tick %d: got %v want %v", i, back[i], window[i])
			}
		}
	})
}

func TestGenerateRecenters(t *testing.T) {
	const start = uint64(1_000_000_000)

	src := NewSnapshot()
	src.SetStart(start)
	vols := src.Volumes()
	// Bids below the mid, asks above: best bid at mid-1, best ask at mid+1.
	for i := 0; i < 500; i++ {
		vols[i] = -1
	}
	for i := 524; i < SnapshotTicks; i++ {
		vols[i] = 1
	}
	vols[511] = -2
	vols[513] = 3

	work := NewWork()
	dst := NewSnapshot()
	loss := Generate(dst, src, work, nil, nil)
	require.False(t, loss)

	// Anchor is the midpoint of best bid and best ask: the source mid.
	require.Equal(t, src.Mid(), dst.Mid())
	require.Equal(t, float64(-2), dst.Volumes()[511])
	require.Equal(t, float64(3), dst.Volumes()[513])
}

// OBS generation with loss: updates stretch the bid/ask span beyond 1024
// ticks; the new snapshot is centered at the midpoint of the new best
// bid/ask and the generator reports loss.
func TestGenerateWithLoss(t *testing.T) {
	const start = uint64(1_000_000_000)

	src := NewSnapshot()
	src.SetStart(start)
	vols := src.Volumes()
	vols[500] = -1 // best bid
	vols[520] = 1  // best ask

	// Push a bid far below and an ask far above the predecessor window.
	ticks := []uint64{start - 4000, start + 5000, start + 510, start + 514}
	upds := []float64{-2, 2, -3, 3}

	work := NewWork()
	dst := NewSnapshot()
	loss := Generate(dst, src, work, ticks, upds)
	require.True(t, loss)

	// New best bid start+510, new best ask start+514: anchored between.
	require.Equal(t, start+512, dst.Mid())
	require.Equal(t, float64(-3), dst.Volumes()[510])
	require.Equal(t, float64(3), dst.Volumes()[514])
}

func TestGenerateFromEmptyPredecessor(t *testing.T) {
	src := NewSnapshot()
	src.SetStart(1 << 20)

	ticks := []uint64{1<<20 + 100, 1<<20 + 104}
	upds := []float64{-1, 1}

	work := NewWork()
	dst := NewSnapshot()
	loss := Generate(dst, src, work, ticks, upds)
	require.False(t, loss)
	require.Equal(t, uint64(1<<20+102), dst.Mid())
	require.Equal(t, float64(-1), dst.Volumes()[510])
	require.Equal(t, float64(1), dst.Volumes()[514])
}
