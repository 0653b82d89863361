package tickvault

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tickvault/internal/market"
	"github.com/iamNilotpal/tickvault/internal/storage"
	"github.com/iamNilotpal/tickvault/pkg/options"
)

func testInstance(t *testing.T) (*Instance, market.Instrument) {
	t.Helper()
	inst, err := NewInstance("tickvault-test",
		options.WithDataDir(t.TempDir()),
		options.WithTestSizing(),
		options.WithTimeResolution(10),
		options.WithPriceResolution(1),
		options.WithHeatmapSize(16, 4),
		options.WithCurveLength(16),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })

	venue, err := inst.Registry().Venue("MKP")
	require.NoError(t, err)
	return inst, market.NewShare(venue, "ACME")
}

func TestIngestAndReconstruct(t *testing.T) {
	inst, acme := testInstance(t)

	idx, key, err := inst.Open(acme, Level1, true)
	require.NoError(t, err)
	require.NotZero(t, key)

	var times []uint64
	var prices, vols []float64
	tm := uint64(16)
	for i := 0; i < 30; i++ {
		tm += 7
		tick := 998 + uint64(i%5)
		vol := 1 + float64(i%3)
		if tick < 1000 {
			vol = -vol
		}
		times = append(times, tm)
		prices = append(prices, float64(tick))
		vols = append(vols, vol)
	}
	require.NoError(t, idx.Append(key, storage.Level1Columns(times, prices, vols)))
	require.NoError(t, idx.Close(key))

	r, err := inst.Reconstruct(acme, 150)
	require.NoError(t, err)
	defer r.Close()

	h := r.History()
	require.Equal(t, uint64(150), h.CurrentTime())
	bid, ask := h.BestCurrent()
	require.Less(t, bid, ask)

	require.NoError(t, r.Advance(260))
	require.Equal(t, uint64(260), r.CurrentTime())
}

func TestInstanceSharesIndexes(t *testing.T) {
	inst, acme := testInstance(t)

	a, _, err := inst.Open(acme, Level1, false)
	require.NoError(t, err)
	b, _, err := inst.Open(acme, Level1, false)
	require.NoError(t, err)
	require.Same(t, a, b)

	require.NoError(t, a.Close(0))
	require.NoError(t, b.Close(0))
}
