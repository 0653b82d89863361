package battery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tickvault/pkg/logger"
)

func runBattery(t *testing.T, fn Func) Result {
	t.Helper()
	res, err := fn(&Params{Seed: 42, Workers: 2}, logger.NewNop())
	require.NoError(t, err)
	require.Zero(t, res.Failures, "%s: %d of %d checks failed", res.Name, res.Failures, res.Checks)
	return res
}

func TestReproBattery(t *testing.T) {
	runBattery(t, Repro)
}

func TestLevelBattery(t *testing.T) {
	res := runBattery(t, Level)
	require.NotZero(t, res.Checks)
}

func TestOrderbookBattery(t *testing.T) {
	res := runBattery(t, Orderbook)
	require.NotZero(t, res.Checks)
}

func TestStorageBattery(t *testing.T) {
	if testing.Short() {
		t.Skip("storage battery fills a 2000-block index")
	}
	res := runBattery(t, Storage)
	require.NotZero(t, res.Checks)
}

func TestLevel1Battery(t *testing.T) {
	if testing.Short() {
		t.Skip("level-1 battery drives ten thousand updates")
	}
	res := runBattery(t, Level1)
	require.NotZero(t, res.Checks)
}

func TestSegmentBattery(t *testing.T) {
	if testing.Short() {
		t.Skip("segment battery maps a multi-gigabyte file")
	}
	res := runBattery(t, Segment)
	require.NotZero(t, res.Checks)
}
