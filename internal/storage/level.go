package storage

import (
	"github.com/iamNilotpal/tickvault/internal/orderbook"
	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/pkg/errors"
)

// Level identifies the schema of an event row.
//
//	Level 0: per-minute aggregates  (time, bid, ask, avg, vol)
//	Level 1: per-tick volume updates (time, price, vol)
//	Level 2: per-order events        (time, order-id, trade-id, type, price, vol)
type Level uint8

const (
	Level0 Level = iota
	Level1
	Level2

	// LevelCount is the number of supported schemas.
	LevelCount = 3
)

// Column indexes shared by all levels: the time column always comes first.
const ColTime = 0

// Level 1 column indexes.
const (
	ColL1Price = 1
	ColL1Vol   = 2
)

// Level 2 column indexes.
const (
	ColL2OrderID = 1
	ColL2TradeID = 2
	ColL2Type    = 3
	ColL2Price   = 4
	ColL2Vol     = 5
)

// Level 0 column indexes.
const (
	ColL0Bid = 1
	ColL0Ask = 2
	ColL0Avg = 3
	ColL0Vol = 4
)

var levelElementSizes = [LevelCount][]byte{
	{8, 8, 8, 8, 8},    // time, bid, ask, avg, vol
	{8, 8, 8},          // time, prc, vol
	{8, 8, 8, 1, 8, 8}, // time, ord_id, trd_id, ord_typ, ord_prc, ord_vol
}

// Every block's region 0 holds its sync page: the second-tier flags live in
// its first words. Levels 1 and 2 add the orderbook snapshot region.
var levelRegionSizes = [LevelCount][]uint64{
	{segment.PageSize},
	{segment.PageSize, orderbook.RegionSize},
	{segment.PageSize, orderbook.RegionSize},
}

// Block sync region word offsets: the second-tier work-in-progress and done
// flags, each an atomic 64-bit word.
const (
	blockSyncWordWIP  = 0
	blockSyncWordDone = 8
)

// Valid reports whether the level is a supported schema.
func (l Level) Valid() bool {
	return l < LevelCount
}

// ArrayCount returns the number of parallel arrays of the level's schema.
func (l Level) ArrayCount() int {
	return len(levelElementSizes[l])
}

// ElementSizes returns the per-array element strides of the level's schema.
func (l Level) ElementSizes() []byte {
	return levelElementSizes[l]
}

// RegionSizes returns the auxiliary region sizes of the level's blocks.
func (l Level) RegionSizes() []uint64 {
	return levelRegionSizes[l]
}

// HasSnapshot reports whether the level's blocks carry an orderbook
// snapshot region.
func (l Level) HasSnapshot() bool {
	return l != Level0
}

// BlockRows returns the fixed row capacity of the level's blocks. Test mode
// shrinks blocks to three rows so rollover is reachable.
func (l Level) BlockRows(test bool) uint64 {
	if test {
		return 3
	}
	if l == Level0 {
		return 1 << 19
	}
	return 1 << 26
}

// IndexCapacity returns the fixed entry capacity of an index table.
func IndexCapacity(test bool) uint64 {
	if test {
		return 2000
	}
	return 22000
}

// checkLevel returns the fatal invalid-level error for out-of-range levels.
func checkLevel(l Level) error {
	if !l.Valid() {
		return errors.NewStorageError(
			nil, errors.ErrorCodeInvalidLevel, "Invalid storage level",
		).WithDetail("level", uint8(l)).WithDetail("max", LevelCount-1)
	}
	return nil
}
