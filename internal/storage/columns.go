package storage

import (
	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/pkg/errors"
)

// Columns carries the parallel source arrays of an append, one byte span
// per array in schema order. The time column is always first. The typed
// constructors below are the intended way to build one.
type Columns [][]byte

// Level0Columns builds the append columns for per-minute aggregates.
func Level0Columns(times []uint64, bid, ask, avg, vol []float64) Columns {
	return Columns{
		segment.U64Bytes(times),
		segment.F64Bytes(bid),
		segment.F64Bytes(ask),
		segment.F64Bytes(avg),
		segment.F64Bytes(vol),
	}
}

// Level1Columns builds the append columns for per-tick volume updates.
func Level1Columns(times []uint64, price, vol []float64) Columns {
	return Columns{
		segment.U64Bytes(times),
		segment.F64Bytes(price),
		segment.F64Bytes(vol),
	}
}

// Level2Columns builds the append columns for per-order events.
func Level2Columns(times, orderID, tradeID []uint64, typ []byte, price, vol []float64) Columns {
	return Columns{
		segment.U64Bytes(times),
		segment.U64Bytes(orderID),
		segment.U64Bytes(tradeID),
		typ,
		segment.F64Bytes(price),
		segment.F64Bytes(vol),
	}
}

// times views the first column as row times.
func (c Columns) times() []uint64 {
	return segment.U64s(c[ColTime])
}

// rows returns the row count carried by the columns.
func (c Columns) rows() uint64 {
	return uint64(len(c[ColTime])) / 8
}

// check verifies that the columns match the level's schema and agree on a
// single row count.
func (c Columns) check(level Level) error {
	sizes := level.ElementSizes()
	if len(c) != len(sizes) {
		return errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Column count does not match the level schema",
		).WithField("columns").WithProvided(len(c)).WithExpected(len(sizes))
	}
	rows := c.rows()
	for i, col := range c {
		if uint64(len(col)) != rows*uint64(sizes[i]) {
			return errors.NewValidationError(
				nil, errors.ErrorCodeInvalidInput, "Column length does not match the row count",
			).WithField("columns").WithProvided(len(col)).
				WithExpected(rows * uint64(sizes[i]))
		}
	}
	return nil
}
