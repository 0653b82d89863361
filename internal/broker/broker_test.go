package broker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimulatedLifecycle(t *testing.T) {
	var b Broker = NewSimulated(10)
	b.SetTime(100)

	id, err := b.Place(101.5, -3)
	require.NoError(t, err)

	order, err := b.Status(id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.Equal(t, uint64(100), order.Time)

	// Not filled before the latency elapses.
	b.SetTime(105)
	order, err = b.Status(id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)

	b.SetTime(110)
	order, err = b.Status(id)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)

	// Cancelling a filled order is a no-op.
	require.NoError(t, b.Cancel(id))
	order, _ = b.Status(id)
	require.Equal(t, StatusFilled, order.Status)
}

func TestSimulatedCancelAndReset(t *testing.T) {
	b := NewSimulated(1000)
	b.SetTime(1)

	id, err := b.Place(99, 2)
	require.NoError(t, err)
	require.NoError(t, b.Cancel(id))
	order, err := b.Status(id)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, order.Status)

	require.ErrorIs(t, b.Cancel(id+1), ErrUnknownOrder)

	b.Reset()
	_, err = b.Status(id)
	require.ErrorIs(t, err, ErrUnknownOrder)
}
