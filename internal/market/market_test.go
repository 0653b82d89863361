package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLookups(t *testing.T) {
	reg := NewRegistry()

	usd, err := reg.Currency("USD")
	require.NoError(t, err)
	require.Equal(t, "us-dollar", usd.Name)

	_, err = reg.Currency("XXX")
	require.ErrorIs(t, err, ErrUnknownCurrency)

	nyse, err := reg.Venue("NYSE")
	require.NoError(t, err)
	require.Equal(t, "USD", nyse.Quote)

	_, err = reg.Venue("NOPE")
	require.ErrorIs(t, err, ErrUnknownVenue)

	// Every venue quotes in a registered currency.
	for _, venue := range venues {
		_, err := reg.Currency(venue.Quote)
		require.NoError(t, err, "venue %s", venue.Symbol)
	}
}

func TestInstrumentVariants(t *testing.T) {
	reg := NewRegistry()
	nyse, err := reg.Venue("NYSE")
	require.NoError(t, err)
	chf, err := reg.Currency("CHF")
	require.NoError(t, err)

	share := NewShare(nyse, "ACME")
	require.Equal(t, KindShare, share.Kind)
	require.Equal(t, "ACME", share.Identifier())
	require.Equal(t, "(SHR NYSE:ACME)", share.String())

	pair := NewCurrencyPair(nyse, chf)
	require.Equal(t, KindCurrencyPair, pair.Kind)
	require.Equal(t, "CHF", pair.Identifier())
	require.Equal(t, "(CCY NYSE:CHF)", pair.String())
}
