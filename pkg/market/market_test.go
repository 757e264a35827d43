package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommissionFee(t *testing.T) {
	fees := Commission{Rate: 0.001, Min: 0.1}

	assert.Equal(t, 5.0, fees.Fee(5000), "0.1%% of 5000")
	assert.Equal(t, 0.1, fees.Fee(50), "floor applies below 100 notional")
	assert.Equal(t, 0.1, fees.Fee(0))
}

func TestCommissionReserve(t *testing.T) {
	fees := Commission{Rate: 0.001, Min: 0.1}

	// Reserve covers notional plus the worst-case fee.
	assert.Equal(t, 5005.0, fees.Reserve(5000))
	assert.Equal(t, 50.1, fees.Reserve(50))
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	assert.Equal(t, 6, reg.Count())
	for _, symbol := range []string{"BTC", "ETH", "SOL", "BNB", "XRP", "DOGE"} {
		assert.True(t, reg.Exists(symbol), symbol)
	}

	btc, err := reg.Get("BTC")
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", btc.Name)

	_, err = reg.Get("SHIB")
	assert.Error(t, err)
}

func TestRegistryRegisterAndList(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Listing{Symbol: "BTC", Name: "Bitcoin"}))
	require.NoError(t, reg.Register(&Listing{Symbol: "ETH", Name: "Ethereum"}))

	// Duplicate symbols are rejected.
	assert.Error(t, reg.Register(&Listing{Symbol: "BTC", Name: "Bitcoin"}))

	assert.Len(t, reg.List(), 2)
	assert.Equal(t, 2, reg.Count())
}
