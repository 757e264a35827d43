package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingOracle records how many times the source is hit per symbol.
type countingOracle struct {
	inner *Static
	calls map[string]int
}

func (c *countingOracle) LastPrice(symbol string) (Quote, error) {
	c.calls[symbol]++
	return c.inner.LastPrice(symbol)
}

func TestCachedServesFromCacheWithinTTL(t *testing.T) {
	src := &countingOracle{inner: NewStatic(map[string]float64{"BTC": 50000}), calls: map[string]int{}}
	px := NewCached(src, time.Minute)

	q1, err := px.LastPrice("BTC")
	require.NoError(t, err)
	q2, err := px.LastPrice("BTC")
	require.NoError(t, err)

	assert.Equal(t, q1.Price, q2.Price)
	assert.Equal(t, 1, src.calls["BTC"], "second lookup should hit the cache")
}

func TestCachedExpiredTTLRefetches(t *testing.T) {
	src := &countingOracle{inner: NewStatic(map[string]float64{"BTC": 50000}), calls: map[string]int{}}
	px := NewCached(src, 0) // everything is immediately expired

	_, err := px.LastPrice("BTC")
	require.NoError(t, err)
	_, err = px.LastPrice("BTC")
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls["BTC"])
}

func TestCachedRetainsLastKnownThroughOutage(t *testing.T) {
	src := NewStatic(map[string]float64{"ETH": 3000})
	px := NewCached(src, 0)

	_, err := px.LastPrice("ETH")
	require.NoError(t, err)

	src.Set("ETH", 0) // outage
	_, err = px.LastPrice("ETH")
	assert.ErrorIs(t, err, ErrUnavailable)

	known, ok := px.LastKnown("ETH")
	require.True(t, ok, "last known quote should survive the outage")
	assert.Equal(t, 3000.0, known.Price)

	_, ok = px.LastKnown("DOGE")
	assert.False(t, ok, "never-observed symbol has no last known quote")
}

func TestStaticUnknownSymbol(t *testing.T) {
	px := NewStatic(map[string]float64{"BTC": 50000})
	_, err := px.LastPrice("SHIB")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSimFeedRandomWalk(t *testing.T) {
	feed := NewSimFeed(map[string]float64{"BTC": 50000})

	prev := 50000.0
	for i := 0; i < 100; i++ {
		q, err := feed.LastPrice("BTC")
		require.NoError(t, err)
		assert.Positive(t, q.Price)
		// Single step stays within the drift bound.
		assert.InDelta(t, prev, q.Price, prev*0.0021)
		prev = q.Price
	}

	_, err := feed.LastPrice("SHIB")
	assert.ErrorIs(t, err, ErrUnavailable)
}
