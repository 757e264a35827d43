package oracle

import (
	"math/rand"
	"sync"
	"time"
)

// SimFeed is a random-walk price source used when no external feed is
// wired in. Each lookup advances the symbol's price by a small random step
// around its previous value, so limit orders trigger organically during
// local runs. Unknown symbols return ErrUnavailable.
type SimFeed struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	drift  float64 // max fractional step per lookup
}

// DefaultSeedPrices are plausible starting prices for the supported symbols.
var DefaultSeedPrices = map[string]float64{
	"BTC":  65000,
	"ETH":  3200,
	"SOL":  150,
	"BNB":  580,
	"XRP":  0.62,
	"DOGE": 0.14,
}

// NewSimFeed creates a random-walk feed seeded with the given prices
func NewSimFeed(seed map[string]float64) *SimFeed {
	prices := make(map[string]float64, len(seed))
	for k, v := range seed {
		prices[k] = v
	}
	return &SimFeed{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: prices,
		drift:  0.002, // ±0.2% per lookup
	}
}

func (f *SimFeed) LastPrice(symbol string) (Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.prices[symbol]
	if !ok {
		return Quote{}, ErrUnavailable
	}

	step := 1 + (f.rng.Float64()*2-1)*f.drift
	p *= step
	f.prices[symbol] = p

	return Quote{Price: p, ObservedAt: time.Now()}, nil
}
