package oracle

import (
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned when no price can be produced for a symbol.
var ErrUnavailable = errors.New("price unavailable")

// Quote is one observed price.
type Quote struct {
	Price      float64
	ObservedAt time.Time
}

// Oracle supplies the latest observed market price for a symbol.
// Implementations may be stale or unavailable; callers decide how to react
// (market orders reject, limit-order ticks skip, valuation falls back to
// the last known price).
type Oracle interface {
	LastPrice(symbol string) (Quote, error)
}

// Cached wraps a source oracle with a TTL cache so that one monitor or
// aggregator tick costs at most one upstream call per symbol.
// It also retains the last successfully observed quote per symbol beyond
// the TTL, exposed via LastKnown for stale-tolerant valuation.
type Cached struct {
	source Oracle
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]Quote // most recent successful quote per symbol
}

// NewCached creates a caching oracle with the given TTL
func NewCached(source Oracle, ttl time.Duration) *Cached {
	return &Cached{
		source: source,
		ttl:    ttl,
		cache:  make(map[string]Quote),
	}
}

// LastPrice returns the cached quote if still fresh, otherwise asks the
// source. A source failure does not evict the stale entry.
func (c *Cached) LastPrice(symbol string) (Quote, error) {
	c.mu.Lock()
	q, ok := c.cache[symbol]
	c.mu.Unlock()

	if ok && time.Since(q.ObservedAt) < c.ttl {
		return q, nil
	}

	fresh, err := c.source.LastPrice(symbol)
	if err != nil {
		return Quote{}, err
	}
	if fresh.Price <= 0 {
		return Quote{}, ErrUnavailable
	}
	if fresh.ObservedAt.IsZero() {
		fresh.ObservedAt = time.Now()
	}

	c.mu.Lock()
	c.cache[symbol] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// LastKnown returns the most recent successful quote for a symbol even if
// expired, and whether one exists.
func (c *Cached) LastKnown(symbol string) (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.cache[symbol]
	return q, ok
}

// Static is a fixed-price oracle for tests. Symbols without a price return
// ErrUnavailable.
type Static struct {
	mu     sync.Mutex
	prices map[string]float64
}

// NewStatic creates a static oracle from a symbol -> price map
func NewStatic(prices map[string]float64) *Static {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &Static{prices: cp}
}

func (s *Static) LastPrice(symbol string) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	if !ok || p <= 0 {
		return Quote{}, ErrUnavailable
	}
	return Quote{Price: p, ObservedAt: time.Now()}, nil
}

// Set updates a price (or removes it when p <= 0, simulating an outage).
func (s *Static) Set(symbol string, p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p <= 0 {
		delete(s.prices, symbol)
		return
	}
	s.prices[symbol] = p
}
