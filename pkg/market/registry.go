package market

import (
	"fmt"
	"sync"
)

// Registry manages tradable symbols in a thread-safe manner.
// Orders against unlisted symbols are rejected at admission.
type Registry struct {
	mu       sync.RWMutex
	listings map[string]*Listing // symbol -> listing
}

// NewRegistry creates an empty symbol registry
func NewRegistry() *Registry {
	return &Registry{
		listings: make(map[string]*Listing),
	}
}

// DefaultRegistry returns a registry pre-populated with the supported
// crypto symbols.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, l := range []Listing{
		{Symbol: "BTC", Name: "Bitcoin"},
		{Symbol: "ETH", Name: "Ethereum"},
		{Symbol: "SOL", Name: "Solana"},
		{Symbol: "BNB", Name: "BNB"},
		{Symbol: "XRP", Name: "XRP"},
		{Symbol: "DOGE", Name: "Dogecoin"},
	} {
		listing := l
		r.listings[l.Symbol] = &listing
	}
	return r
}

// Register adds a new listing to the registry
// Returns error if a listing with the same symbol already exists
func (r *Registry) Register(l *Listing) error {
	if l == nil {
		return fmt.Errorf("cannot register nil listing")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listings[l.Symbol]; exists {
		return fmt.Errorf("symbol %s already registered", l.Symbol)
	}

	r.listings[l.Symbol] = l
	return nil
}

// Get retrieves a listing by symbol
// Returns error if symbol not found
func (r *Registry) Get(symbol string) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, exists := r.listings[symbol]
	if !exists {
		return nil, fmt.Errorf("symbol %s not listed", symbol)
	}

	return l, nil
}

// List returns all registered listings
// Returns a copy of the slice to avoid concurrent modification
func (r *Registry) List() []*Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listings := make([]*Listing, 0, len(r.listings))
	for _, l := range r.listings {
		listings = append(listings, l)
	}

	return listings
}

// Exists checks if a symbol is registered
func (r *Registry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.listings[symbol]
	return exists
}

// Count returns the total number of registered symbols
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listings)
}
