package engine

import (
	"fmt"

	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/market"
)

// OrderRequest is an order submission before admission.
type OrderRequest struct {
	Symbol     string
	Side       ledger.Side
	Type       ledger.OrderType
	Quantity   float64
	LimitPrice float64 // required for LIMIT, ignored for MARKET
}

// ExecPlan describes how an admitted order executes: the full remaining
// quantity in one shot at a single price. There is no order book, so
// counter-liquidity never splits a fill.
type ExecPlan struct {
	Price      float64
	Quantity   float64
	Notional   float64
	Commission float64
}

// Matcher is the stateless matching engine. It owns admission rules, fill
// conditions, and execution planning; it performs no I/O and holds no
// account state, which keeps it unit-testable without concurrency concerns.
type Matcher struct {
	listings *market.Registry
	fees     market.Commission
}

// NewMatcher creates a matcher with the given symbol registry and fee schedule
func NewMatcher(listings *market.Registry, fees market.Commission) *Matcher {
	return &Matcher{listings: listings, fees: fees}
}

// Fees returns the fee schedule the matcher applies.
func (m *Matcher) Fees() market.Commission { return m.fees }

// Listing resolves a symbol to its registry entry.
func (m *Matcher) Listing(symbol string) (*market.Listing, error) {
	return m.listings.Get(symbol)
}

// ValidateRequest checks input shape before any ledger state is consulted.
func (m *Matcher) ValidateRequest(req OrderRequest) error {
	if req.Side != ledger.Buy && req.Side != ledger.Sell {
		return fmt.Errorf("%w: unknown side %q", ledger.ErrValidation, req.Side)
	}
	if req.Type != ledger.Market && req.Type != ledger.Limit {
		return fmt.Errorf("%w: unknown order type %q", ledger.ErrValidation, req.Type)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ledger.ErrValidation)
	}
	if req.Type == ledger.Limit && req.LimitPrice <= 0 {
		return fmt.Errorf("%w: limit orders require a positive price", ledger.ErrValidation)
	}
	if !m.listings.Exists(req.Symbol) {
		return fmt.Errorf("%w: symbol %s not listed", ledger.ErrValidation, req.Symbol)
	}
	return nil
}

// AdmitBuy checks that spendable cash covers the order at the reference
// price (limit price for LIMIT, current oracle price for MARKET), including
// the worst-case commission so a fill can never drive cash negative.
func (m *Matcher) AdmitBuy(req OrderRequest, refPrice, currentCash float64) error {
	required := m.fees.Reserve(req.Quantity * refPrice)
	if required > currentCash {
		return fmt.Errorf("%w: need %.2f, have %.2f", ledger.ErrInsufficientFunds, required, currentCash)
	}
	return nil
}

// AdmitSell checks that the symbol's unreserved holding covers the order.
func (m *Matcher) AdmitSell(req OrderRequest, available float64) error {
	if req.Quantity > available {
		return fmt.Errorf("%w: need %f, have %f available", ledger.ErrInsufficientPosition, req.Quantity, available)
	}
	return nil
}

// Reserve returns the cash to freeze for a BUY limit order.
func (m *Matcher) Reserve(limitPrice, quantity float64) float64 {
	return m.fees.Reserve(limitPrice * quantity)
}

// ShouldFill reports whether a resting limit order triggers at the current
// price: BUY at or below the limit, SELL at or above it.
func (m *Matcher) ShouldFill(side ledger.Side, limitPrice, currentPrice float64) bool {
	if currentPrice <= 0 {
		return false
	}
	switch side {
	case ledger.Buy:
		return currentPrice <= limitPrice
	case ledger.Sell:
		return currentPrice >= limitPrice
	default:
		return false
	}
}

// Plan produces the execution plan for a fill at the given price.
// Limit orders execute at the observed trigger price, not the limit price,
// so triggered fills are favorable-or-equal to what was asked.
func (m *Matcher) Plan(quantity, price float64) ExecPlan {
	notional := quantity * price
	return ExecPlan{
		Price:      price,
		Quantity:   quantity,
		Notional:   notional,
		Commission: m.fees.Fee(notional),
	}
}
