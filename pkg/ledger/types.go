package ledger

import "fmt"

// AccountKind distinguishes AI-driven accounts from manually operated ones.
type AccountKind string

const (
	KindAI     AccountKind = "AI"
	KindManual AccountKind = "MANUAL"
)

// Account is one isolated ledger: cash, frozen cash, and (via Position rows)
// holdings. All monetary values are in the quote currency (USD).
type Account struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Kind AccountKind `json:"kind"`

	InitialCapital float64 `json:"initialCapital"`
	CurrentCash    float64 `json:"currentCash"` // spendable
	FrozenCash     float64 `json:"frozenCash"`  // reserved against open BUY limit orders

	Active bool `json:"active"`

	// Unix milliseconds
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Validate checks account invariants
func (a *Account) Validate() error {
	if a.CurrentCash < 0 {
		return fmt.Errorf("negative cash: %f", a.CurrentCash)
	}
	if a.FrozenCash < 0 {
		return fmt.Errorf("negative frozen cash: %f", a.FrozenCash)
	}
	return nil
}

// Position is the (account, symbol) holding.
// AvailableQuantity excludes quantity reserved against open SELL limit orders.
type Position struct {
	AccountID         string  `json:"accountId"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Quantity          float64 `json:"quantity"`
	AvailableQuantity float64 `json:"availableQuantity"`
	AvgCost           float64 `json:"avgCost"` // volume-weighted
	UpdatedAt         int64   `json:"updatedAt"`
}

// Validate checks position invariants
func (p *Position) Validate() error {
	if p.AvailableQuantity < 0 {
		return fmt.Errorf("%s: negative available quantity: %f", p.Symbol, p.AvailableQuantity)
	}
	if p.AvailableQuantity > p.Quantity {
		return fmt.Errorf("%s: available (%f) exceeds held (%f)", p.Symbol, p.AvailableQuantity, p.Quantity)
	}
	return nil
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	StatusPending OrderStatus = "PENDING"
	// StatusPartiallyFilled exists for a future multi-step fill model.
	// The current matching policy always fills in full, so the state is
	// unreachable; it is treated as open wherever status is inspected.
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Order is a buy/sell instruction owned by exactly one account.
// Only the owning account actor mutates it; terminal orders never change.
type Order struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Side      Side      `json:"side"`
	Type      OrderType `json:"type"`

	LimitPrice     float64 `json:"limitPrice,omitempty"` // required for LIMIT, zero for MARKET
	Quantity       float64 `json:"quantity"`
	FilledQuantity float64 `json:"filledQuantity"`

	// Reserved is the cash earmarked for an open BUY limit order
	// (limit notional + worst-case commission). Released in full when the
	// order reaches a terminal state. Zero for SELL and MARKET orders.
	Reserved float64 `json:"reserved,omitempty"`

	Status OrderStatus `json:"status"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Remaining returns unfilled quantity
func (o *Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

// IsClosed returns true if the order reached a terminal state
func (o *Order) IsClosed() bool {
	return o.Status == StatusFilled || o.Status == StatusCancelled || o.Status == StatusRejected
}

// Trade is an immutable execution record, created exactly once per fill.
type Trade struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"orderId"`
	AccountID string  `json:"accountId"`
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Commission float64 `json:"commission"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds
}

// Timeframe identifies one equity-curve resolution.
type Timeframe string

const (
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe1d Timeframe = "1d"
)

// ValidTimeframe reports whether tf names a stored series.
func ValidTimeframe(tf Timeframe) bool {
	return tf == Timeframe5m || tf == Timeframe1h || tf == Timeframe1d
}

// EquityPoint is one append-only sample of an account's total value.
// Stale marks points valued with a last-known price after an oracle outage.
type EquityPoint struct {
	AccountID      string    `json:"accountId"`
	Timeframe      Timeframe `json:"timeframe"`
	Timestamp      int64     `json:"timestamp"` // Unix milliseconds
	TotalAssets    float64   `json:"totalAssets"`
	Cash           float64   `json:"cash"` // current + frozen
	PositionsValue float64   `json:"positionsValue"`
	Stale          bool      `json:"stale,omitempty"`
}
