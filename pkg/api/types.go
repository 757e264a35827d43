package api

import "github.com/simtrade/paperarena/pkg/ledger"

// ==============================
// Client -> server commands
// ==============================

// Command is one client message. Action selects the operation; the other
// fields are read per-action.
type Command struct {
	Action string `json:"action"`

	// bootstrap
	Name           string  `json:"name,omitempty"`
	Kind           string  `json:"kind,omitempty"`
	InitialCapital float64 `json:"initial_capital,omitempty"`

	// place_order
	Symbol     string  `json:"symbol,omitempty"`
	Side       string  `json:"side,omitempty"`
	Type       string  `json:"type,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	LimitPrice float64 `json:"limit_price,omitempty"`

	// cancel_order
	OrderID string `json:"order_id,omitempty"`

	// switch_account
	AccountID string `json:"account_id,omitempty"`

	// get_asset_curve
	Timeframe string `json:"timeframe,omitempty"`
}

// ==============================
// Server -> client pushes
// ==============================

// AccountInfo is the account overview included in snapshots and acks.
type AccountInfo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Kind           string  `json:"kind"`
	InitialCapital float64 `json:"initialCapital"`
	CurrentCash    float64 `json:"currentCash"`
	FrozenCash     float64 `json:"frozenCash"`
	PositionsValue float64 `json:"positionsValue"`
	TotalAssets    float64 `json:"totalAssets"`
	Active         bool    `json:"active"`
}

// PositionInfo is one holding enriched with the latest valuation.
// Stale is set when the mark price is a last-known or cost-basis fallback.
type PositionInfo struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Quantity          float64 `json:"quantity"`
	AvailableQuantity float64 `json:"availableQuantity"`
	AvgCost           float64 `json:"avgCost"`
	LastPrice         float64 `json:"lastPrice"`
	MarketValue       float64 `json:"marketValue"`
	UnrealizedPnL     float64 `json:"unrealizedPnl"`
	Stale             bool    `json:"stale,omitempty"`
}

// OrderInfo mirrors a ledger order on the wire.
type OrderInfo struct {
	ID             string  `json:"id"`
	AccountID      string  `json:"accountId"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Side           string  `json:"side"`
	Type           string  `json:"type"`
	LimitPrice     float64 `json:"limitPrice,omitempty"`
	Quantity       float64 `json:"quantity"`
	FilledQuantity float64 `json:"filledQuantity"`
	Status         string  `json:"status"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt"`
}

// TradeInfo mirrors a ledger trade on the wire.
type TradeInfo struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"orderId"`
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Commission float64 `json:"commission"`
	Timestamp  int64   `json:"timestamp"`
}

// CurvePoint is one equity-curve sample on the wire.
type CurvePoint struct {
	Timestamp      int64   `json:"timestamp"`
	TotalAssets    float64 `json:"totalAssets"`
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positionsValue"`
	Stale          bool    `json:"stale,omitempty"`
}

// Snapshot is the full per-account state push. Seq increases with every
// committed mutation on the account; sessions drop snapshots whose Seq is
// below the newest one they have delivered.
type Snapshot struct {
	Type         string         `json:"type"` // "snapshot"
	Seq          uint64         `json:"seq"`
	Account      AccountInfo    `json:"account"`
	Positions    []PositionInfo `json:"positions"`
	OpenOrders   []OrderInfo    `json:"openOrders"`
	RecentTrades []TradeInfo    `json:"recentTrades"`
	EquityCurve  []CurvePoint   `json:"equityCurve"` // fine series
	Timestamp    int64          `json:"timestamp"`
}

// BootstrapOK acknowledges a bootstrap and carries the bound account.
type BootstrapOK struct {
	Type    string      `json:"type"` // "bootstrap_ok"
	Account AccountInfo `json:"account"`
}

// AccountSwitched acknowledges a switch_account.
type AccountSwitched struct {
	Type    string      `json:"type"` // "account_switched"
	Account AccountInfo `json:"account"`
}

// OrderEvent notifies the session of an order transition. Trade is set for
// fills only.
type OrderEvent struct {
	Type  string     `json:"type"` // "order_pending" | "order_filled" | "order_cancelled"
	Order OrderInfo  `json:"order"`
	Trade *TradeInfo `json:"trade,omitempty"`
}

// AccountCurve is one account's equity series at a timeframe.
type AccountCurve struct {
	AccountID   string       `json:"accountId"`
	AccountName string       `json:"accountName"`
	Points      []CurvePoint `json:"points"`
}

// AssetCurve carries one timeframe's equity series for every account, for
// cross-account comparison charts.
type AssetCurve struct {
	Type      string         `json:"type"` // "asset_curve"
	Timeframe string         `json:"timeframe"`
	Accounts  []AccountCurve `json:"accounts"`
}

// Pong answers a ping.
type Pong struct {
	Type      string `json:"type"` // "pong"
	Timestamp int64  `json:"timestamp"`
}

// ErrorPush reports a rejected command. Code is machine-readable; the
// session stays open and bound.
type ErrorPush struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the REST error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func orderInfo(o ledger.Order) OrderInfo {
	return OrderInfo{
		ID:             o.ID,
		AccountID:      o.AccountID,
		Symbol:         o.Symbol,
		Name:           o.Name,
		Side:           string(o.Side),
		Type:           string(o.Type),
		LimitPrice:     o.LimitPrice,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func tradeInfo(t ledger.Trade) TradeInfo {
	return TradeInfo{
		ID:         t.ID,
		OrderID:    t.OrderID,
		Symbol:     t.Symbol,
		Name:       t.Name,
		Side:       string(t.Side),
		Price:      t.Price,
		Quantity:   t.Quantity,
		Commission: t.Commission,
		Timestamp:  t.Timestamp,
	}
}

func curvePoints(points []*ledger.EquityPoint) []CurvePoint {
	out := make([]CurvePoint, 0, len(points))
	for _, pt := range points {
		out = append(out, CurvePoint{
			Timestamp:      pt.Timestamp,
			TotalAssets:    pt.TotalAssets,
			Cash:           pt.Cash,
			PositionsValue: pt.PositionsValue,
			Stale:          pt.Stale,
		})
	}
	return out
}
