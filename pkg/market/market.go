package market

// Listing describes one tradable spot symbol.
type Listing struct {
	Symbol string // e.g. "BTC"
	Name   string // display name, e.g. "Bitcoin"
}

// Commission holds the fee schedule applied to every fill.
// Fee = max(notional × Rate, Min).
type Commission struct {
	Rate float64 // fraction of notional (0.001 = 0.1%)
	Min  float64 // floor in quote currency
}

// Fee returns the commission charged on a fill of the given notional.
func (c Commission) Fee(notional float64) float64 {
	fee := notional * c.Rate
	if fee < c.Min {
		fee = c.Min
	}
	return fee
}

// Reserve returns the cash to earmark for a resting BUY limit order:
// the limit notional plus the worst-case commission on it. Reserving the
// fee up front keeps cash non-negative when the fill debits both.
func (c Commission) Reserve(notional float64) float64 {
	return notional + c.Fee(notional)
}
