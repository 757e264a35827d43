package ledger

import "errors"

// Order admission and lifecycle errors. All are recoverable: they are
// reported to the submitting session and never corrupt account state.
var (
	// ErrValidation covers bad input shape: quantity <= 0, missing limit
	// price, unlisted symbol. Rejected before touching the ledger.
	ErrValidation = errors.New("invalid order")

	// ErrInsufficientFunds rejects a BUY whose notional plus commission
	// exceeds spendable cash. No state change.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientPosition rejects a SELL exceeding the symbol's
	// available (unreserved) quantity. No state change.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrPriceUnavailable rejects a MARKET order when the oracle cannot
	// answer. Pending LIMIT orders are never rejected for this; their
	// evaluation tick is skipped instead.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrOrderNotCancellable is returned when cancelling an order that is
	// already terminal, including the race where a fill wins over a cancel.
	ErrOrderNotCancellable = errors.New("order not cancellable")

	// ErrAccountNotFound is returned for operations routed to an unknown
	// account.
	ErrAccountNotFound = errors.New("account not found")
)
