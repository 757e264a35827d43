package ledger

import "fmt"

// Pebble key schema for efficient queries
// Design principles:
// 1. Prefix-based for range scans (get all orders for an account)
// 2. Lexicographic ordering for time-based queries (ULIDs and zero-padded
//    timestamps sort by creation time)
// 3. Account ID as primary key for ownership

// Key prefixes
const (
	prefixAccount  = "acc:"   // Account state
	prefixPosition = "pos:"   // Position state
	prefixOrder    = "ord:"   // Order state
	prefixTrade    = "trade:" // Trade history
	prefixCurve    = "curve:" // Equity curve points
)

// accountKey returns the key for an account
// Format: "acc:{accountID}"
func accountKey(accountID string) []byte {
	return []byte(prefixAccount + accountID)
}

// accountPrefix returns the prefix for all accounts
func accountPrefix() []byte {
	return []byte(prefixAccount)
}

// positionKey returns the key for a position
// Format: "pos:{accountID}:{symbol}"
func positionKey(accountID, symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixPosition, accountID, symbol))
}

// positionPrefix returns the prefix for all positions of an account
// Format: "pos:{accountID}:"
func positionPrefix(accountID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPosition, accountID))
}

// orderKey returns the key for an order
// Format: "ord:{accountID}:{orderID}"
// Order IDs are ULIDs, so a prefix scan yields orders in creation order.
func orderKey(accountID, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrder, accountID, orderID))
}

// orderPrefix returns the prefix for all orders of an account
// Format: "ord:{accountID}:"
func orderPrefix(accountID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, accountID))
}

// tradeKey returns the key for a trade
// Format: "trade:{accountID}:{timestamp}:{tradeID}"
// Timestamp is zero-padded (20 digits) for lexicographic sorting.
func tradeKey(accountID string, timestamp int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, accountID, timestamp, tradeID))
}

// tradePrefix returns the prefix for all trades of an account
// Format: "trade:{accountID}:"
func tradePrefix(accountID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, accountID))
}

// curveKey returns the key for an equity point
// Format: "curve:{timeframe}:{accountID}:{timestamp}"
func curveKey(tf Timeframe, accountID string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d", prefixCurve, tf, accountID, timestamp))
}

// curvePrefix returns the prefix for one account's series at a timeframe
// Format: "curve:{timeframe}:{accountID}:"
func curvePrefix(tf Timeframe, accountID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixCurve, tf, accountID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "ord:abc:" -> upper bound "ord:abc;" (next byte after ':')
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
