package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store provides Pebble-based persistence for accounts, positions, orders,
// trades, and equity curves.
// Thread-safe for the access pattern used here: each account's rows are
// written only by that account's actor, and the curve rows only by the
// aggregator.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:          32 << 20,                  // 32MB memtable
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAccount persists an account
func (s *Store) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := s.db.Set(accountKey(acc.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// LoadAccount loads an account
// Returns nil if the account doesn't exist
func (s *Store) LoadAccount(accountID string) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(accountID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &acc, nil
}

// LoadAllAccounts loads every persisted account
func (s *Store) LoadAllAccounts() ([]*Account, error) {
	prefix := accountPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	defer iter.Close()

	var accounts []*Account
	for iter.First(); iter.Valid(); iter.Next() {
		var acc Account
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			continue // Skip invalid entries
		}
		accounts = append(accounts, &acc)
	}

	return accounts, nil
}

// SavePosition persists a position
func (s *Store) SavePosition(pos *Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	if err := s.db.Set(positionKey(pos.AccountID, pos.Symbol), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	return nil
}

// LoadPositions loads all positions for an account
func (s *Store) LoadPositions(accountID string) (map[string]*Position, error) {
	prefix := positionPrefix(accountID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	defer iter.Close()

	positions := make(map[string]*Position)
	for iter.First(); iter.Valid(); iter.Next() {
		var pos Position
		if err := json.Unmarshal(iter.Value(), &pos); err != nil {
			continue // Skip invalid entries
		}
		positions[pos.Symbol] = &pos
	}

	return positions, nil
}

// SaveOrder persists an order
func (s *Store) SaveOrder(order *Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	if err := s.db.Set(orderKey(order.AccountID, order.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	return nil
}

// LoadOrders loads all orders for an account, oldest first
func (s *Store) LoadOrders(accountID string) ([]*Order, error) {
	prefix := orderPrefix(accountID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	defer iter.Close()

	var orders []*Order
	for iter.First(); iter.Valid(); iter.Next() {
		var order Order
		if err := json.Unmarshal(iter.Value(), &order); err != nil {
			continue // Skip invalid entries
		}
		orders = append(orders, &order)
	}

	return orders, nil
}

// LoadOrder loads a single order
// Returns nil if the order doesn't exist
func (s *Store) LoadOrder(accountID, orderID string) (*Order, error) {
	data, closer, err := s.db.Get(orderKey(accountID, orderID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	return &order, nil
}

// SaveTrade persists a trade
func (s *Store) SaveTrade(trade *Trade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	if err := s.db.Set(tradeKey(trade.AccountID, trade.Timestamp, trade.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}

	return nil
}

// LoadRecentTrades loads the most recent N trades for an account
// Trades are returned in reverse chronological order (newest first)
func (s *Store) LoadRecentTrades(accountID string, limit int) ([]*Trade, error) {
	prefix := tradePrefix(accountID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	defer iter.Close()

	var trades []*Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var trade Trade
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			continue // Skip invalid entries
		}
		trades = append(trades, &trade)
	}

	return trades, nil
}

// SaveEquityPoint appends one equity curve sample.
// Points are append-only; the (timeframe, account, timestamp) key makes a
// re-written identical sample idempotent.
func (s *Store) SaveEquityPoint(pt *EquityPoint) error {
	data, err := json.Marshal(pt)
	if err != nil {
		return fmt.Errorf("failed to marshal equity point: %w", err)
	}

	key := curveKey(pt.Timeframe, pt.AccountID, pt.Timestamp)
	if err := s.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save equity point: %w", err)
	}

	return nil
}

// LoadEquitySeries loads one account's series at a timeframe, oldest first
func (s *Store) LoadEquitySeries(tf Timeframe, accountID string) ([]*EquityPoint, error) {
	prefix := curvePrefix(tf, accountID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate equity points: %w", err)
	}
	defer iter.Close()

	var points []*EquityPoint
	for iter.First(); iter.Valid(); iter.Next() {
		var pt EquityPoint
		if err := json.Unmarshal(iter.Value(), &pt); err != nil {
			continue // Skip invalid entries
		}
		points = append(points, &pt)
	}

	return points, nil
}

// PruneEquitySeries deletes points at the given timeframe older than cutoff.
// Used to roll off fine-grained points; coarser series are kept forever.
func (s *Store) PruneEquitySeries(tf Timeframe, accountID string, cutoff int64) (int, error) {
	prefix := curvePrefix(tf, accountID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to iterate equity points: %w", err)
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	pruned := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var pt EquityPoint
		if err := json.Unmarshal(iter.Value(), &pt); err != nil {
			continue
		}
		if pt.Timestamp >= cutoff {
			break // keys are time-ordered
		}
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		if err := batch.Delete(key, nil); err != nil {
			batch.Close()
			return 0, fmt.Errorf("failed to delete equity point: %w", err)
		}
		pruned++
	}

	if pruned == 0 {
		batch.Close()
		return 0, nil
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return 0, fmt.Errorf("failed to prune equity series: %w", err)
	}
	return pruned, nil
}

// BatchWrite provides atomic batch writes for multiple operations.
// One fill commits account, position, order, and trade rows in a single
// batch so the durable state never shows a half-applied execution.
type BatchWrite struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer
func (s *Store) NewBatch() *BatchWrite {
	return &BatchWrite{batch: s.db.NewBatch()}
}

// SaveAccount adds an account save to the batch
func (bw *BatchWrite) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return bw.batch.Set(accountKey(acc.ID), data, nil)
}

// SavePosition adds a position save to the batch
func (bw *BatchWrite) SavePosition(pos *Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return bw.batch.Set(positionKey(pos.AccountID, pos.Symbol), data, nil)
}

// SaveOrder adds an order save to the batch
func (bw *BatchWrite) SaveOrder(order *Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return bw.batch.Set(orderKey(order.AccountID, order.ID), data, nil)
}

// SaveTrade adds a trade save to the batch
func (bw *BatchWrite) SaveTrade(trade *Trade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	return bw.batch.Set(tradeKey(trade.AccountID, trade.Timestamp, trade.ID), data, nil)
}

// Commit writes the batch atomically
func (bw *BatchWrite) Commit() error {
	return bw.batch.Commit(pebble.Sync)
}

// Close closes the batch without committing
func (bw *BatchWrite) Close() error {
	return bw.batch.Close()
}
