package engine

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/simtrade/paperarena/pkg/id"
	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/oracle"
	"github.com/simtrade/paperarena/pkg/util"
)

// Event types emitted after a committed mutation.
const (
	EventOrderPending   = "order_pending"
	EventOrderFilled    = "order_filled"
	EventOrderCancelled = "order_cancelled"
	EventAccountUpdated = "account_updated"
)

// Event describes one committed mutation on an account. Seq is the
// account's snapshot sequence after the mutation; consumers use it to
// discard stale snapshots.
type Event struct {
	Type      string
	AccountID string
	Seq       uint64
	Order     *ledger.Order
	Trade     *ledger.Trade
}

// EventSink receives events from account actors. It must not block: it is
// called from inside the actor loop.
type EventSink func(Event)

// View is a consistent point-in-time read of one account: account row,
// positions, open orders, and recent trades all observed at the same
// serialization point as writes.
type View struct {
	Seq          uint64
	Account      ledger.Account
	Positions    []ledger.Position
	OpenOrders   []ledger.Order
	RecentTrades []ledger.Trade
}

// quantityEps absorbs float64 dust when a position is fully sold.
const quantityEps = 1e-9

// Actor owns exactly one account's mutable state and is its sole writer.
// All operations (submission, limit-order fills, cancellation, snapshots)
// are funneled through a single goroutine, so no two operations on the same
// account ever interleave. Different accounts' actors run in parallel.
type Actor struct {
	log     *zap.SugaredLogger
	store   *ledger.Store
	matcher *Matcher
	oracle  oracle.Oracle
	clock   util.Clock
	sink    EventSink

	// Owned exclusively by the run loop.
	acct      *ledger.Account
	positions map[string]*ledger.Position
	orders    map[string]*ledger.Order // open orders only
	seq       uint64

	ops  chan func()
	quit chan struct{}
}

// NewActor creates the actor for an account and loads its persisted
// positions and open orders. Terminal orders stay on disk only, so the
// working set stays bounded by the resting order count, not the account's
// lifetime history. Call Start to begin processing.
func NewActor(log *zap.SugaredLogger, store *ledger.Store, matcher *Matcher, px oracle.Oracle, clock util.Clock, sink EventSink, acct *ledger.Account) (*Actor, error) {
	positions, err := store.LoadPositions(acct.ID)
	if err != nil {
		return nil, fmt.Errorf("load positions for %s: %w", acct.ID, err)
	}
	orders, err := store.LoadOrders(acct.ID)
	if err != nil {
		return nil, fmt.Errorf("load orders for %s: %w", acct.ID, err)
	}

	orderMap := make(map[string]*ledger.Order)
	for _, o := range orders {
		if o.IsClosed() {
			continue
		}
		orderMap[o.ID] = o
	}

	return &Actor{
		log:       log,
		store:     store,
		matcher:   matcher,
		oracle:    px,
		clock:     clock,
		sink:      sink,
		acct:      acct,
		positions: positions,
		orders:    orderMap,
		ops:       make(chan func()),
		quit:      make(chan struct{}),
	}, nil
}

// Start launches the actor's run loop.
func (a *Actor) Start() {
	go a.run()
}

// Stop shuts the actor down. In-flight operations complete first.
func (a *Actor) Stop() {
	close(a.quit)
}

func (a *Actor) run() {
	for {
		select {
		case fn := <-a.ops:
			fn()
		case <-a.quit:
			// Drain anything already handed off before exiting.
			for {
				select {
				case fn := <-a.ops:
					fn()
				default:
					return
				}
			}
		}
	}
}

// do executes fn on the actor goroutine and waits for it to finish.
// Returns ErrAccountNotFound if the actor has been stopped.
func (a *Actor) do(fn func()) error {
	done := make(chan struct{})
	select {
	case a.ops <- func() { fn(); close(done) }:
	case <-a.quit:
		return fmt.Errorf("%w: account %s stopped", ledger.ErrAccountNotFound, a.acct.ID)
	}
	<-done
	return nil
}

// AccountID returns the owned account's ID. Immutable, safe without the loop.
func (a *Actor) AccountID() string { return a.acct.ID }

// AccountName returns the account's display name. Accounts are never
// renamed, so this is safe without the loop.
func (a *Actor) AccountName() string { return a.acct.Name }

// SubmitOrder validates and admits an order. MARKET orders execute
// immediately against the current oracle price; LIMIT orders move to
// PENDING and reserve funds (BUY) or quantity (SELL).
func (a *Actor) SubmitOrder(req OrderRequest) (ledger.Order, error) {
	var (
		out ledger.Order
		err error
	)
	doErr := a.do(func() { out, err = a.submit(req) })
	if doErr != nil {
		return ledger.Order{}, doErr
	}
	return out, err
}

// AttemptFill re-evaluates an open LIMIT order against the current price.
// Returns true if the order filled; a non-triggering price is a no-op.
func (a *Actor) AttemptFill(orderID string, currentPrice float64) (bool, error) {
	var (
		filled bool
		err    error
	)
	doErr := a.do(func() { filled, err = a.attemptFill(orderID, currentPrice) })
	if doErr != nil {
		return false, doErr
	}
	return filled, err
}

// CancelOrder cancels a still-open order and releases its reservation.
// Terminal orders, including ones that filled just before the cancel was
// processed, return ErrOrderNotCancellable.
func (a *Actor) CancelOrder(orderID string) (ledger.Order, error) {
	var (
		out ledger.Order
		err error
	)
	doErr := a.do(func() { out, err = a.cancel(orderID) })
	if doErr != nil {
		return ledger.Order{}, doErr
	}
	return out, err
}

// Snapshot returns a consistent view of the account, taken under the same
// serialization point as writes.
func (a *Actor) Snapshot() (View, error) {
	var view View
	if err := a.do(func() { view = a.snapshot() }); err != nil {
		return View{}, err
	}
	return view, nil
}

// OpenLimitOrders returns copies of the account's open LIMIT orders.
// Used by the limit order monitor.
func (a *Actor) OpenLimitOrders() ([]ledger.Order, error) {
	var out []ledger.Order
	err := a.do(func() {
		for _, o := range a.orders {
			if o.Type == ledger.Limit && !o.IsClosed() {
				out = append(out, *o)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive soft-(de)activates the account. Inactive accounts reject new
// orders but keep their ledger intact.
func (a *Actor) SetActive(active bool) error {
	var err error
	doErr := a.do(func() {
		a.acct.Active = active
		a.acct.UpdatedAt = a.clock.Now().UnixMilli()
		if err = a.store.SaveAccount(a.acct); err != nil {
			return
		}
		a.seq++
		a.emit(Event{Type: EventAccountUpdated, AccountID: a.acct.ID, Seq: a.seq})
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// ==============================
// Run-loop internals (single-threaded)
// ==============================

func (a *Actor) submit(req OrderRequest) (ledger.Order, error) {
	if !a.acct.Active {
		return ledger.Order{}, fmt.Errorf("%w: account %s is inactive", ledger.ErrValidation, a.acct.ID)
	}
	if err := a.matcher.ValidateRequest(req); err != nil {
		return ledger.Order{}, err
	}
	listing, err := a.matcher.Listing(req.Symbol)
	if err != nil {
		return ledger.Order{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}

	// MARKET orders need the oracle before admission: the price is both the
	// BUY reference price and the execution price. Timeout or outage
	// rejects the order with no state change.
	var execPrice float64
	if req.Type == ledger.Market {
		q, err := a.oracle.LastPrice(req.Symbol)
		if err != nil {
			return ledger.Order{}, fmt.Errorf("%w: %s", ledger.ErrPriceUnavailable, req.Symbol)
		}
		execPrice = q.Price
	}

	switch req.Side {
	case ledger.Buy:
		refPrice := execPrice
		if req.Type == ledger.Limit {
			refPrice = req.LimitPrice
		}
		if err := a.matcher.AdmitBuy(req, refPrice, a.acct.CurrentCash); err != nil {
			return ledger.Order{}, err
		}
	case ledger.Sell:
		available := 0.0
		if pos, ok := a.positions[req.Symbol]; ok {
			available = pos.AvailableQuantity
		}
		if err := a.matcher.AdmitSell(req, available); err != nil {
			return ledger.Order{}, err
		}
	}

	now := a.clock.Now().UnixMilli()
	order := &ledger.Order{
		ID:        id.New(),
		AccountID: a.acct.ID,
		Symbol:    req.Symbol,
		Name:      listing.Name,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Status:    ledger.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Type == ledger.Limit {
		order.LimitPrice = req.LimitPrice
	}
	a.orders[order.ID] = order

	if req.Type == ledger.Market {
		a.fill(order, execPrice)
		return *order, nil
	}

	// LIMIT: reserve and rest. BUY moves cash from spendable to frozen;
	// SELL earmarks position quantity. The reservation is released in full
	// on cancellation or terminal fill.
	switch req.Side {
	case ledger.Buy:
		reserved := a.matcher.Reserve(req.LimitPrice, req.Quantity)
		a.acct.CurrentCash -= reserved
		a.acct.FrozenCash += reserved
		order.Reserved = reserved
	case ledger.Sell:
		pos := a.positions[req.Symbol]
		pos.AvailableQuantity -= req.Quantity
		pos.UpdatedAt = now
	}
	a.acct.UpdatedAt = now
	a.checkInvariants(order.Symbol)

	bw := a.store.NewBatch()
	mustBatch(bw.SaveAccount(a.acct))
	mustBatch(bw.SaveOrder(order))
	if req.Side == ledger.Sell {
		mustBatch(bw.SavePosition(a.positions[req.Symbol]))
	}
	a.commit(bw)

	a.seq++
	a.emit(Event{Type: EventOrderPending, AccountID: a.acct.ID, Seq: a.seq, Order: orderCopy(order)})
	a.log.Infow("order_pending",
		"account", a.acct.Name, "order", order.ID,
		"side", order.Side, "symbol", order.Symbol,
		"qty", order.Quantity, "limit", order.LimitPrice)
	return *order, nil
}

func (a *Actor) attemptFill(orderID string, currentPrice float64) (bool, error) {
	order, ok := a.orders[orderID]
	if !ok {
		// Already terminal and evicted: the monitor listed the order before
		// a fill or cancel resolved it. Not fillable, not an error.
		return false, nil
	}
	if order.IsClosed() || order.Type != ledger.Limit {
		return false, nil
	}
	if !a.matcher.ShouldFill(order.Side, order.LimitPrice, currentPrice) {
		return false, nil
	}
	a.fill(order, currentPrice)
	return true, nil
}

func (a *Actor) cancel(orderID string) (ledger.Order, error) {
	order, ok := a.orders[orderID]
	if !ok {
		// Only open orders live in memory; a miss is either an order that
		// already went terminal or an ID this account never issued.
		stored, err := a.store.LoadOrder(a.acct.ID, orderID)
		if err != nil {
			return ledger.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
		}
		if stored != nil {
			return ledger.Order{}, fmt.Errorf("%w: order %s is %s", ledger.ErrOrderNotCancellable, orderID, stored.Status)
		}
		return ledger.Order{}, fmt.Errorf("%w: unknown order %s", ledger.ErrValidation, orderID)
	}
	if order.IsClosed() {
		return ledger.Order{}, fmt.Errorf("%w: order %s is %s", ledger.ErrOrderNotCancellable, orderID, order.Status)
	}

	now := a.clock.Now().UnixMilli()
	var touchedPos *ledger.Position
	switch {
	case order.Side == ledger.Buy && order.Reserved > 0:
		a.acct.CurrentCash += order.Reserved
		a.acct.FrozenCash = clampDust(a.acct.FrozenCash - order.Reserved)
		order.Reserved = 0
	case order.Side == ledger.Sell && order.Type == ledger.Limit:
		pos := a.positions[order.Symbol]
		pos.AvailableQuantity += order.Remaining()
		pos.UpdatedAt = now
		touchedPos = pos
	}

	order.Status = ledger.StatusCancelled
	order.UpdatedAt = now
	a.acct.UpdatedAt = now
	a.checkInvariants(order.Symbol)

	bw := a.store.NewBatch()
	mustBatch(bw.SaveAccount(a.acct))
	mustBatch(bw.SaveOrder(order))
	if touchedPos != nil {
		mustBatch(bw.SavePosition(touchedPos))
	}
	a.commit(bw)

	a.seq++
	a.emit(Event{Type: EventOrderCancelled, AccountID: a.acct.ID, Seq: a.seq, Order: orderCopy(order)})
	a.log.Infow("order_cancelled", "account", a.acct.Name, "order", order.ID)
	delete(a.orders, order.ID)
	return *order, nil
}

// fill executes the order's full remaining quantity at price. The account,
// position, order, and trade rows commit in one batch: a storage failure
// after the fill decision would diverge memory from disk, so it panics.
func (a *Actor) fill(order *ledger.Order, price float64) *ledger.Trade {
	plan := a.matcher.Plan(order.Remaining(), price)
	now := a.clock.Now().UnixMilli()
	pos := a.ensurePosition(order.Symbol, order.Name)

	switch order.Side {
	case ledger.Buy:
		if order.Reserved > 0 {
			// Resting limit BUY: release the whole reservation, then pay
			// actual notional + commission out of the released cash. The
			// trigger price is at or below the limit, so the remainder
			// flows back to spendable cash.
			released := order.Reserved
			a.acct.FrozenCash = clampDust(a.acct.FrozenCash - released)
			a.acct.CurrentCash += released - plan.Notional - plan.Commission
			order.Reserved = 0
		} else {
			a.acct.CurrentCash -= plan.Notional + plan.Commission
		}
		if pos.Quantity+plan.Quantity > 0 {
			pos.AvgCost = (pos.Quantity*pos.AvgCost + plan.Quantity*plan.Price) / (pos.Quantity + plan.Quantity)
		}
		pos.Quantity += plan.Quantity
		pos.AvailableQuantity += plan.Quantity

	case ledger.Sell:
		a.acct.CurrentCash += plan.Notional - plan.Commission
		pos.Quantity = clampDust(pos.Quantity - plan.Quantity)
		if order.Type == ledger.Market {
			// Limit SELLs pre-decremented available at reservation time.
			pos.AvailableQuantity = clampDust(pos.AvailableQuantity - plan.Quantity)
		}
		if pos.Quantity == 0 {
			pos.AvailableQuantity = 0
			pos.AvgCost = 0
		}
	}

	order.FilledQuantity += plan.Quantity
	order.Status = ledger.StatusFilled
	order.UpdatedAt = now
	pos.UpdatedAt = now
	a.acct.UpdatedAt = now
	a.checkInvariants(order.Symbol)

	trade := &ledger.Trade{
		ID:         id.New(),
		OrderID:    order.ID,
		AccountID:  a.acct.ID,
		Symbol:     order.Symbol,
		Name:       order.Name,
		Side:       order.Side,
		Price:      plan.Price,
		Quantity:   plan.Quantity,
		Commission: plan.Commission,
		Timestamp:  now,
	}

	bw := a.store.NewBatch()
	mustBatch(bw.SaveAccount(a.acct))
	mustBatch(bw.SavePosition(pos))
	mustBatch(bw.SaveOrder(order))
	mustBatch(bw.SaveTrade(trade))
	a.commit(bw)

	a.seq++
	a.emit(Event{Type: EventOrderFilled, AccountID: a.acct.ID, Seq: a.seq, Order: orderCopy(order), Trade: trade})
	delete(a.orders, order.ID)
	a.log.Infow("order_filled",
		"account", a.acct.Name, "order", order.ID,
		"side", order.Side, "symbol", order.Symbol,
		"price", plan.Price, "qty", plan.Quantity, "commission", plan.Commission)
	return trade
}

func (a *Actor) snapshot() View {
	view := View{Seq: a.seq, Account: *a.acct}

	for _, pos := range a.positions {
		if pos.Quantity <= 0 && pos.AvailableQuantity <= 0 {
			continue
		}
		view.Positions = append(view.Positions, *pos)
	}
	sort.Slice(view.Positions, func(i, j int) bool {
		return view.Positions[i].Symbol < view.Positions[j].Symbol
	})

	for _, o := range a.orders {
		if !o.IsClosed() {
			view.OpenOrders = append(view.OpenOrders, *o)
		}
	}
	sort.Slice(view.OpenOrders, func(i, j int) bool {
		return view.OpenOrders[i].ID < view.OpenOrders[j].ID
	})

	trades, err := a.store.LoadRecentTrades(a.acct.ID, 20)
	if err != nil {
		a.log.Warnw("load_recent_trades_failed", "account", a.acct.ID, "err", err)
	}
	for _, t := range trades {
		view.RecentTrades = append(view.RecentTrades, *t)
	}

	return view
}

func (a *Actor) ensurePosition(symbol, name string) *ledger.Position {
	pos, ok := a.positions[symbol]
	if !ok {
		pos = &ledger.Position{AccountID: a.acct.ID, Symbol: symbol, Name: name}
		a.positions[symbol] = pos
	}
	return pos
}

// checkInvariants verifies the ledger invariants after a mutation.
// Admission is supposed to make violations impossible, so one is a bug
// worth crashing on before it is persisted.
func (a *Actor) checkInvariants(symbol string) {
	if err := a.acct.Validate(); err != nil {
		panic(fmt.Errorf("ledger invariant violated for account %s: %w", a.acct.ID, err))
	}
	if pos, ok := a.positions[symbol]; ok {
		if err := pos.Validate(); err != nil {
			panic(fmt.Errorf("ledger invariant violated for account %s: %w", a.acct.ID, err))
		}
	}
}

// commit writes the batch; a failure here means memory and disk diverge,
// which is unrecoverable.
func (a *Actor) commit(bw *ledger.BatchWrite) {
	if err := bw.Commit(); err != nil {
		panic(fmt.Errorf("ledger write failed after fill decision: %w", err))
	}
}

func (a *Actor) emit(evt Event) {
	if a.sink != nil {
		a.sink(evt)
	}
}

func mustBatch(err error) {
	if err != nil {
		panic(fmt.Errorf("ledger batch stage failed: %w", err))
	}
}

func orderCopy(o *ledger.Order) *ledger.Order {
	cp := *o
	return &cp
}

// clampDust zeroes tiny negative float64 residue from reservation math.
func clampDust(x float64) float64 {
	if x < 0 && x > -quantityEps {
		return 0
	}
	return x
}
