package engine

import (
	"errors"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/simtrade/paperarena/pkg/id"
	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/oracle"
	"github.com/simtrade/paperarena/pkg/util"
)

func newTestStore(t *testing.T) *ledger.Store {
	store, err := ledger.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestAccount(capital float64) *ledger.Account {
	return &ledger.Account{
		ID:             id.New(),
		Name:           "test",
		Kind:           ledger.KindManual,
		InitialCapital: capital,
		CurrentCash:    capital,
		Active:         true,
	}
}

func newTestActor(t *testing.T, store *ledger.Store, px oracle.Oracle, capital float64) *Actor {
	acct := newTestAccount(capital)
	if err := store.SaveAccount(acct); err != nil {
		t.Fatalf("failed to save account: %v", err)
	}

	actor, err := NewActor(zap.NewNop().Sugar(), store, newTestMatcher(), px, util.RealClock{}, nil, acct)
	if err != nil {
		t.Fatalf("failed to create actor: %v", err)
	}
	actor.Start()
	t.Cleanup(actor.Stop)
	return actor
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

func TestMarketBuyUpdatesLedger(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	order, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 0.1})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if order.Status != ledger.StatusFilled {
		t.Errorf("status = %s, want FILLED", order.Status)
	}

	view, err := actor.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	// 10000 - 5000 notional - 5 commission
	if !approx(view.Account.CurrentCash, 4995) {
		t.Errorf("cash = %f, want 4995", view.Account.CurrentCash)
	}
	if len(view.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(view.Positions))
	}
	pos := view.Positions[0]
	if !approx(pos.Quantity, 0.1) || !approx(pos.AvailableQuantity, 0.1) {
		t.Errorf("quantity = %f/%f, want 0.1/0.1", pos.Quantity, pos.AvailableQuantity)
	}
	if !approx(pos.AvgCost, 50000) {
		t.Errorf("avg cost = %f, want 50000", pos.AvgCost)
	}
	if len(view.RecentTrades) != 1 {
		t.Fatalf("trades = %d, want 1", len(view.RecentTrades))
	}
	if !approx(view.RecentTrades[0].Commission, 5) {
		t.Errorf("commission = %f, want 5", view.RecentTrades[0].Commission)
	}
}

func TestMarketBuyInsufficientFunds(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 100)

	_, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 1})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	// Rejected orders leave no residue.
	view, _ := actor.Snapshot()
	if !approx(view.Account.CurrentCash, 100) {
		t.Errorf("cash = %f, want 100", view.Account.CurrentCash)
	}
	if len(view.OpenOrders) != 0 {
		t.Errorf("open orders = %d, want 0", len(view.OpenOrders))
	}
}

func TestMarketBuyPriceOutage(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{}) // no prices at all
	actor := newTestActor(t, store, px, 10000)

	_, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 0.1})
	if !errors.Is(err, ledger.ErrPriceUnavailable) {
		t.Fatalf("got %v, want ErrPriceUnavailable", err)
	}
}

func TestMarketSellRoundTrip(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"ETH": 3000})
	actor := newTestActor(t, store, px, 10000)

	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Buy, Type: ledger.Market, Quantity: 2}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	px.Set("ETH", 3300)
	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Sell, Type: ledger.Market, Quantity: 2}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	view, _ := actor.Snapshot()
	// buy: 10000 - 6000 - 6 = 3994; sell: +6600 - 6.6 = 10587.4
	if !approx(view.Account.CurrentCash, 10587.4) {
		t.Errorf("cash = %f, want 10587.4", view.Account.CurrentCash)
	}
	// Fully closed position drops out of the snapshot with zeroed cost basis.
	if len(view.Positions) != 0 {
		t.Errorf("positions = %d, want 0", len(view.Positions))
	}
}

func TestSellMoreThanHeld(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"ETH": 3000})
	actor := newTestActor(t, store, px, 10000)

	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Buy, Type: ledger.Market, Quantity: 1}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	_, err := actor.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Sell, Type: ledger.Market, Quantity: 2})
	if !errors.Is(err, ledger.ErrInsufficientPosition) {
		t.Fatalf("got %v, want ErrInsufficientPosition", err)
	}
}

func TestLimitBuyFreezesCash(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	order, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if order.Status != ledger.StatusPending {
		t.Errorf("status = %s, want PENDING", order.Status)
	}

	view, _ := actor.Snapshot()
	// Reservation = 4000 notional + 4 worst-case commission.
	if !approx(view.Account.FrozenCash, 4004) {
		t.Errorf("frozen = %f, want 4004", view.Account.FrozenCash)
	}
	if !approx(view.Account.CurrentCash, 5996) {
		t.Errorf("cash = %f, want 5996", view.Account.CurrentCash)
	}
	if len(view.OpenOrders) != 1 {
		t.Errorf("open orders = %d, want 1", len(view.OpenOrders))
	}
}

func TestLimitBuyFillsAtTriggerPrice(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	order, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Above the limit: no-op.
	filled, err := actor.AttemptFill(order.ID, 41000)
	if err != nil || filled {
		t.Fatalf("fill above limit: filled=%v err=%v", filled, err)
	}

	// Below the limit: fills at the observed price, not the limit price.
	filled, err = actor.AttemptFill(order.ID, 39000)
	if err != nil || !filled {
		t.Fatalf("fill below limit: filled=%v err=%v", filled, err)
	}

	view, _ := actor.Snapshot()
	// 10000 - 3900 notional - 3.9 commission; unused reservation returned.
	if !approx(view.Account.CurrentCash, 6096.1) {
		t.Errorf("cash = %f, want 6096.1", view.Account.CurrentCash)
	}
	if !approx(view.Account.FrozenCash, 0) {
		t.Errorf("frozen = %f, want 0", view.Account.FrozenCash)
	}
	if len(view.RecentTrades) != 1 || !approx(view.RecentTrades[0].Price, 39000) {
		t.Fatalf("expected one trade at 39000, got %+v", view.RecentTrades)
	}
}

func TestLimitBuyOverCommitRejected(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	// First order freezes 5005; only 4995 spendable remains.
	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 50000}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	_, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 50000})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestConcurrentBuysAdmitOnlyAffordable(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	// Each buy costs 5005 (5000 notional + 5 commission); the balance
	// affords exactly one, whichever submission the mailbox serves first.
	const submitters = 10
	errs := make(chan error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 0.1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || rejected != submitters-1 {
		t.Fatalf("accepted/rejected = %d/%d, want 1/%d", accepted, rejected, submitters-1)
	}

	view, err := actor.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !approx(view.Account.CurrentCash, 4995) {
		t.Errorf("cash = %f, want 4995", view.Account.CurrentCash)
	}
	if len(view.Positions) != 1 || !approx(view.Positions[0].Quantity, 0.1) {
		t.Errorf("positions = %+v, want single 0.1 BTC", view.Positions)
	}
}

func TestConcurrentCancelExactlyOneWins(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	order, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := actor.CancelOrder(order.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	cancelled, refused := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, ledger.ErrOrderNotCancellable):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if cancelled != 1 || refused != 1 {
		t.Fatalf("cancelled/refused = %d/%d, want 1/1", cancelled, refused)
	}

	// The reservation releases exactly once.
	view, _ := actor.Snapshot()
	if !approx(view.Account.CurrentCash, 10000) || !approx(view.Account.FrozenCash, 0) {
		t.Errorf("cash = %f frozen = %f, want 10000/0", view.Account.CurrentCash, view.Account.FrozenCash)
	}
}

func TestLimitSellReservesQuantity(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"SOL": 150})
	actor := newTestActor(t, store, px, 10000)

	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "SOL", Side: ledger.Buy, Type: ledger.Market, Quantity: 10}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	order, err := actor.SubmitOrder(OrderRequest{Symbol: "SOL", Side: ledger.Sell, Type: ledger.Limit, Quantity: 6, LimitPrice: 200})
	if err != nil {
		t.Fatalf("limit sell failed: %v", err)
	}

	view, _ := actor.Snapshot()
	pos := view.Positions[0]
	if !approx(pos.Quantity, 10) || !approx(pos.AvailableQuantity, 4) {
		t.Errorf("quantity = %f/%f, want 10/4", pos.Quantity, pos.AvailableQuantity)
	}

	// Reserved quantity cannot be sold twice.
	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "SOL", Side: ledger.Sell, Type: ledger.Market, Quantity: 5}); !errors.Is(err, ledger.ErrInsufficientPosition) {
		t.Errorf("got %v, want ErrInsufficientPosition", err)
	}

	// Cancellation restores it.
	if _, err := actor.CancelOrder(order.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	view, _ = actor.Snapshot()
	if !approx(view.Positions[0].AvailableQuantity, 10) {
		t.Errorf("available = %f, want 10 after cancel", view.Positions[0].AvailableQuantity)
	}
}

func TestCancelLimitBuyReleasesCash(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	order, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	cancelled, err := actor.CancelOrder(order.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != ledger.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}

	view, _ := actor.Snapshot()
	if !approx(view.Account.CurrentCash, 10000) || !approx(view.Account.FrozenCash, 0) {
		t.Errorf("cash = %f frozen = %f, want 10000/0", view.Account.CurrentCash, view.Account.FrozenCash)
	}
}

func TestCancelTerminalOrder(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	order, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 0.1})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := actor.CancelOrder(order.ID); !errors.Is(err, ledger.ErrOrderNotCancellable) {
		t.Errorf("got %v, want ErrOrderNotCancellable", err)
	}
	if _, err := actor.CancelOrder("no-such-order"); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestSnapshotSeqAdvancesPerMutation(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 10000)

	v0, _ := actor.Snapshot()
	order, _ := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000})
	v1, _ := actor.Snapshot()
	actor.CancelOrder(order.ID)
	v2, _ := actor.Snapshot()

	if v1.Seq != v0.Seq+1 || v2.Seq != v1.Seq+1 {
		t.Errorf("seq progression %d -> %d -> %d, want +1 each", v0.Seq, v1.Seq, v2.Seq)
	}
}

func TestEventsEmittedAfterCommit(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})

	var events []Event
	acct := newTestAccount(10000)
	if err := store.SaveAccount(acct); err != nil {
		t.Fatalf("save account: %v", err)
	}
	actor, err := NewActor(zap.NewNop().Sugar(), store, newTestMatcher(), px, util.RealClock{}, func(evt Event) {
		events = append(events, evt) // sink runs on the actor goroutine
	}, acct)
	if err != nil {
		t.Fatalf("new actor: %v", err)
	}
	actor.Start()
	t.Cleanup(actor.Stop)

	order, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := actor.AttemptFill(order.ID, 39000); err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	// Synchronize with the actor loop before inspecting the slice.
	if _, err := actor.Snapshot(); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != EventOrderPending || events[1].Type != EventOrderFilled {
		t.Errorf("event types = %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].Trade == nil {
		t.Error("fill event missing trade")
	}
	if events[1].Seq != events[0].Seq+1 {
		t.Errorf("seq %d -> %d, want consecutive", events[0].Seq, events[1].Seq)
	}
}

func TestRestartRestoresState(t *testing.T) {
	dir := t.TempDir()
	store, err := ledger.NewStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})

	acct := newTestAccount(10000)
	if err := store.SaveAccount(acct); err != nil {
		t.Fatalf("save account: %v", err)
	}
	actor, err := NewActor(zap.NewNop().Sugar(), store, newTestMatcher(), px, util.RealClock{}, nil, acct)
	if err != nil {
		t.Fatalf("new actor: %v", err)
	}
	actor.Start()

	filledOrder, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 0.1})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	open, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.05, LimitPrice: 40000})
	if err != nil {
		t.Fatalf("limit failed: %v", err)
	}

	actor.Stop()
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Reopen as a fresh process would.
	store2, err := ledger.NewStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { store2.Close() })

	loaded, err := store2.LoadAccount(acct.ID)
	if err != nil || loaded == nil {
		t.Fatalf("load account: %v", err)
	}
	actor2, err := NewActor(zap.NewNop().Sugar(), store2, newTestMatcher(), px, util.RealClock{}, nil, loaded)
	if err != nil {
		t.Fatalf("new actor: %v", err)
	}
	actor2.Start()
	t.Cleanup(actor2.Stop)

	view, err := actor2.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// 10000 - 5005 market buy - 2002 reservation
	if !approx(view.Account.CurrentCash, 2993) {
		t.Errorf("cash = %f, want 2993", view.Account.CurrentCash)
	}
	if !approx(view.Account.FrozenCash, 2002) {
		t.Errorf("frozen = %f, want 2002", view.Account.FrozenCash)
	}
	if len(view.OpenOrders) != 1 || view.OpenOrders[0].ID != open.ID {
		t.Fatalf("open orders = %+v, want the resting limit", view.OpenOrders)
	}

	// The restored limit order still fills.
	filled, err := actor2.AttemptFill(open.ID, 39000)
	if err != nil || !filled {
		t.Fatalf("restored fill: filled=%v err=%v", filled, err)
	}

	// The filled order lives on disk only, yet its history still shapes
	// cancellation: FILLED, not unknown.
	if _, err := actor2.CancelOrder(filledOrder.ID); !errors.Is(err, ledger.ErrOrderNotCancellable) {
		t.Errorf("cancel of historical fill: got %v, want ErrOrderNotCancellable", err)
	}
	if _, err := actor2.CancelOrder("no-such-order"); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("cancel of unknown order: got %v, want ErrValidation", err)
	}
}

func TestAvgCostIsVolumeWeighted(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	actor := newTestActor(t, store, px, 200000)

	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 1}); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	px.Set("BTC", 60000)
	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 1}); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	view, _ := actor.Snapshot()
	pos := view.Positions[0]
	if !approx(pos.Quantity, 2) {
		t.Errorf("quantity = %f, want 2", pos.Quantity)
	}
	if !approx(pos.AvgCost, 55000) {
		t.Errorf("avg cost = %f, want 55000", pos.AvgCost)
	}

	// A partial sell leaves the cost basis untouched.
	if _, err := actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Sell, Type: ledger.Market, Quantity: 1}); err != nil {
		t.Fatalf("sell: %v", err)
	}
	view, _ = actor.Snapshot()
	if !approx(view.Positions[0].AvgCost, 55000) {
		t.Errorf("avg cost after sell = %f, want 55000", view.Positions[0].AvgCost)
	}
}

func TestCashConservation(t *testing.T) {
	store := newTestStore(t)
	px := oracle.NewStatic(map[string]float64{"BTC": 50000, "ETH": 3000})
	actor := newTestActor(t, store, px, 100000)

	actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Market, Quantity: 0.5})
	actor.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Buy, Type: ledger.Market, Quantity: 5})
	px.Set("BTC", 52000)
	actor.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Sell, Type: ledger.Market, Quantity: 0.5})
	lim, _ := actor.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Buy, Type: ledger.Limit, Quantity: 1, LimitPrice: 2800})
	actor.CancelOrder(lim.ID)

	view, _ := actor.Snapshot()

	// Replay cash flow from the trade history.
	cash := 100000.0
	trades, err := store.LoadRecentTrades(actor.AccountID(), 100)
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range trades {
		if tr.Side == ledger.Buy {
			cash -= tr.Price*tr.Quantity + tr.Commission
		} else {
			cash += tr.Price*tr.Quantity - tr.Commission
		}
	}
	if !approx(view.Account.CurrentCash+view.Account.FrozenCash, cash) {
		t.Errorf("ledger cash = %f, trade replay = %f", view.Account.CurrentCash+view.Account.FrozenCash, cash)
	}
}
