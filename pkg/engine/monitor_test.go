package engine

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/oracle"
	"github.com/simtrade/paperarena/pkg/util"
)

func newTestRegistry(t *testing.T, px oracle.Oracle) *Registry {
	store := newTestStore(t)
	reg := NewRegistry(zap.NewNop().Sugar(), store, newTestMatcher(), px, util.RealClock{}, nil, 100000)
	t.Cleanup(reg.Close)
	return reg
}

func openOrderCount(t *testing.T, actor *Actor) int {
	t.Helper()
	orders, err := actor.OpenLimitOrders()
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	return len(orders)
}

func TestMonitorFillsTriggeredOrders(t *testing.T) {
	px := oracle.NewStatic(map[string]float64{"BTC": 50000, "ETH": 3000})
	reg := newTestRegistry(t, px)
	monitor := NewMonitor(zap.NewNop().Sugar(), reg, px, time.Second)

	alice, err := reg.Bootstrap("alice", ledger.KindManual, 0)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	bob, err := reg.Bootstrap("bob", ledger.KindAI, 0)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Alice rests a BUY below market; Bob holds ETH and rests a SELL above.
	if _, err := alice.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000}); err != nil {
		t.Fatalf("alice limit: %v", err)
	}
	if _, err := bob.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Buy, Type: ledger.Market, Quantity: 5}); err != nil {
		t.Fatalf("bob buy: %v", err)
	}
	if _, err := bob.SubmitOrder(OrderRequest{Symbol: "ETH", Side: ledger.Sell, Type: ledger.Limit, Quantity: 5, LimitPrice: 3500}); err != nil {
		t.Fatalf("bob limit: %v", err)
	}

	// Neither limit triggers at current prices.
	monitor.Tick()
	if n := openOrderCount(t, alice) + openOrderCount(t, bob); n != 2 {
		t.Fatalf("open orders = %d, want 2 untouched", n)
	}

	px.Set("BTC", 39500)
	px.Set("ETH", 3600)
	monitor.Tick()

	if n := openOrderCount(t, alice); n != 0 {
		t.Errorf("alice still has %d open orders", n)
	}
	if n := openOrderCount(t, bob); n != 0 {
		t.Errorf("bob still has %d open orders", n)
	}

	view, _ := alice.Snapshot()
	if len(view.RecentTrades) != 1 || view.RecentTrades[0].Price != 39500 {
		t.Errorf("alice trade = %+v, want fill at 39500", view.RecentTrades)
	}
}

func TestMonitorSkipsUnavailableSymbol(t *testing.T) {
	px := oracle.NewStatic(map[string]float64{"BTC": 50000})
	reg := newTestRegistry(t, px)
	monitor := NewMonitor(zap.NewNop().Sugar(), reg, px, time.Second)

	alice, err := reg.Bootstrap("alice", ledger.KindManual, 0)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := alice.SubmitOrder(OrderRequest{Symbol: "BTC", Side: ledger.Buy, Type: ledger.Limit, Quantity: 0.1, LimitPrice: 40000}); err != nil {
		t.Fatalf("limit: %v", err)
	}

	// Feed outage: the order just waits.
	px.Set("BTC", 0)
	monitor.Tick()
	if n := openOrderCount(t, alice); n != 1 {
		t.Fatalf("open orders = %d, want 1 after outage tick", n)
	}

	// Feed back and in range: fills on the next tick.
	px.Set("BTC", 39000)
	monitor.Tick()
	if n := openOrderCount(t, alice); n != 0 {
		t.Errorf("open orders = %d, want 0 after recovery", n)
	}
}
