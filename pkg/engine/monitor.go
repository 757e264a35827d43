package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/oracle"
)

// Monitor re-evaluates resting limit orders against current prices.
// Each tick collects open limit orders across all accounts, fetches one
// price per distinct symbol, and routes fill attempts to the owning
// account's actor. Accounts trade in parallel; orders within an account
// stay serialized by the actor.
type Monitor struct {
	log      *zap.SugaredLogger
	registry *Registry
	oracle   oracle.Oracle
	interval time.Duration
}

// NewMonitor creates a limit-order monitor ticking at the given interval
func NewMonitor(log *zap.SugaredLogger, registry *Registry, px oracle.Oracle, interval time.Duration) *Monitor {
	return &Monitor{
		log:      log,
		registry: registry,
		oracle:   px,
		interval: interval,
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Infow("limit_monitor_started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Infow("limit_monitor_stopped")
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

type restingOrder struct {
	actor *Actor
	order ledger.Order
}

// Tick runs one evaluation pass. Exported so tests can drive the monitor
// without real time.
func (m *Monitor) Tick() {
	bySymbol := make(map[string][]restingOrder)
	for _, actor := range m.registry.List() {
		orders, err := actor.OpenLimitOrders()
		if err != nil {
			continue // actor stopped mid-tick
		}
		for _, o := range orders {
			bySymbol[o.Symbol] = append(bySymbol[o.Symbol], restingOrder{actor: actor, order: o})
		}
	}
	if len(bySymbol) == 0 {
		return
	}

	for symbol, resting := range bySymbol {
		q, err := m.oracle.LastPrice(symbol)
		if err != nil {
			// Orders on this symbol simply wait for the next tick.
			if !errors.Is(err, oracle.ErrUnavailable) {
				m.log.Warnw("price_fetch_failed", "symbol", symbol, "err", err)
			}
			continue
		}

		for _, ro := range resting {
			filled, err := ro.actor.AttemptFill(ro.order.ID, q.Price)
			if err != nil {
				m.log.Warnw("fill_attempt_failed", "order", ro.order.ID, "err", err)
				continue
			}
			if filled {
				m.log.Infow("limit_triggered",
					"order", ro.order.ID, "symbol", symbol,
					"limit", ro.order.LimitPrice, "price", q.Price)
			}
		}
	}
}
