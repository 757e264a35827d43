package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/simtrade/paperarena/params"
	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/oracle"
	"github.com/simtrade/paperarena/pkg/util"
)

// Aggregator samples every active account's total value on a fine cadence
// and rolls samples up into coarser timeframes by downsampling: every Nth
// fine bucket is promoted to the medium series, every Mth of those to the
// coarse one. No averaging: a promoted point is the fine sample itself,
// so all three series agree wherever they overlap.
//
// Promotion is keyed off the sample timestamp, not a tick counter, so a
// restarted process keeps landing medium and coarse points on the same
// bucket boundaries as before.
//
// A missed tick (process down, long stall) produces no point at all; gaps
// in the series are the honest record of downtime.
type Aggregator struct {
	log    *zap.SugaredLogger
	store  *ledger.Store
	reg    *Registry
	oracle *oracle.Cached
	clock  util.Clock
	cfg    params.Curve
}

// NewAggregator creates an equity curve aggregator
func NewAggregator(log *zap.SugaredLogger, store *ledger.Store, reg *Registry, px *oracle.Cached, clock util.Clock, cfg params.Curve) *Aggregator {
	return &Aggregator{
		log:    log,
		store:  store,
		reg:    reg,
		oracle: px,
		clock:  clock,
		cfg:    cfg,
	}
}

// Run samples on the fine interval until ctx is cancelled.
func (g *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.FineInterval)
	defer ticker.Stop()

	g.log.Infow("curve_aggregator_started", "interval", g.cfg.FineInterval)
	for {
		select {
		case <-ctx.Done():
			g.log.Infow("curve_aggregator_stopped")
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}

// Tick samples every active account once. Exported for tests.
func (g *Aggregator) Tick() {
	now := g.clock.Now().UnixMilli()
	for _, actor := range g.reg.List() {
		view, err := actor.Snapshot()
		if err != nil {
			continue // actor stopped mid-tick
		}
		if !view.Account.Active {
			continue
		}
		pt := g.sample(view, now)
		if err := g.store.SaveEquityPoint(&pt); err != nil {
			g.log.Warnw("equity_point_save_failed", "account", pt.AccountID, "err", err)
			continue
		}
		g.promote(pt)
		g.prune(pt.AccountID, now)
	}
}

// sample values one account at now: cash (spendable + frozen) plus mark-to-
// market positions. A symbol whose price cannot be fetched falls back to
// the last known quote, then to the position's average cost; either
// fallback marks the point stale.
func (g *Aggregator) sample(view View, now int64) ledger.EquityPoint {
	cash := view.Account.CurrentCash + view.Account.FrozenCash

	positionsValue := 0.0
	stale := false
	for _, pos := range view.Positions {
		if pos.Quantity <= 0 {
			continue
		}
		price, ok := g.markPrice(pos.Symbol)
		if !ok {
			price = pos.AvgCost
		}
		if !ok || price == 0 {
			stale = true
		}
		positionsValue += pos.Quantity * price
	}

	return ledger.EquityPoint{
		AccountID:      view.Account.ID,
		Timeframe:      ledger.Timeframe5m,
		Timestamp:      now,
		TotalAssets:    cash + positionsValue,
		Cash:           cash,
		PositionsValue: positionsValue,
		Stale:          stale,
	}
}

// markPrice returns a usable valuation price for symbol and whether it is
// fresh. Stale last-known quotes return (price, false).
func (g *Aggregator) markPrice(symbol string) (float64, bool) {
	q, err := g.oracle.LastPrice(symbol)
	if err == nil {
		return q.Price, true
	}
	if known, ok := g.oracle.LastKnown(symbol); ok {
		return known.Price, false
	}
	return 0, false
}

// promote pushes the fine point into the coarser series on schedule. The
// fine bucket index derives from the point's own timestamp, so promotion
// phase survives restarts: whichever process takes the sample, the same
// wall-clock bucket promotes to the same series.
func (g *Aggregator) promote(pt ledger.EquityPoint) {
	fineMs := g.cfg.FineInterval.Milliseconds()
	if fineMs <= 0 || g.cfg.MediumEvery <= 0 || g.cfg.CoarseEvery <= 0 {
		return
	}
	bucket := pt.Timestamp / fineMs
	if bucket%int64(g.cfg.MediumEvery) != 0 {
		return
	}

	medium := pt
	medium.Timeframe = ledger.Timeframe1h
	if err := g.store.SaveEquityPoint(&medium); err != nil {
		g.log.Warnw("equity_point_save_failed", "account", pt.AccountID, "timeframe", medium.Timeframe, "err", err)
		return
	}

	if bucket%int64(g.cfg.MediumEvery*g.cfg.CoarseEvery) != 0 {
		return
	}

	coarse := pt
	coarse.Timeframe = ledger.Timeframe1d
	if err := g.store.SaveEquityPoint(&coarse); err != nil {
		g.log.Warnw("equity_point_save_failed", "account", pt.AccountID, "timeframe", coarse.Timeframe, "err", err)
	}
}

// prune rolls expired points off the fine series. Coarser series are kept
// indefinitely.
func (g *Aggregator) prune(accountID string, now int64) {
	cutoff := now - g.cfg.FineRetention.Milliseconds()
	pruned, err := g.store.PruneEquitySeries(ledger.Timeframe5m, accountID, cutoff)
	if err != nil {
		g.log.Warnw("equity_prune_failed", "account", accountID, "err", err)
		return
	}
	if pruned > 0 {
		g.log.Debugw("equity_points_pruned", "account", accountID, "count", pruned)
	}
}
