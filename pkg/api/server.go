package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/simtrade/paperarena/params"
	"github.com/simtrade/paperarena/pkg/engine"
	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/oracle"
	"github.com/simtrade/paperarena/pkg/util"
)

// Server exposes the trading engine over WebSocket (the primary surface)
// and a read-only REST API.
type Server struct {
	log      *zap.SugaredLogger
	registry *engine.Registry
	store    *ledger.Store
	oracle   *oracle.Cached
	clock    util.Clock
	cfg      params.Server

	router *mux.Router
	hub    *Hub
	events chan engine.Event
}

// NewServer creates an API server over the given engine
func NewServer(log *zap.SugaredLogger, registry *engine.Registry, store *ledger.Store, px *oracle.Cached, clock util.Clock, cfg params.Server) *Server {
	s := &Server{
		log:      log,
		registry: registry,
		store:    store,
		oracle:   px,
		clock:    clock,
		cfg:      cfg,
		router:   mux.NewRouter(),
		hub:      NewHub(),
		events:   make(chan engine.Event, 1024),
	}

	s.setupRoutes()
	return s
}

// Sink returns the event sink to wire into the engine. It never blocks:
// if the event buffer is full the event is dropped, and the periodic
// snapshot refresh repairs any session that missed it.
func (s *Server) Sink() engine.EventSink {
	return func(evt engine.Event) {
		select {
		case s.events <- evt:
		default:
			s.log.Warnw("event_dropped", "type", evt.Type, "account", evt.AccountID)
		}
	}
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{id}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/accounts/{id}/curves/{timeframe}", s.handleGetAccountCurve).Methods("GET")
	api.HandleFunc("/curves/{timeframe}", s.handleGetCurves).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()
	go s.consumeEvents(ctx)
	go s.refreshLoop(ctx)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{Addr: s.cfg.Addr, Handler: c.Handler(s.router)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_server_starting", "addr", s.cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// consumeEvents fans engine events out to the sessions bound to the
// affected account: the event itself, then a fresh snapshot.
func (s *Server) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-s.events:
			if !s.hub.hasSessionsFor(evt.AccountID) {
				continue
			}

			var push *OrderEvent
			if evt.Order != nil {
				push = &OrderEvent{Type: evt.Type, Order: orderInfo(*evt.Order)}
				if evt.Trade != nil {
					ti := tradeInfo(*evt.Trade)
					push.Trade = &ti
				}
			}

			// Build outside the hub lock, deliver under it.
			snap, err := s.snapshotOf(evt.AccountID)
			s.hub.deliver(func(client *Client) {
				if client.boundAccount() != evt.AccountID {
					return
				}
				if push != nil {
					client.push(*push)
				}
				if err == nil {
					client.pushSnapshot(snap)
				}
			})
		}
	}
}

// refreshLoop periodically re-pushes snapshots to every bound session so
// valuations track prices even with no order activity.
func (s *Server) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshots := make(map[string]Snapshot)
			for accountID := range s.hub.boundAccounts() {
				snap, err := s.snapshotOf(accountID)
				if err != nil {
					continue
				}
				snapshots[accountID] = snap
			}
			s.hub.deliver(func(client *Client) {
				if snap, ok := snapshots[client.boundAccount()]; ok {
					client.pushSnapshot(snap)
				}
			})
		}
	}
}

// ==============================
// Command dispatch
// ==============================

func (s *Server) handleCommand(c *Client, cmd Command) {
	switch cmd.Action {
	case "bootstrap":
		s.cmdBootstrap(c, cmd)
	case "get_snapshot":
		s.cmdSnapshot(c)
	case "place_order":
		s.cmdPlaceOrder(c, cmd)
	case "cancel_order":
		s.cmdCancelOrder(c, cmd)
	case "switch_account":
		s.cmdSwitchAccount(c, cmd)
	case "get_asset_curve":
		s.cmdAssetCurve(c, cmd)
	case "ping":
		c.push(Pong{Type: "pong", Timestamp: s.clock.Now().UnixMilli()})
	default:
		c.push(ErrorPush{Type: "error", Code: "validation_error", Message: "unknown action " + cmd.Action})
	}
}

func (s *Server) cmdBootstrap(c *Client, cmd Command) {
	kind := ledger.AccountKind(cmd.Kind)
	if cmd.Kind == "" {
		kind = ledger.KindManual
	}
	actor, err := s.registry.Bootstrap(cmd.Name, kind, cmd.InitialCapital)
	if err != nil {
		c.push(errPush(err))
		return
	}

	c.bind(actor.AccountID())
	snap, err := s.snapshotOf(actor.AccountID())
	if err != nil {
		c.push(errPush(err))
		return
	}
	c.push(BootstrapOK{Type: "bootstrap_ok", Account: snap.Account})
	c.pushSnapshot(snap)
}

func (s *Server) cmdSnapshot(c *Client) {
	accountID := c.boundAccount()
	if accountID == "" {
		c.push(errPush(errNotBound))
		return
	}
	snap, err := s.snapshotOf(accountID)
	if err != nil {
		c.push(errPush(err))
		return
	}
	c.pushSnapshot(snap)
}

func (s *Server) cmdPlaceOrder(c *Client, cmd Command) {
	accountID := c.boundAccount()
	if accountID == "" {
		c.push(errPush(errNotBound))
		return
	}
	actor, err := s.registry.Get(accountID)
	if err != nil {
		c.push(errPush(err))
		return
	}

	req := engine.OrderRequest{
		Symbol:     cmd.Symbol,
		Side:       ledger.Side(cmd.Side),
		Type:       ledger.OrderType(cmd.Type),
		Quantity:   cmd.Quantity,
		LimitPrice: cmd.LimitPrice,
	}
	if _, err := actor.SubmitOrder(req); err != nil {
		c.push(errPush(err))
	}
	// Success pushes (order_pending / order_filled + snapshot) arrive via
	// the event sink, same as fills triggered by the monitor.
}

func (s *Server) cmdCancelOrder(c *Client, cmd Command) {
	accountID := c.boundAccount()
	if accountID == "" {
		c.push(errPush(errNotBound))
		return
	}
	actor, err := s.registry.Get(accountID)
	if err != nil {
		c.push(errPush(err))
		return
	}
	if _, err := actor.CancelOrder(cmd.OrderID); err != nil {
		c.push(errPush(err))
	}
}

func (s *Server) cmdSwitchAccount(c *Client, cmd Command) {
	actor, err := s.registry.Get(cmd.AccountID)
	if err != nil {
		c.push(errPush(err))
		return
	}

	c.bind(actor.AccountID())
	snap, err := s.snapshotOf(actor.AccountID())
	if err != nil {
		c.push(errPush(err))
		return
	}
	c.push(AccountSwitched{Type: "account_switched", Account: snap.Account})
	c.pushSnapshot(snap)
}

func (s *Server) cmdAssetCurve(c *Client, cmd Command) {
	tf := ledger.Timeframe(cmd.Timeframe)
	if !ledger.ValidTimeframe(tf) {
		c.push(ErrorPush{Type: "error", Code: "validation_error", Message: "unknown timeframe " + cmd.Timeframe})
		return
	}

	curve, err := s.assetCurve(tf)
	if err != nil {
		c.push(errPush(err))
		return
	}
	c.push(curve)
}

// assetCurve collects every account's series at one timeframe, for
// cross-account comparison charts.
func (s *Server) assetCurve(tf ledger.Timeframe) (AssetCurve, error) {
	curve := AssetCurve{Type: "asset_curve", Timeframe: string(tf)}
	for _, actor := range s.registry.List() {
		points, err := s.store.LoadEquitySeries(tf, actor.AccountID())
		if err != nil {
			return AssetCurve{}, err
		}
		curve.Accounts = append(curve.Accounts, AccountCurve{
			AccountID:   actor.AccountID(),
			AccountName: actor.AccountName(),
			Points:      curvePoints(points),
		})
	}
	return curve, nil
}

// ==============================
// Snapshot building
// ==============================

const snapshotOrderLimit = 20

// snapshotOf takes a consistent view of the account and enriches it with
// current prices. Valuation falls back to the last known quote, then to
// average cost, marking the position stale.
func (s *Server) snapshotOf(accountID string) (Snapshot, error) {
	actor, err := s.registry.Get(accountID)
	if err != nil {
		return Snapshot{}, err
	}
	view, err := actor.Snapshot()
	if err != nil {
		return Snapshot{}, err
	}
	snap := s.buildSnapshot(view)

	points, err := s.store.LoadEquitySeries(ledger.Timeframe5m, accountID)
	if err != nil {
		s.log.Warnw("equity_series_load_failed", "account", accountID, "err", err)
	} else {
		snap.EquityCurve = curvePoints(points)
	}
	return snap, nil
}

func (s *Server) buildSnapshot(view engine.View) Snapshot {
	positions := make([]PositionInfo, 0, len(view.Positions))
	positionsValue := 0.0
	for _, pos := range view.Positions {
		price, fresh := s.markPrice(pos.Symbol)
		stale := !fresh
		if price == 0 {
			price = pos.AvgCost
			stale = true
		}
		value := pos.Quantity * price
		positionsValue += value
		positions = append(positions, PositionInfo{
			Symbol:            pos.Symbol,
			Name:              pos.Name,
			Quantity:          pos.Quantity,
			AvailableQuantity: pos.AvailableQuantity,
			AvgCost:           pos.AvgCost,
			LastPrice:         price,
			MarketValue:       value,
			UnrealizedPnL:     (price - pos.AvgCost) * pos.Quantity,
			Stale:             stale,
		})
	}

	openOrders := make([]OrderInfo, 0, len(view.OpenOrders))
	for i, o := range view.OpenOrders {
		if i >= snapshotOrderLimit {
			break
		}
		openOrders = append(openOrders, orderInfo(o))
	}

	trades := make([]TradeInfo, 0, len(view.RecentTrades))
	for _, t := range view.RecentTrades {
		trades = append(trades, tradeInfo(t))
	}

	cash := view.Account.CurrentCash + view.Account.FrozenCash
	return Snapshot{
		Type: "snapshot",
		Seq:  view.Seq,
		Account: AccountInfo{
			ID:             view.Account.ID,
			Name:           view.Account.Name,
			Kind:           string(view.Account.Kind),
			InitialCapital: view.Account.InitialCapital,
			CurrentCash:    view.Account.CurrentCash,
			FrozenCash:     view.Account.FrozenCash,
			PositionsValue: positionsValue,
			TotalAssets:    cash + positionsValue,
			Active:         view.Account.Active,
		},
		Positions:    positions,
		OpenOrders:   openOrders,
		RecentTrades: trades,
		Timestamp:    s.clock.Now().UnixMilli(),
	}
}

func (s *Server) markPrice(symbol string) (float64, bool) {
	q, err := s.oracle.LastPrice(symbol)
	if err == nil {
		return q.Price, true
	}
	if known, ok := s.oracle.LastKnown(symbol); ok {
		return known.Price, false
	}
	return 0, false
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	actors := s.registry.List()
	accounts := make([]AccountInfo, 0, len(actors))
	for _, actor := range actors {
		snap, err := s.snapshotOf(actor.AccountID())
		if err != nil {
			continue
		}
		accounts = append(accounts, snap.Account)
	}
	respondJSON(w, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snap, err := s.snapshotOf(vars["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found", err.Error())
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	accountID := vars["id"]
	if _, err := s.registry.Get(accountID); err != nil {
		respondError(w, http.StatusNotFound, "account not found", err.Error())
		return
	}

	orders, err := s.store.LoadOrders(accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load orders", err.Error())
		return
	}

	out := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderInfo(*o))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	accountID := vars["id"]
	if _, err := s.registry.Get(accountID); err != nil {
		respondError(w, http.StatusNotFound, "account not found", err.Error())
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	trades, err := s.store.LoadRecentTrades(accountID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}

	out := make([]TradeInfo, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeInfo(*t))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetAccountCurve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	accountID := vars["id"]
	tf := ledger.Timeframe(vars["timeframe"])

	actor, err := s.registry.Get(accountID)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found", err.Error())
		return
	}
	if !ledger.ValidTimeframe(tf) {
		respondError(w, http.StatusBadRequest, "unknown timeframe", string(tf))
		return
	}

	points, err := s.store.LoadEquitySeries(tf, accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load curve", err.Error())
		return
	}
	respondJSON(w, AccountCurve{
		AccountID:   accountID,
		AccountName: actor.AccountName(),
		Points:      curvePoints(points),
	})
}

func (s *Server) handleGetCurves(w http.ResponseWriter, r *http.Request) {
	tf := ledger.Timeframe(mux.Vars(r)["timeframe"])
	if !ledger.ValidTimeframe(tf) {
		respondError(w, http.StatusBadRequest, "unknown timeframe", string(tf))
		return
	}

	curve, err := s.assetCurve(tf)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load curves", err.Error())
		return
	}
	respondJSON(w, curve)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

var errNotBound = errors.New("no account bound; bootstrap or switch_account first")

// errPush maps engine/ledger errors to wire error codes.
func errPush(err error) ErrorPush {
	code := "internal_error"
	switch {
	case errors.Is(err, ledger.ErrValidation):
		code = "validation_error"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		code = "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientPosition):
		code = "insufficient_position"
	case errors.Is(err, ledger.ErrPriceUnavailable):
		code = "price_unavailable"
	case errors.Is(err, ledger.ErrOrderNotCancellable):
		code = "order_not_cancellable"
	case errors.Is(err, ledger.ErrAccountNotFound):
		code = "account_not_found"
	case errors.Is(err, errNotBound):
		code = "validation_error"
	}
	return ErrorPush{Type: "error", Code: code, Message: err.Error()}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
