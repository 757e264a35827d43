package engine

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/simtrade/paperarena/pkg/id"
	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/oracle"
	"github.com/simtrade/paperarena/pkg/util"
)

// Registry owns the set of account actors: one per persisted account.
// It routes account-scoped operations to the owning actor and is the only
// place actors are created, so an account never has two writers.
type Registry struct {
	log     *zap.SugaredLogger
	store   *ledger.Store
	matcher *Matcher
	oracle  oracle.Oracle
	clock   util.Clock
	sink    EventSink

	defaultCapital float64

	mu     sync.RWMutex
	actors map[string]*Actor // account ID -> actor
	byName map[string]string // account name -> account ID
}

// NewRegistry creates an empty actor registry. Call Load to spawn actors
// for persisted accounts.
func NewRegistry(log *zap.SugaredLogger, store *ledger.Store, matcher *Matcher, px oracle.Oracle, clock util.Clock, sink EventSink, defaultCapital float64) *Registry {
	return &Registry{
		log:            log,
		store:          store,
		matcher:        matcher,
		oracle:         px,
		clock:          clock,
		sink:           sink,
		defaultCapital: defaultCapital,
		actors:         make(map[string]*Actor),
		byName:         make(map[string]string),
	}
}

// Load spawns an actor for every persisted account.
func (r *Registry) Load() error {
	accounts, err := r.store.LoadAllAccounts()
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acct := range accounts {
		if _, ok := r.actors[acct.ID]; ok {
			continue
		}
		actor, err := NewActor(r.log, r.store, r.matcher, r.oracle, r.clock, r.sink, acct)
		if err != nil {
			return err
		}
		actor.Start()
		r.actors[acct.ID] = actor
		r.byName[acct.Name] = acct.ID
	}

	r.log.Infow("accounts_loaded", "count", len(r.actors))
	return nil
}

// Bootstrap attaches to the account with the given name, creating and
// persisting it with the default capital if it does not exist yet.
// Creation is idempotent per name: concurrent bootstraps of the same name
// converge on one account.
func (r *Registry) Bootstrap(name string, kind ledger.AccountKind, initialCapital float64) (*Actor, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: account name required", ledger.ErrValidation)
	}
	if kind != ledger.KindAI && kind != ledger.KindManual {
		return nil, fmt.Errorf("%w: unknown account kind %q", ledger.ErrValidation, kind)
	}
	if initialCapital <= 0 {
		initialCapital = r.defaultCapital
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if accountID, ok := r.byName[name]; ok {
		return r.actors[accountID], nil
	}

	now := r.clock.Now().UnixMilli()
	acct := &ledger.Account{
		ID:             id.New(),
		Name:           name,
		Kind:           kind,
		InitialCapital: initialCapital,
		CurrentCash:    initialCapital,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.SaveAccount(acct); err != nil {
		return nil, fmt.Errorf("persist account %s: %w", name, err)
	}

	actor, err := NewActor(r.log, r.store, r.matcher, r.oracle, r.clock, r.sink, acct)
	if err != nil {
		return nil, err
	}
	actor.Start()
	r.actors[acct.ID] = actor
	r.byName[name] = acct.ID

	r.log.Infow("account_created", "account", name, "id", acct.ID, "kind", kind, "capital", initialCapital)
	return actor, nil
}

// Get returns the actor owning the given account.
func (r *Registry) Get(accountID string) (*Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actor, ok := r.actors[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
	}
	return actor, nil
}

// List returns all actors, ordered by account ID for stable output.
func (r *Registry) List() []*Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i].AccountID() < actors[j].AccountID() })
	return actors
}

// Close stops all actors.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actors {
		a.Stop()
	}
}
