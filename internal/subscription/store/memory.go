// Package store persists plans, subscription records, balances, delegations and
// settlement receipts. InMemory serves tests and single-node development; PostgresStore is
// the durable backend.
package store

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"agegate/internal/subscription/models"
	"agegate/internal/subscription/service"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

type pairKey struct {
	subscriber id.AccountID
	plan       id.PlanID
}

type delegateKey struct {
	owner    id.AccountID
	delegate id.AccountID
}

// state is one consistent snapshot. Methods assume the caller holds the store lock.
type state struct {
	plans     map[id.PlanID]*models.Plan
	records   map[id.SubscriptionID]*models.Subscription
	history   map[pairKey][]id.SubscriptionID
	balances  map[id.AccountID]uint64
	delegates map[delegateKey]models.Delegation
	receipts  []*models.Receipt
	owner     id.AccountID
	ownerSet  bool
}

func newState() *state {
	return &state{
		plans:     make(map[id.PlanID]*models.Plan),
		records:   make(map[id.SubscriptionID]*models.Subscription),
		history:   make(map[pairKey][]id.SubscriptionID),
		balances:  make(map[id.AccountID]uint64),
		delegates: make(map[delegateKey]models.Delegation),
	}
}

// clone copies maps and record values. Plans and receipts are immutable and shared.
func (st *state) clone() *state {
	c := &state{
		plans:     make(map[id.PlanID]*models.Plan, len(st.plans)),
		records:   make(map[id.SubscriptionID]*models.Subscription, len(st.records)),
		history:   make(map[pairKey][]id.SubscriptionID, len(st.history)),
		balances:  make(map[id.AccountID]uint64, len(st.balances)),
		delegates: make(map[delegateKey]models.Delegation, len(st.delegates)),
		receipts:  slices.Clone(st.receipts),
		owner:     st.owner,
		ownerSet:  st.ownerSet,
	}
	for k, v := range st.plans {
		c.plans[k] = v
	}
	for k, v := range st.records {
		c.records[k] = copySubscription(v)
	}
	for k, v := range st.history {
		c.history[k] = slices.Clone(v)
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.delegates {
		c.delegates[k] = v
	}
	return c
}

// InMemory is a mutex-guarded store. RunInTx works on a private snapshot and swaps it in
// only when fn succeeds, so a failed transaction leaves no trace.
type InMemory struct {
	mu      sync.RWMutex
	state   *state
	timeout time.Duration
}

func NewInMemory() *InMemory {
	return &InMemory{state: newState(), timeout: defaultTxTimeout}
}

// RunInTx serialises transactions behind one lock.
func (s *InMemory) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	snapshot := s.state.clone()
	if err := fn(&txView{st: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

// read runs fn under the read lock against the committed state.
func (s *InMemory) read(fn func(v *txView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&txView{st: s.state})
}

// write runs a single-statement write as its own transaction.
func (s *InMemory) write(ctx context.Context, fn func(v *txView) error) error {
	return s.RunInTx(ctx, func(st service.Store) error {
		v, _ := st.(*txView)
		return fn(v)
	})
}

func (s *InMemory) CreatePlan(ctx context.Context, plan *models.Plan) error {
	return s.write(ctx, func(v *txView) error { return v.CreatePlan(ctx, plan) })
}

func (s *InMemory) FindPlan(ctx context.Context, planID id.PlanID) (plan *models.Plan, err error) {
	err = s.read(func(v *txView) error {
		plan, err = v.FindPlan(ctx, planID)
		return err
	})
	return plan, err
}

func (s *InMemory) FindSubscription(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (sub *models.Subscription, err error) {
	err = s.read(func(v *txView) error {
		sub, err = v.FindSubscription(ctx, subscriber, planID)
		return err
	})
	return sub, err
}

func (s *InMemory) ListHistory(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (subs []*models.Subscription, err error) {
	err = s.read(func(v *txView) error {
		subs, err = v.ListHistory(ctx, subscriber, planID)
		return err
	})
	return subs, err
}

func (s *InMemory) ListActive(ctx context.Context) (subs []*models.Subscription, err error) {
	err = s.read(func(v *txView) error {
		subs, err = v.ListActive(ctx)
		return err
	})
	return subs, err
}

func (s *InMemory) ListActiveByPlan(ctx context.Context, planID id.PlanID) (subs []*models.Subscription, err error) {
	err = s.read(func(v *txView) error {
		subs, err = v.ListActiveByPlan(ctx, planID)
		return err
	})
	return subs, err
}

func (s *InMemory) InsertSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.write(ctx, func(v *txView) error { return v.InsertSubscription(ctx, sub) })
}

func (s *InMemory) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.write(ctx, func(v *txView) error { return v.UpdateSubscription(ctx, sub) })
}

func (s *InMemory) Balance(ctx context.Context, account id.AccountID) (balance uint64, err error) {
	err = s.read(func(v *txView) error {
		balance, err = v.Balance(ctx, account)
		return err
	})
	return balance, err
}

func (s *InMemory) Credit(ctx context.Context, account id.AccountID, amount uint64) error {
	return s.write(ctx, func(v *txView) error { return v.Credit(ctx, account, amount) })
}

func (s *InMemory) Debit(ctx context.Context, account id.AccountID, amount uint64) error {
	return s.write(ctx, func(v *txView) error { return v.Debit(ctx, account, amount) })
}

func (s *InMemory) InsertReceipt(ctx context.Context, receipt *models.Receipt) error {
	return s.write(ctx, func(v *txView) error { return v.InsertReceipt(ctx, receipt) })
}

// Receipts lists every stored receipt for a subscription, oldest first.
func (s *InMemory) Receipts(ctx context.Context, subscriptionID id.SubscriptionID) (receipts []*models.Receipt, err error) {
	err = s.read(func(v *txView) error {
		for _, r := range v.st.receipts {
			if r.SubscriptionID == subscriptionID {
				cp := *r
				receipts = append(receipts, &cp)
			}
		}
		return nil
	})
	return receipts, err
}

func (s *InMemory) IsDelegate(ctx context.Context, owner, delegate id.AccountID) (ok bool, err error) {
	err = s.read(func(v *txView) error {
		ok, err = v.IsDelegate(ctx, owner, delegate)
		return err
	})
	return ok, err
}

func (s *InMemory) PutDelegate(ctx context.Context, d models.Delegation) error {
	return s.write(ctx, func(v *txView) error { return v.PutDelegate(ctx, d) })
}

func (s *InMemory) DeleteDelegate(ctx context.Context, owner, delegate id.AccountID) error {
	return s.write(ctx, func(v *txView) error { return v.DeleteDelegate(ctx, owner, delegate) })
}

func (s *InMemory) Owner(ctx context.Context) (owner id.AccountID, err error) {
	err = s.read(func(v *txView) error {
		owner, err = v.Owner(ctx)
		return err
	})
	return owner, err
}

func (s *InMemory) SetOwner(ctx context.Context, owner id.AccountID, at time.Time) error {
	return s.write(ctx, func(v *txView) error { return v.SetOwner(ctx, owner, at) })
}

// txView implements service.Store over a snapshot. It never locks.
type txView struct {
	st *state
}

func (v *txView) CreatePlan(_ context.Context, plan *models.Plan) error {
	if _, ok := v.st.plans[plan.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *plan
	v.st.plans[plan.ID] = &cp
	return nil
}

func (v *txView) FindPlan(_ context.Context, planID id.PlanID) (*models.Plan, error) {
	plan, ok := v.st.plans[planID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *plan
	return &cp, nil
}

func (v *txView) FindSubscription(_ context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Subscription, error) {
	ids := v.st.history[pairKey{subscriber, planID}]
	if len(ids) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return copySubscription(v.st.records[ids[len(ids)-1]]), nil
}

func (v *txView) ListHistory(_ context.Context, subscriber id.AccountID, planID id.PlanID) ([]*models.Subscription, error) {
	ids := v.st.history[pairKey{subscriber, planID}]
	out := make([]*models.Subscription, 0, len(ids))
	for _, subID := range ids {
		out = append(out, copySubscription(v.st.records[subID]))
	}
	return out, nil
}

func (v *txView) ListActive(_ context.Context) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, sub := range v.st.records {
		if sub.IsActive() {
			out = append(out, copySubscription(sub))
		}
	}
	slices.SortFunc(out, func(a, b *models.Subscription) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out, nil
}

func (v *txView) ListActiveByPlan(ctx context.Context, planID id.PlanID) ([]*models.Subscription, error) {
	all, err := v.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(sub *models.Subscription) bool { return sub.PlanID != planID }), nil
}

func (v *txView) InsertSubscription(_ context.Context, sub *models.Subscription) error {
	if _, ok := v.st.records[sub.ID]; ok {
		return sentinel.ErrConflict
	}
	key := pairKey{sub.Subscriber, sub.PlanID}
	if ids := v.st.history[key]; len(ids) > 0 && v.st.records[ids[len(ids)-1]].IsActive() {
		return sentinel.ErrConflict
	}
	v.st.records[sub.ID] = copySubscription(sub)
	v.st.history[key] = append(v.st.history[key], sub.ID)
	return nil
}

func (v *txView) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	existing, ok := v.st.records[sub.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !existing.IsActive() {
		return sentinel.ErrInvalidState
	}
	v.st.records[sub.ID] = copySubscription(sub)
	return nil
}

func (v *txView) Balance(_ context.Context, account id.AccountID) (uint64, error) {
	return v.st.balances[account], nil
}

func (v *txView) Credit(_ context.Context, account id.AccountID, amount uint64) error {
	current := v.st.balances[account]
	if amount > math.MaxUint64-current {
		return sentinel.ErrInvalidState
	}
	v.st.balances[account] = current + amount
	return nil
}

func (v *txView) Debit(_ context.Context, account id.AccountID, amount uint64) error {
	current := v.st.balances[account]
	if amount > current {
		return sentinel.ErrInsufficientFunds
	}
	v.st.balances[account] = current - amount
	return nil
}

func (v *txView) InsertReceipt(_ context.Context, receipt *models.Receipt) error {
	cp := *receipt
	v.st.receipts = append(v.st.receipts, &cp)
	return nil
}

func (v *txView) IsDelegate(_ context.Context, owner, delegate id.AccountID) (bool, error) {
	_, ok := v.st.delegates[delegateKey{owner, delegate}]
	return ok, nil
}

func (v *txView) PutDelegate(_ context.Context, d models.Delegation) error {
	v.st.delegates[delegateKey{d.Owner, d.Delegate}] = d
	return nil
}

func (v *txView) DeleteDelegate(_ context.Context, owner, delegate id.AccountID) error {
	key := delegateKey{owner, delegate}
	if _, ok := v.st.delegates[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(v.st.delegates, key)
	return nil
}

func (v *txView) Owner(_ context.Context) (id.AccountID, error) {
	if !v.st.ownerSet {
		return id.AccountID{}, sentinel.ErrNotFound
	}
	return v.st.owner, nil
}

func (v *txView) SetOwner(_ context.Context, owner id.AccountID, _ time.Time) error {
	v.st.owner = owner
	v.st.ownerSet = true
	return nil
}

func copySubscription(sub *models.Subscription) *models.Subscription {
	if sub == nil {
		return nil
	}
	cp := *sub
	if sub.CancelledAt != nil {
		at := *sub.CancelledAt
		cp.CancelledAt = &at
	}
	return &cp
}
