//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"agegate/internal/subscription/models"
	"agegate/internal/subscription/service"
	"agegate/internal/subscription/store"
	id "agegate/pkg/domain"
	"agegate/pkg/platform/sentinel"
	"agegate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	ctx      context.Context
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(s.ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	err := s.postgres.TruncateTables(s.ctx, "settlement_receipts", "subscriptions", "plans", "balances", "delegates", "registry_owner")
	s.Require().NoError(err)
}

func acct(b byte) id.AccountID {
	var a id.AccountID
	a[0] = 0xff
	a[31] = b
	return a
}

func (s *PostgresStoreSuite) createPlan() *models.Plan {
	p, err := models.NewPlan(id.PlanID(uuid.New()), 6570, 30*24*time.Hour, ^uint64(0)>>1, acct(0xee), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreatePlan(s.ctx, p))
	return p
}

func (s *PostgresStoreSuite) TestPlanRoundTrip() {
	p := s.createPlan()

	found, err := s.store.FindPlan(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Price, found.Price)
	s.Equal(p.Interval, found.Interval)
	s.Equal(p.Payee, found.Payee)
	s.True(p.CreatedAt.Equal(found.CreatedAt))

	s.ErrorIs(s.store.CreatePlan(s.ctx, p), sentinel.ErrConflict)

	_, err = s.store.FindPlan(s.ctx, id.PlanID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSubscriptionLifecycle() {
	p := s.createPlan()
	bob := acct(0x0b)

	first, err := models.NewSubscription(id.SubscriptionID(uuid.New()), bob, p.ID, "mailto:bob@example.com", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.InsertSubscription(s.ctx, first))

	dup, _ := models.NewSubscription(id.SubscriptionID(uuid.New()), bob, p.ID, "mailto:bob@example.com", s.now)
	s.ErrorIs(s.store.InsertSubscription(s.ctx, dup), sentinel.ErrConflict)

	first.ApplySettlement(3, p.Interval)
	s.Require().NoError(s.store.UpdateSubscription(s.ctx, first))
	first.ApplyCancellation(models.CancelUnderfunded, s.now.Add(time.Hour))
	s.Require().NoError(s.store.UpdateSubscription(s.ctx, first))
	s.ErrorIs(s.store.UpdateSubscription(s.ctx, first), sentinel.ErrInvalidState)

	second, _ := models.NewSubscription(id.SubscriptionID(uuid.New()), bob, p.ID, "tg:@bob", s.now.Add(2*time.Hour))
	s.Require().NoError(s.store.InsertSubscription(s.ctx, second))

	latest, err := s.store.FindSubscription(s.ctx, bob, p.ID)
	s.Require().NoError(err)
	s.Equal(second.ID, latest.ID)
	s.Equal("tg:@bob", latest.ChannelHandle)

	history, err := s.store.ListHistory(s.ctx, bob, p.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(uint64(3), history[0].PaidIntervals)
	s.Equal(models.CancelUnderfunded, history[0].CancelReason)
	s.Require().NotNil(history[0].CancelledAt)

	active, err := s.store.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(second.ID, active[0].ID)

	byPlan, err := s.store.ListActiveByPlan(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(byPlan, 1)
	s.Equal(second.ID, byPlan[0].ID)

	byPlan, err = s.store.ListActiveByPlan(s.ctx, s.createPlan().ID)
	s.Require().NoError(err)
	s.Empty(byPlan)
}

func (s *PostgresStoreSuite) TestOwner() {
	_, err := s.store.Owner(s.ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.SetOwner(s.ctx, acct(1), s.now))
	s.Require().NoError(s.store.SetOwner(s.ctx, acct(2), s.now.Add(time.Hour)))

	owner, err := s.store.Owner(s.ctx)
	s.Require().NoError(err)
	s.Equal(acct(2), owner)
}

func (s *PostgresStoreSuite) TestBalancesAndRollback() {
	alice, bob := acct(0x0a), acct(0x0b)
	s.Require().NoError(s.store.Credit(s.ctx, alice, ^uint64(0)))
	s.ErrorIs(s.store.Credit(s.ctx, alice, 1), sentinel.ErrInvalidState)

	bal, err := s.store.Balance(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(^uint64(0), bal)

	s.ErrorIs(s.store.Debit(s.ctx, bob, 1), sentinel.ErrInsufficientFunds)

	boom := errors.New("boom")
	err = s.store.RunInTx(s.ctx, func(st service.Store) error {
		s.Require().NoError(st.Debit(s.ctx, alice, 100))
		s.Require().NoError(st.Credit(s.ctx, bob, 100))
		return boom
	})
	s.ErrorIs(err, boom)

	bal, _ = s.store.Balance(s.ctx, bob)
	s.Zero(bal)
}

func (s *PostgresStoreSuite) TestDelegates() {
	owner, delegate := acct(1), acct(2)
	s.Require().NoError(s.store.PutDelegate(s.ctx, models.Delegation{Owner: owner, Delegate: delegate, CreatedAt: s.now}))
	s.Require().NoError(s.store.PutDelegate(s.ctx, models.Delegation{Owner: owner, Delegate: delegate, CreatedAt: s.now}))

	ok, err := s.store.IsDelegate(s.ctx, owner, delegate)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.store.DeleteDelegate(s.ctx, owner, delegate))
	s.ErrorIs(s.store.DeleteDelegate(s.ctx, owner, delegate), sentinel.ErrNotFound)
}

// TestConcurrentDebitsNeverOverdraw debits one balance from many transactions at once.
func (s *PostgresStoreSuite) TestConcurrentDebitsNeverOverdraw() {
	alice := acct(0x0a)
	s.Require().NoError(s.store.Credit(s.ctx, alice, 100))

	const goroutines = 25
	var wg sync.WaitGroup
	var ok atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RunInTx(s.ctx, func(st service.Store) error {
				return st.Debit(s.ctx, alice, 10)
			})
			if err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(10), ok.Load())
	bal, err := s.store.Balance(s.ctx, alice)
	s.Require().NoError(err)
	s.Zero(bal)
}
