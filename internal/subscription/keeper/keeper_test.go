package keeper

//go:generate mockgen -source=keeper.go -destination=mocks/mocks.go -package=mocks Settler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"agegate/internal/subscription/keeper/mocks"
	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/requestcontext"
)

type KeeperSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	settler *mocks.MockSettler
	keeper  *Keeper
	now     time.Time
}

func TestKeeperSuite(t *testing.T) {
	suite.Run(t, new(KeeperSuite))
}

func (s *KeeperSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.settler = mocks.NewMockSettler(s.ctrl)
	s.keeper = New(s.settler,
		WithConcurrency(2),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.now = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
}

func (s *KeeperSuite) TearDownTest() {
	s.ctrl.Finish()
}

func subscription(b byte) *models.Subscription {
	var a id.AccountID
	a[31] = b
	return &models.Subscription{
		ID:         id.SubscriptionID(uuid.New()),
		Subscriber: a,
		PlanID:     id.PlanID(uuid.New()),
		Status:     models.StatusActive,
	}
}

func (s *KeeperSuite) expectSettle(sub *models.Subscription, receipt *models.Receipt, err error) {
	s.settler.EXPECT().Settle(gomock.Any(), sub.Subscriber, sub.PlanID).
		DoAndReturn(func(ctx context.Context, _ id.AccountID, _ id.PlanID) (*models.Receipt, error) {
			s.Equal(s.now, requestcontext.Now(ctx), "sweep pins block time")
			return receipt, err
		})
}

func (s *KeeperSuite) TestSweepAt() {
	s.Run("classifies every outcome and keeps going past failures", func() {
		subs := []*models.Subscription{subscription(1), subscription(2), subscription(3), subscription(4), subscription(5), subscription(6)}
		s.settler.EXPECT().ListActive(gomock.Any()).Return(subs, nil)
		s.expectSettle(subs[0], &models.Receipt{Outcome: models.OutcomeSettled}, nil)
		s.expectSettle(subs[1], &models.Receipt{Outcome: models.OutcomePartial}, nil)
		s.expectSettle(subs[2], &models.Receipt{Outcome: models.OutcomeAutoCancelled}, nil)
		s.expectSettle(subs[3], &models.Receipt{Outcome: models.OutcomeNoop}, nil)
		s.expectSettle(subs[4], nil, dErrors.New(dErrors.CodeInsufficientBalance, "broke"))
		s.expectSettle(subs[5], nil, errors.New("store down"))

		res, err := s.keeper.SweepAt(context.Background(), s.now)
		s.Require().NoError(err)
		s.Equal(Result{Checked: 6, Settled: 1, Partial: 1, Cancelled: 1, Noop: 1, Underfunded: 1, Failed: 1}, res)
	})

	s.Run("record cancelled mid-sweep counts as a no-op", func() {
		sub := subscription(7)
		s.settler.EXPECT().ListActive(gomock.Any()).Return([]*models.Subscription{sub}, nil)
		s.expectSettle(sub, nil, dErrors.New(dErrors.CodeNotSubscribed, "gone"))

		res, err := s.keeper.SweepAt(context.Background(), s.now)
		s.Require().NoError(err)
		s.Equal(Result{Checked: 1, Noop: 1}, res)
	})

	s.Run("listing failure aborts the sweep", func() {
		s.settler.EXPECT().ListActive(gomock.Any()).Return(nil, errors.New("store down"))
		_, err := s.keeper.SweepAt(context.Background(), s.now)
		s.Error(err)
	})
}

func (s *KeeperSuite) TestStartStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	k := New(s.settler, WithInterval(time.Millisecond), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.settler.EXPECT().ListActive(gomock.Any()).DoAndReturn(func(context.Context) ([]*models.Subscription, error) {
		cancel()
		return nil, nil
	}).MinTimes(1)

	err := k.Start(ctx)
	s.ErrorIs(err, context.Canceled)
}

func (s *KeeperSuite) TestNonPositiveIntervalFallsBackToDefault() {
	for _, d := range []time.Duration{0, -time.Second} {
		k := New(s.settler, WithInterval(d), WithConcurrency(0))
		s.Equal(DefaultInterval, k.interval)
		s.Equal(1, k.concurrency)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.NotPanics(func() {
			s.ErrorIs(k.Start(ctx), context.Canceled)
		})
	}
}
