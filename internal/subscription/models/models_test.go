package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

var t0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func account(b byte) id.AccountID {
	var a id.AccountID
	a[31] = b
	return a
}

func TestNewPlan(t *testing.T) {
	planID := id.PlanID(uuid.New())

	p, err := NewPlan(planID, 6570, 30*24*time.Hour, 10, account(0xaa), t0)
	require.NoError(t, err)
	assert.Equal(t, uint64(6570), p.MinimumAge)

	cases := map[string]func() (*Plan, error){
		"nil id":         func() (*Plan, error) { return NewPlan(id.PlanID{}, 1, time.Hour, 1, account(1), t0) },
		"zero interval":  func() (*Plan, error) { return NewPlan(planID, 1, 0, 1, account(1), t0) },
		"zero price":     func() (*Plan, error) { return NewPlan(planID, 1, time.Hour, 0, account(1), t0) },
		"missing payee":  func() (*Plan, error) { return NewPlan(planID, 1, time.Hour, 1, id.AccountID{}, t0) },
		"age over range": func() (*Plan, error) { return NewPlan(planID, 1<<33, time.Hour, 1, account(1), t0) },
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := build()
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s, err := NewSubscription(id.SubscriptionID(uuid.New()), account(0x0b), id.PlanID(uuid.New()), "tg:@bob", t0)
	require.NoError(t, err)
	assert.True(t, s.IsActive())
	assert.Equal(t, "tg:@bob", s.ChannelHandle)
	assert.Equal(t, t0, s.StartedAt)
	assert.Equal(t, t0, s.LastSettledAt)
	assert.Equal(t, s.Subscriber, s.EscrowAccount)

	s.ApplySettlement(2, time.Hour)
	assert.Equal(t, t0.Add(2*time.Hour), s.LastSettledAt)
	assert.Equal(t, uint64(2), s.PaidIntervals)
	assert.Equal(t, t0.Add(3*time.Hour), s.NextDueAt(time.Hour))

	require.NoError(t, s.CanCancel())
	s.ApplyCancellation(CancelBySubscriber, t0.Add(5*time.Hour))
	assert.False(t, s.IsActive())
	require.NotNil(t, s.CancelledAt)
	assert.Equal(t, CancelBySubscriber, s.CancelReason)

	err = s.CanCancel()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyCancelled))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotSubscribed))
	assert.True(t, dErrors.HasCode(s.CanSettle(), dErrors.CodeNotSubscribed))
}

func TestNewSubscriptionRequiresParties(t *testing.T) {
	_, err := NewSubscription(id.SubscriptionID(uuid.New()), id.AccountID{}, id.PlanID(uuid.New()), "h", t0)
	assert.Error(t, err)
	_, err = NewSubscription(id.SubscriptionID(uuid.New()), account(1), id.PlanID{}, "h", t0)
	assert.Error(t, err)
	_, err = NewSubscription(id.SubscriptionID(uuid.New()), account(1), id.PlanID(uuid.New()), "", t0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateChannelHandle(t *testing.T) {
	tests := []struct {
		name    string
		handle  string
		wantErr bool
	}{
		{"telegram handle", "tg:@alice", false},
		{"email", "alice@example.org", false},
		{"unicode", "matrix:@zoë:example.org", false},
		{"at the length limit", strings.Repeat("a", MaxChannelHandleLength), false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"too long", strings.Repeat("a", MaxChannelHandleLength+1), true},
		{"control character", "alice\n", true},
		{"invalid utf-8", "\xff\xfe", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannelHandle(tt.handle)
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusActive.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusActive))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusCancelled))
	assert.False(t, Status("paused").IsValid())
}

func TestElapsedIntervals(t *testing.T) {
	interval := 30 * 24 * time.Hour

	assert.Zero(t, ElapsedIntervals(t0, t0, interval))
	assert.Zero(t, ElapsedIntervals(t0, t0.Add(interval-time.Second), interval))
	assert.Equal(t, uint64(1), ElapsedIntervals(t0, t0.Add(interval), interval))
	assert.Equal(t, uint64(2), ElapsedIntervals(t0, t0.Add(65*24*time.Hour), interval))
	assert.Zero(t, ElapsedIntervals(t0, t0.Add(-time.Hour), interval))
}

func TestPlanCharge(t *testing.T) {
	t.Run("fully funded", func(t *testing.T) {
		c := PlanCharge(2, 100, 10)
		assert.Equal(t, Charge{Due: 2, Charged: 2, Amount: 20}, c)
		assert.Equal(t, OutcomeSettled, c.Outcome())
	})

	t.Run("partially funded", func(t *testing.T) {
		c := PlanCharge(2, 15, 10)
		assert.Equal(t, Charge{Due: 2, Charged: 1, Amount: 10}, c)
		assert.Equal(t, OutcomePartial, c.Outcome())
	})

	t.Run("nothing due", func(t *testing.T) {
		assert.Equal(t, OutcomeNoop, PlanCharge(0, 100, 10).Outcome())
	})

	t.Run("nothing affordable", func(t *testing.T) {
		c := PlanCharge(3, 9, 10)
		assert.Zero(t, c.Charged)
		assert.Zero(t, c.Amount)
	})

	t.Run("amount never overflows", func(t *testing.T) {
		top := ^uint64(0)
		c := PlanCharge(top, top, top/2)
		assert.Equal(t, uint64(2), c.Charged)
		assert.LessOrEqual(t, c.Amount, top)
	})
}

func TestGraceExpired(t *testing.T) {
	grace := 72 * time.Hour

	assert.False(t, GraceExpired(t0, t0.Add(grace-time.Second), grace))
	assert.True(t, GraceExpired(t0, t0.Add(grace), grace), "boundary is inclusive")
	assert.True(t, GraceExpired(t0, t0.Add(31*24*time.Hour+time.Hour), grace),
		"measured from the last settlement, not from the first due time")
}
