package models

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

// Status of a subscription record. A missing record is the implicit third state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCancelled
}

// CanTransitionTo allows Active -> Cancelled only. Cancelled is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next == StatusCancelled
}

// CancelReason records who or what ended a subscription.
type CancelReason string

const (
	CancelBySubscriber CancelReason = "subscriber"
	CancelByDelegate   CancelReason = "delegate"
	CancelUnderfunded  CancelReason = "underfunded"
)

// Subscription is the aggregate root for one subscriber on one plan.
//
// Invariants:
//   - A record is only created Active, by a verified registration
//   - LastSettledAt = StartedAt + PaidIntervals*Interval, so it only moves forward
//   - Cancelled is terminal: a cancelled record is never mutated again
//   - Records are never deleted; re-registering creates a new record
type Subscription struct {
	ID            id.SubscriptionID `json:"id"`
	Subscriber    id.AccountID      `json:"subscriber"`
	PlanID        id.PlanID         `json:"plan_id"`
	Status        Status            `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	LastSettledAt time.Time         `json:"last_settled_at"`
	// ChannelHandle is the subscriber's address on the external notification channel.
	ChannelHandle string `json:"channel_handle"`
	// EscrowAccount is the balance settlement draws from.
	EscrowAccount id.AccountID `json:"escrow_account"`
	PaidIntervals uint64       `json:"paid_intervals"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`
	CancelReason  CancelReason `json:"cancel_reason,omitempty"`
}

// MaxChannelHandleLength bounds ChannelHandle in bytes.
const MaxChannelHandleLength = 256

// ValidateChannelHandle requires a non-blank printable handle of bounded length.
func ValidateChannelHandle(handle string) error {
	switch {
	case strings.TrimSpace(handle) == "":
		return dErrors.New(dErrors.CodeValidation, "channel handle is required")
	case len(handle) > MaxChannelHandleLength:
		return dErrors.New(dErrors.CodeValidation, "channel handle is too long")
	case !utf8.ValidString(handle) || strings.IndexFunc(handle, unicode.IsControl) >= 0:
		return dErrors.New(dErrors.CodeValidation, "channel handle must be printable text")
	}
	return nil
}

// NewSubscription starts an Active record at now. The first interval is paid at the end
// of it, never up front.
func NewSubscription(subscriptionID id.SubscriptionID, subscriber id.AccountID, planID id.PlanID, channelHandle string, now time.Time) (*Subscription, error) {
	if err := ValidateChannelHandle(channelHandle); err != nil {
		return nil, err
	}
	if subscriber.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subscriber is required")
	}
	if planID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "plan id is required")
	}
	return &Subscription{
		ID:            subscriptionID,
		Subscriber:    subscriber,
		PlanID:        planID,
		Status:        StatusActive,
		StartedAt:     now,
		LastSettledAt: now,
		ChannelHandle: channelHandle,
		EscrowAccount: subscriber,
	}, nil
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// CanCancel fails with not_subscribed (and already_cancelled) on a cancelled record.
func (s *Subscription) CanCancel() error {
	if !s.Status.CanTransitionTo(StatusCancelled) {
		return errAlreadyCancelled()
	}
	return nil
}

// ApplyCancellation must only follow a nil CanCancel.
func (s *Subscription) ApplyCancellation(reason CancelReason, now time.Time) {
	s.Status = StatusCancelled
	s.CancelReason = reason
	at := now
	s.CancelledAt = &at
}

// CanSettle fails unless the record is Active.
func (s *Subscription) CanSettle() error {
	if !s.IsActive() {
		return errAlreadyCancelled()
	}
	return nil
}

// ApplySettlement records k paid intervals.
func (s *Subscription) ApplySettlement(k uint64, interval time.Duration) {
	s.LastSettledAt = s.LastSettledAt.Add(time.Duration(k) * interval)
	s.PaidIntervals += k
}

// NextDueAt is when the next interval becomes payable.
func (s *Subscription) NextDueAt(interval time.Duration) time.Time {
	return s.LastSettledAt.Add(interval)
}

func errAlreadyCancelled() error {
	return dErrors.Wrap(
		dErrors.New(dErrors.CodeNotSubscribed, "no active subscription"),
		dErrors.CodeAlreadyCancelled, "subscription is cancelled",
	)
}
