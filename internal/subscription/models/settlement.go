package models

import (
	"time"

	id "agegate/pkg/domain"
)

// Outcome classifies a settlement call.
type Outcome string

const (
	OutcomeNoop          Outcome = "noop"
	OutcomeSettled       Outcome = "settled"
	OutcomePartial       Outcome = "partial"
	OutcomeAutoCancelled Outcome = "auto_cancelled"
)

// Receipt is returned by every successful settlement call, including no-ops.
type Receipt struct {
	ID               id.ReceiptID      `json:"id"`
	SubscriptionID   id.SubscriptionID `json:"subscription_id"`
	Subscriber       id.AccountID      `json:"subscriber"`
	PlanID           id.PlanID         `json:"plan_id"`
	IntervalsDue     uint64            `json:"intervals_due"`
	IntervalsCharged uint64            `json:"intervals_charged"`
	Amount           uint64            `json:"amount"`
	LastSettledAt    time.Time         `json:"last_settled_at"`
	Outcome          Outcome           `json:"outcome"`
	SettledAt        time.Time         `json:"settled_at"`
}

// ElapsedIntervals counts whole intervals between last and now. Clock skew that puts now
// before last yields zero.
func ElapsedIntervals(last, now time.Time, interval time.Duration) uint64 {
	if interval <= 0 || !now.After(last) {
		return 0
	}
	return uint64(now.Sub(last) / interval)
}

// Charge is the settlement decision for one call.
type Charge struct {
	Due     uint64
	Charged uint64
	Amount  uint64
}

// PlanCharge charges min(due, balance/price) intervals. The amount never exceeds balance,
// so it cannot overflow.
func PlanCharge(due, balance, price uint64) Charge {
	if price == 0 {
		return Charge{Due: due}
	}
	k := min(due, balance/price)
	return Charge{Due: due, Charged: k, Amount: k * price}
}

// Outcome maps a charge to a receipt outcome.
func (c Charge) Outcome() Outcome {
	switch {
	case c.Due == 0:
		return OutcomeNoop
	case c.Charged == c.Due:
		return OutcomeSettled
	default:
		return OutcomePartial
	}
}

// GraceExpired reports whether grace has elapsed since the last successful settlement.
// Callers only ask once at least one interval is due, so a grace shorter than the interval
// cancels an unfunded subscription at its first due settlement.
func GraceExpired(last, now time.Time, grace time.Duration) bool {
	return !now.Before(last.Add(grace))
}
