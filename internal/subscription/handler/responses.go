package handler

import (
	"time"

	"agegate/internal/subscription/models"
)

type PlanResponse struct {
	ID             string    `json:"id"`
	MinimumAgeDays uint64    `json:"minimum_age_days"`
	Interval       string    `json:"interval"`
	Price          uint64    `json:"price"`
	Payee          string    `json:"payee"`
	CreatedAt      time.Time `json:"created_at"`
}

func toPlanResponse(p *models.Plan) PlanResponse {
	return PlanResponse{
		ID:             p.ID.String(),
		MinimumAgeDays: p.MinimumAge,
		Interval:       p.Interval.String(),
		Price:          p.Price,
		Payee:          p.Payee.String(),
		CreatedAt:      p.CreatedAt,
	}
}

type SubscriptionResponse struct {
	ID            string     `json:"id"`
	Subscriber    string     `json:"subscriber"`
	PlanID        string     `json:"plan_id"`
	ChannelHandle string     `json:"channel_handle"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	LastSettledAt time.Time  `json:"last_settled_at"`
	PaidIntervals uint64     `json:"paid_intervals"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
}

func toSubscriptionResponse(s *models.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:            s.ID.String(),
		Subscriber:    s.Subscriber.String(),
		PlanID:        s.PlanID.String(),
		ChannelHandle: s.ChannelHandle,
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		LastSettledAt: s.LastSettledAt,
		PaidIntervals: s.PaidIntervals,
		CancelledAt:   s.CancelledAt,
		CancelReason:  string(s.CancelReason),
	}
}

type SubscriptionListResponse struct {
	PlanID        string                 `json:"plan_id"`
	Subscriptions []SubscriptionResponse `json:"subscriptions"`
}

type ReceiptResponse struct {
	ID               string    `json:"id"`
	SubscriptionID   string    `json:"subscription_id"`
	Outcome          string    `json:"outcome"`
	IntervalsDue     uint64    `json:"intervals_due"`
	IntervalsCharged uint64    `json:"intervals_charged"`
	Amount           uint64    `json:"amount"`
	LastSettledAt    time.Time `json:"last_settled_at"`
	SettledAt        time.Time `json:"settled_at"`
}

func toReceiptResponse(r *models.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:               r.ID.String(),
		SubscriptionID:   r.SubscriptionID.String(),
		Outcome:          string(r.Outcome),
		IntervalsDue:     r.IntervalsDue,
		IntervalsCharged: r.IntervalsCharged,
		Amount:           r.Amount,
		LastSettledAt:    r.LastSettledAt,
		SettledAt:        r.SettledAt,
	}
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type OwnerResponse struct {
	Owner string `json:"owner"`
}
