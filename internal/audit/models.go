package audit

import (
	"time"

	id "agegate/pkg/domain"
)

// EventType names a lifecycle change.
type EventType string

const (
	EventPlanCreated           EventType = "plan_created"
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionSettled   EventType = "subscription_settled"
	EventBalanceDeposited      EventType = "balance_deposited"
	EventDelegateAuthorized    EventType = "delegate_authorized"
	EventDelegateRevoked       EventType = "delegate_revoked"
	EventOwnershipTransferred  EventType = "ownership_transferred"
)

// Event is emitted after a transaction commits. Keep it transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	ID             string       `json:"id"`
	Type           EventType    `json:"type"`
	Timestamp      time.Time    `json:"timestamp"`
	Account        id.AccountID `json:"account"`
	PlanID         string       `json:"plan_id,omitempty"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
	// Actor is who signed the call when different from Account, e.g. a delegate cancelling.
	Actor  *id.AccountID `json:"actor,omitempty"`
	Reason string        `json:"reason,omitempty"`
	// ChannelHandle lets a notification service reach the subscriber.
	ChannelHandle string `json:"channel_handle,omitempty"`
	Amount        uint64 `json:"amount,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}
