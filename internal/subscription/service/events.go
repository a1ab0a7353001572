package service

import (
	"context"
	"log/slog"

	"agegate/internal/audit"
	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
	"agegate/pkg/requestcontext"
)

// auditEmitter turns domain events into audit events. Emission is best effort: the
// ledger transition has already committed, so a failing sink is logged, not returned.
type auditEmitter struct {
	publisher AuditPublisher
	logger    *slog.Logger
}

// pending collects events inside a transaction. Events from a rolled-back transaction
// are simply never flushed.
type pending []audit.Event

func (p *pending) add(e audit.Event) { *p = append(*p, e) }

func (e *auditEmitter) flush(ctx context.Context, events pending) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = requestcontext.Now(ctx)
		}
		if ev.RequestID == "" {
			ev.RequestID = requestcontext.RequestID(ctx)
		}
		if err := e.publisher.Emit(ctx, ev); err != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "failed to emit audit event",
				"type", string(ev.Type), "account", ev.Account.String(), "error", err)
		}
	}
}

func subscriptionCreated(ev models.SubscriptionCreated) audit.Event {
	return audit.Event{
		Type:           audit.EventSubscriptionCreated,
		Timestamp:      ev.At,
		Account:        ev.Subscriber,
		PlanID:         ev.PlanID.String(),
		SubscriptionID: ev.SubscriptionID.String(),
		ChannelHandle:  ev.ChannelHandle,
	}
}

func subscriptionCancelled(ev models.SubscriptionCancelled) audit.Event {
	e := audit.Event{
		Type:           audit.EventSubscriptionCancelled,
		Timestamp:      ev.At,
		Account:        ev.Subscriber,
		PlanID:         ev.PlanID.String(),
		SubscriptionID: ev.SubscriptionID.String(),
		Reason:         string(ev.Reason),
	}
	if !ev.By.IsZero() && ev.By != ev.Subscriber {
		by := ev.By
		e.Actor = &by
	}
	return e
}

func subscriptionSettled(ev models.SubscriptionSettled) audit.Event {
	r := ev.Receipt
	return audit.Event{
		Type:           audit.EventSubscriptionSettled,
		Timestamp:      r.SettledAt,
		Account:        r.Subscriber,
		PlanID:         r.PlanID.String(),
		SubscriptionID: r.SubscriptionID.String(),
		Amount:         r.Amount,
		Outcome:        string(r.Outcome),
	}
}

func accountEvent(t audit.EventType, account id.AccountID, amount uint64, actor *id.AccountID) audit.Event {
	return audit.Event{Type: t, Account: account, Amount: amount, Actor: actor}
}

func ownershipTransferred(ev models.OwnershipTransferred) audit.Event {
	previous := ev.Previous
	return audit.Event{
		Type:      audit.EventOwnershipTransferred,
		Timestamp: ev.At,
		Account:   ev.Next,
		Actor:     &previous,
	}
}
