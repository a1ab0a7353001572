package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/sentinel"
	"agegate/pkg/requestcontext"
)

// Settle charges whatever whole intervals are due on the pair's active subscription.
//
// Anyone may call it. A pair with no active record, including one on an unknown plan, is
// not_subscribed. Calls within one interval are no-ops. When the balance covers only
// some of the due intervals, those are charged and the rest stay due. When nothing is
// affordable and the grace period has passed since the last successful settlement, the
// subscription is cancelled as underfunded; before that the call fails with
// insufficient_balance and nothing changes.
//
// last_settled always advances by whole intervals, never to now.
func (s *Service) Settle(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (receipt *models.Receipt, err error) {
	start := time.Now()
	ctx, end := s.startSpan(ctx, "subscription.settle", accountAttr("subscriber", subscriber), planAttr(planID))
	defer func() {
		end(err)
		if s.metrics == nil {
			return
		}
		s.metrics.ObserveSettle(start)
		if err == nil {
			s.metrics.ObserveSettlement(string(receipt.Outcome), receipt.Amount)
		}
	}()

	plan, err := s.GetPlan(ctx, planID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotSubscribed, "no subscription for this pair")
	}
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var events pending
	err = s.tx.RunInTx(ctx, func(store Store) error {
		events = nil
		sub, err := store.FindSubscription(ctx, subscriber, planID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return errNotSubscribed()
		}
		if err != nil {
			return wrapStoreErr(err, "subscription")
		}
		if err := sub.CanSettle(); err != nil {
			return err
		}

		due := models.ElapsedIntervals(sub.LastSettledAt, now, plan.Interval)
		if due == 0 {
			receipt = newReceipt(sub, models.Charge{}, now)
			return nil
		}

		balance, err := store.Balance(ctx, sub.EscrowAccount)
		if err != nil {
			return wrapStoreErr(err, "balance")
		}
		charge := models.PlanCharge(due, balance, plan.Price)

		if charge.Charged == 0 {
			if !models.GraceExpired(sub.LastSettledAt, now, s.cfg.GracePeriod) {
				return dErrors.New(dErrors.CodeInsufficientBalance, "balance does not cover one interval")
			}
			sub.ApplyCancellation(models.CancelUnderfunded, now)
			if err := store.UpdateSubscription(ctx, sub); err != nil {
				return wrapStoreErr(err, "subscription")
			}
			receipt = newReceipt(sub, charge, now)
			receipt.Outcome = models.OutcomeAutoCancelled
			if err := store.InsertReceipt(ctx, receipt); err != nil {
				return wrapStoreErr(err, "receipt")
			}
			events.add(subscriptionSettled(models.SubscriptionSettled{Receipt: *receipt}))
			events.add(subscriptionCancelled(models.SubscriptionCancelled{
				SubscriptionID: sub.ID,
				Subscriber:     sub.Subscriber,
				PlanID:         sub.PlanID,
				Reason:         models.CancelUnderfunded,
				At:             now,
			}))
			return nil
		}

		if err := store.Debit(ctx, sub.EscrowAccount, charge.Amount); err != nil {
			return wrapStoreErr(err, "balance")
		}
		if err := store.Credit(ctx, plan.Payee, charge.Amount); err != nil {
			return wrapStoreErr(err, "balance")
		}
		sub.ApplySettlement(charge.Charged, plan.Interval)
		if err := store.UpdateSubscription(ctx, sub); err != nil {
			return wrapStoreErr(err, "subscription")
		}
		receipt = newReceipt(sub, charge, now)
		if err := store.InsertReceipt(ctx, receipt); err != nil {
			return wrapStoreErr(err, "receipt")
		}
		events.add(subscriptionSettled(models.SubscriptionSettled{Receipt: *receipt}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if receipt.Outcome != models.OutcomeNoop {
		s.logger.InfoContext(ctx, "subscription settled",
			"subscription_id", receipt.SubscriptionID.String(),
			"outcome", string(receipt.Outcome),
			"intervals_due", receipt.IntervalsDue,
			"intervals_charged", receipt.IntervalsCharged,
			"amount", receipt.Amount)
		if receipt.Outcome == models.OutcomeAutoCancelled && s.metrics != nil {
			s.metrics.IncrementCancelled(string(models.CancelUnderfunded))
		}
	}
	s.events.flush(ctx, events)
	return receipt, nil
}

func newReceipt(sub *models.Subscription, charge models.Charge, now time.Time) *models.Receipt {
	return &models.Receipt{
		ID:               id.ReceiptID(uuid.New()),
		SubscriptionID:   sub.ID,
		Subscriber:       sub.Subscriber,
		PlanID:           sub.PlanID,
		IntervalsDue:     charge.Due,
		IntervalsCharged: charge.Charged,
		Amount:           charge.Amount,
		LastSettledAt:    sub.LastSettledAt,
		Outcome:          charge.Outcome(),
		SettledAt:        now,
	}
}
