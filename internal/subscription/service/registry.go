package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"agegate/internal/audit"
	proofmodels "agegate/internal/proof/models"
	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/sentinel"
	"agegate/pkg/requestcontext"
)

// CreatePlanRequest carries the fields of a new plan. A nil ID is generated.
type CreatePlanRequest struct {
	ID         id.PlanID
	MinimumAge uint64
	Interval   time.Duration
	Price      uint64
	Payee      id.AccountID
}

// CreatePlan registers an immutable plan. Only the registry owner may call it.
func (s *Service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*models.Plan, error) {
	caller := requestcontext.Caller(ctx)
	owner, err := s.Owner(ctx)
	if err != nil {
		return nil, err
	}
	if owner.IsZero() || caller != owner {
		return nil, errNotAuthorized("only the owner may create plans")
	}
	planID := req.ID
	if planID.IsNil() {
		planID = id.PlanID(uuid.New())
	}
	now := requestcontext.Now(ctx)
	plan, err := models.NewPlan(planID, req.MinimumAge, req.Interval, req.Price, req.Payee, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid plan")
	}
	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return nil, wrapStoreErr(err, "plan")
	}
	s.logger.InfoContext(ctx, "plan created", "plan_id", plan.ID.String(), "price", plan.Price, "interval", plan.Interval)
	s.events.flush(ctx, pending{{
		Type:      audit.EventPlanCreated,
		Timestamp: now,
		Account:   caller,
		PlanID:    plan.ID.String(),
		Amount:    plan.Price,
	}})
	return plan, nil
}

func (s *Service) GetPlan(ctx context.Context, planID id.PlanID) (*models.Plan, error) {
	plan, err := s.plans.FindPlan(ctx, planID)
	if err != nil {
		return nil, wrapStoreErr(err, "plan")
	}
	return plan, nil
}

// RegisterRequest is a proof of eligibility plus where to notify the subscriber.
type RegisterRequest struct {
	Proof         proofmodels.AgeProof
	ChannelHandle string
}

// Register admits the caller onto a plan. The proof is checked before the transaction
// opens; the active-record check and the insert then happen atomically inside it, so of
// two racing registrations exactly one succeeds and the other sees already_subscribed.
func (s *Service) Register(ctx context.Context, planID id.PlanID, req RegisterRequest) (sub *models.Subscription, err error) {
	start := time.Now()
	caller := requestcontext.Caller(ctx)
	ctx, end := s.startSpan(ctx, "subscription.register", accountAttr("subscriber", caller), planAttr(planID))
	defer func() {
		end(err)
		if s.metrics == nil {
			return
		}
		s.metrics.ObserveRegister(start)
		if err != nil {
			s.metrics.IncrementRegisterRejected(string(dErrors.CodeOf(err)))
		} else {
			s.metrics.IncrementRegistered()
		}
	}()

	if caller.IsZero() {
		return nil, errNotAuthorized("registration must be signed by the subscriber")
	}
	if err := models.ValidateChannelHandle(req.ChannelHandle); err != nil {
		return nil, err
	}
	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	// Cheap rejection before paying for verification. Re-checked inside the transaction.
	if current, err := s.store.FindSubscription(ctx, caller, planID); err == nil && current.IsActive() {
		return nil, errAlreadySubscribed()
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapStoreErr(err, "subscription")
	}

	now := requestcontext.Now(ctx)
	if err := s.checkStatement(plan, caller, req.Proof.Public, now); err != nil {
		return nil, err
	}
	if err := s.verifyProof(ctx, req.Proof); err != nil {
		return nil, err
	}

	sub, err = models.NewSubscription(id.SubscriptionID(uuid.New()), caller, planID, req.ChannelHandle, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build subscription")
	}
	err = s.tx.RunInTx(ctx, func(store Store) error {
		current, err := store.FindSubscription(ctx, caller, planID)
		switch {
		case err == nil && current.IsActive():
			return errAlreadySubscribed()
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return wrapStoreErr(err, "subscription")
		}
		if err := store.InsertSubscription(ctx, sub); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return errAlreadySubscribed()
			}
			return wrapStoreErr(err, "subscription")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription registered",
		"subscription_id", sub.ID.String(), "subscriber", caller.String(), "plan_id", planID.String())
	s.events.flush(ctx, pending{subscriptionCreated(models.SubscriptionCreated{
		SubscriptionID: sub.ID,
		Subscriber:     caller,
		PlanID:         planID,
		ChannelHandle:  sub.ChannelHandle,
		At:             now,
	})})
	return sub, nil
}

// checkStatement binds the proof's public inputs to this call: the plan's threshold, the
// signing account and the ledger's own date within the freshness window.
func (s *Service) checkStatement(plan *models.Plan, caller id.AccountID, public proofmodels.PublicInputs, now time.Time) error {
	today, err := proofmodels.DayNumber(now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger time out of range")
	}
	if distance(public.CurrentDate, today) > s.cfg.FreshnessToleranceDays {
		return dErrors.New(dErrors.CodeStaleTimestamp, "proof date is outside the freshness window")
	}
	if public.MinimumAge != plan.MinimumAge {
		return dErrors.New(dErrors.CodeProofRejected, "proof is for a different minimum age")
	}
	if public.Subscriber != caller {
		return dErrors.New(dErrors.CodeProofRejected, "proof is bound to a different subscriber")
	}
	return nil
}

// verifyProof collapses every verifier failure into proof_rejected, keeping the inner
// code for diagnostics. An exhausted budget surfaces as out_of_resources.
func (s *Service) verifyProof(ctx context.Context, proof proofmodels.AgeProof) error {
	err := s.verifier.Verify(ctx, proof.Bytes, proof.Public)
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeOutOfResources):
		return err
	case dErrors.CodeOf(err) == dErrors.CodeProofRejected:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeProofRejected, "proof rejected")
	}
}

// Cancel ends the caller's (or, for a delegate, the subscriber's) active subscription.
func (s *Service) Cancel(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (sub *models.Subscription, err error) {
	caller := requestcontext.Caller(ctx)
	ctx, end := s.startSpan(ctx, "subscription.cancel", accountAttr("subscriber", subscriber), planAttr(planID))
	defer func() { end(err) }()

	if subscriber.IsZero() {
		subscriber = caller
	}
	now := requestcontext.Now(ctx)
	var reason models.CancelReason
	err = s.tx.RunInTx(ctx, func(store Store) error {
		switch {
		case caller.IsZero():
			return errNotAuthorized("cancellation must be signed")
		case caller == subscriber:
			reason = models.CancelBySubscriber
		default:
			ok, err := store.IsDelegate(ctx, subscriber, caller)
			if err != nil {
				return wrapStoreErr(err, "delegate")
			}
			if !ok {
				return errNotAuthorized("caller is neither the subscriber nor a delegate")
			}
			reason = models.CancelByDelegate
		}

		current, err := store.FindSubscription(ctx, subscriber, planID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return errNotSubscribed()
		}
		if err != nil {
			return wrapStoreErr(err, "subscription")
		}
		if err := current.CanCancel(); err != nil {
			return err
		}
		current.ApplyCancellation(reason, now)
		if err := store.UpdateSubscription(ctx, current); err != nil {
			return wrapStoreErr(err, "subscription")
		}
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCancelled(string(reason))
	}
	s.logger.InfoContext(ctx, "subscription cancelled",
		"subscription_id", sub.ID.String(), "subscriber", subscriber.String(), "reason", string(reason))
	s.events.flush(ctx, pending{subscriptionCancelled(models.SubscriptionCancelled{
		SubscriptionID: sub.ID,
		Subscriber:     subscriber,
		PlanID:         planID,
		Reason:         reason,
		By:             caller,
		At:             now,
	})})
	return sub, nil
}

// GetSubscription returns the latest record for the pair, or nil when there never was one.
func (s *Service) GetSubscription(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Subscription, error) {
	sub, err := s.store.FindSubscription(ctx, subscriber, planID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr(err, "subscription")
	}
	return sub, nil
}

// ListHistory returns every record the pair ever had, oldest first.
func (s *Service) ListHistory(ctx context.Context, subscriber id.AccountID, planID id.PlanID) ([]*models.Subscription, error) {
	subs, err := s.store.ListHistory(ctx, subscriber, planID)
	if err != nil {
		return nil, wrapStoreErr(err, "subscription")
	}
	return subs, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	subs, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "subscription")
	}
	return subs, nil
}

// ListActiveByPlan lists the plan's active subscriptions, oldest first, with the channel
// handles a notification service needs. An unknown plan is not_found.
func (s *Service) ListActiveByPlan(ctx context.Context, planID id.PlanID) ([]*models.Subscription, error) {
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	subs, err := s.store.ListActiveByPlan(ctx, planID)
	if err != nil {
		return nil, wrapStoreErr(err, "subscription")
	}
	return subs, nil
}

func errAlreadySubscribed() error {
	return dErrors.New(dErrors.CodeAlreadySubscribed, "subscription is already active")
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
