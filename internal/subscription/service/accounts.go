package service

import (
	"context"

	"agegate/internal/audit"
	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/requestcontext"
)

// Deposit credits the caller's escrow balance.
func (s *Service) Deposit(ctx context.Context, amount uint64) (balance uint64, err error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return 0, errNotAuthorized("deposit must be signed")
	}
	if amount == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	err = s.tx.RunInTx(ctx, func(store Store) error {
		if err := store.Credit(ctx, caller, amount); err != nil {
			return wrapStoreErr(err, "balance")
		}
		balance, err = store.Balance(ctx, caller)
		return wrapStoreErr(err, "balance")
	})
	if err != nil {
		return 0, err
	}
	s.events.flush(ctx, pending{accountEvent(audit.EventBalanceDeposited, caller, amount, nil)})
	return balance, nil
}

func (s *Service) BalanceOf(ctx context.Context, account id.AccountID) (uint64, error) {
	balance, err := s.store.Balance(ctx, account)
	if err != nil {
		return 0, wrapStoreErr(err, "balance")
	}
	return balance, nil
}

// AuthorizeDelegate lets delegate cancel the caller's subscriptions.
func (s *Service) AuthorizeDelegate(ctx context.Context, delegate id.AccountID) error {
	owner := requestcontext.Caller(ctx)
	if owner.IsZero() {
		return errNotAuthorized("delegation must be signed")
	}
	if delegate.IsZero() || delegate == owner {
		return dErrors.New(dErrors.CodeBadRequest, "delegate must be another account")
	}
	d := models.Delegation{Owner: owner, Delegate: delegate, CreatedAt: requestcontext.Now(ctx)}
	if err := s.tx.RunInTx(ctx, func(store Store) error {
		return wrapStoreErr(store.PutDelegate(ctx, d), "delegate")
	}); err != nil {
		return err
	}
	actor := delegate
	s.events.flush(ctx, pending{accountEvent(audit.EventDelegateAuthorized, owner, 0, &actor)})
	return nil
}

// RevokeDelegate removes a delegation the caller granted.
func (s *Service) RevokeDelegate(ctx context.Context, delegate id.AccountID) error {
	owner := requestcontext.Caller(ctx)
	if owner.IsZero() {
		return errNotAuthorized("delegation must be signed")
	}
	if err := s.tx.RunInTx(ctx, func(store Store) error {
		return wrapStoreErr(store.DeleteDelegate(ctx, owner, delegate), "delegate")
	}); err != nil {
		return err
	}
	actor := delegate
	s.events.flush(ctx, pending{accountEvent(audit.EventDelegateRevoked, owner, 0, &actor)})
	return nil
}
