package service

import (
	"context"
	"errors"

	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/sentinel"
	"agegate/pkg/requestcontext"
)

// Owner returns the account allowed to create plans. Until ownership is first transferred
// this is Config.Owner; the zero account means nobody.
func (s *Service) Owner(ctx context.Context) (id.AccountID, error) {
	return s.currentOwner(ctx, s.store)
}

func (s *Service) currentOwner(ctx context.Context, store OwnerStore) (id.AccountID, error) {
	owner, err := store.Owner(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.cfg.Owner, nil
	}
	if err != nil {
		return id.AccountID{}, wrapStoreErr(err, "owner")
	}
	return owner, nil
}

// TransferOwnership hands plan administration to next. Only the current owner may call it
// and next must be a different, non-zero account. The new owner is persisted, so it
// survives restarts and overrides OWNER_ACCOUNT from then on.
func (s *Service) TransferOwnership(ctx context.Context, next id.AccountID) (err error) {
	caller := requestcontext.Caller(ctx)
	ctx, end := s.startSpan(ctx, "registry.transfer_ownership", accountAttr("next_owner", next))
	defer func() { end(err) }()

	if next.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "new owner is required")
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(store Store) error {
		current, err := s.currentOwner(ctx, store)
		if err != nil {
			return err
		}
		if current.IsZero() || caller != current {
			return errNotAuthorized("only the owner may transfer ownership")
		}
		if next == current {
			return dErrors.New(dErrors.CodeConflict, "new owner must be different")
		}
		return wrapStoreErr(store.SetOwner(ctx, next, now), "owner")
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "ownership transferred", "previous", caller.String(), "next", next.String())
	s.events.flush(ctx, pending{ownershipTransferred(models.OwnershipTransferred{
		Previous: caller,
		Next:     next,
		At:       now,
	})})
	return nil
}
