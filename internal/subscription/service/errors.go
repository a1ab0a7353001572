package service

import (
	"errors"

	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/sentinel"
)

// wrapStoreErr translates store sentinels. Already coded errors pass through untouched.
func wrapStoreErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case dErrors.Is(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" already exists")
	case errors.Is(err, sentinel.ErrInsufficientFunds):
		return dErrors.New(dErrors.CodeInsufficientBalance, "insufficient balance")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, what+" is in an invalid state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+what)
	}
}

func errNotSubscribed() error {
	return dErrors.New(dErrors.CodeNotSubscribed, "no active subscription")
}

func errNotAuthorized(msg string) error {
	return dErrors.New(dErrors.CodeNotAuthorized, msg)
}
