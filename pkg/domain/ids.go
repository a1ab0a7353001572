// Package domain holds the typed identifiers shared by every module.
//
// Identifiers are parsed once at trust boundaries (HTTP handlers, CLI flags) and passed
// around typed, so an account can never be confused with a plan or a record id.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "agegate/pkg/domain-errors"
)

// AccountIDSize is the byte length of an on-chain account.
const AccountIDSize = 32

// AccountID identifies a ledger account: a subscriber, a delegate, a payee or the owner.
type AccountID [AccountIDSize]byte

// ParseAccountID accepts 64 hex characters with an optional 0x prefix.
// The all-zero account is reserved and rejected.
func ParseAccountID(s string) (AccountID, error) {
	var a AccountID
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != hex.EncodedLen(AccountIDSize) {
		return a, dErrors.New(dErrors.CodeInvalidInput, "account must be 32 hex-encoded bytes")
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, dErrors.New(dErrors.CodeInvalidInput, "account is not valid hex")
	}
	if a.IsZero() {
		return a, dErrors.New(dErrors.CodeInvalidInput, "account cannot be zero")
	}
	return a, nil
}

func (a AccountID) IsZero() bool { return a == AccountID{} }

func (a AccountID) String() string { return "0x" + hex.EncodeToString(a[:]) }

func (a AccountID) Bytes() []byte { return append([]byte(nil), a[:]...) }

func (a AccountID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// PlanID identifies an immutable plan definition.
type PlanID uuid.UUID

// SubscriptionID identifies one subscription record; a (subscriber, plan) pair may own
// several over time, at most one of them active.
type SubscriptionID uuid.UUID

// ReceiptID identifies a settlement receipt.
type ReceiptID uuid.UUID

func ParsePlanID(s string) (PlanID, error) {
	u, err := parseUUID(s, "plan id")
	return PlanID(u), err
}

func ParseSubscriptionID(s string) (SubscriptionID, error) {
	u, err := parseUUID(s, "subscription id")
	return SubscriptionID(u), err
}

func (id PlanID) String() string         { return uuid.UUID(id).String() }
func (id PlanID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id SubscriptionID) String() string { return uuid.UUID(id).String() }
func (id SubscriptionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ReceiptID) String() string      { return uuid.UUID(id).String() }

func (id PlanID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *PlanID) UnmarshalText(text []byte) error {
	parsed, err := ParsePlanID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id SubscriptionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ReceiptID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be nil")
	}
	return u, nil
}
