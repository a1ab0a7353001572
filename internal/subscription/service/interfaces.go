package service

import (
	"context"
	"time"

	"agegate/internal/audit"
	proofmodels "agegate/internal/proof/models"
	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
)

type PlanStore interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	FindPlan(ctx context.Context, planID id.PlanID) (*models.Plan, error)
}

// SubscriptionStore keeps every record ever created. FindSubscription returns the latest
// record for the pair.
type SubscriptionStore interface {
	FindSubscription(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Subscription, error)
	ListHistory(ctx context.Context, subscriber id.AccountID, planID id.PlanID) ([]*models.Subscription, error)
	ListActive(ctx context.Context) ([]*models.Subscription, error)
	ListActiveByPlan(ctx context.Context, planID id.PlanID) ([]*models.Subscription, error)
	InsertSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
}

// LedgerStore holds escrow balances and settlement receipts.
type LedgerStore interface {
	Balance(ctx context.Context, account id.AccountID) (uint64, error)
	Credit(ctx context.Context, account id.AccountID, amount uint64) error
	Debit(ctx context.Context, account id.AccountID, amount uint64) error
	InsertReceipt(ctx context.Context, receipt *models.Receipt) error
}

type DelegateStore interface {
	IsDelegate(ctx context.Context, owner, delegate id.AccountID) (bool, error)
	PutDelegate(ctx context.Context, d models.Delegation) error
	DeleteDelegate(ctx context.Context, owner, delegate id.AccountID) error
}

// OwnerStore holds the registry owner once it has been transferred away from the
// configured one. Owner returns sentinel.ErrNotFound until then.
type OwnerStore interface {
	Owner(ctx context.Context) (id.AccountID, error)
	SetOwner(ctx context.Context, owner id.AccountID, at time.Time) error
}

// Store is everything one transaction can touch.
type Store interface {
	PlanStore
	SubscriptionStore
	LedgerStore
	DelegateStore
	OwnerStore
}

// StoreTx provides the transactional boundary. Implementations run fn against a view of
// the store whose writes become visible only if fn returns nil.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// ProofVerifier checks an age proof. A nil error means the proof is accepted.
type ProofVerifier interface {
	Verify(ctx context.Context, proof []byte, public proofmodels.PublicInputs) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
