package models

import (
	"time"

	proofmodels "agegate/internal/proof/models"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

// Plan is an offering subscribers register against.
//
// Invariants:
//   - Interval and Price are strictly positive
//   - MinimumAge fits the circuit's date width
//   - Payee is a non-zero account
//   - A plan never changes after creation
type Plan struct {
	ID         id.PlanID     `json:"id"`
	MinimumAge uint64        `json:"minimum_age_days"`
	Interval   time.Duration `json:"interval"`
	Price      uint64        `json:"price"`
	Payee      id.AccountID  `json:"payee"`
	CreatedAt  time.Time     `json:"created_at"`
}

func NewPlan(planID id.PlanID, minimumAge uint64, interval time.Duration, price uint64, payee id.AccountID, now time.Time) (*Plan, error) {
	if planID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "plan id is required")
	}
	if minimumAge > proofmodels.MaxDay {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "minimum age exceeds the provable range")
	}
	if interval <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "settlement interval must be positive")
	}
	if price == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "price per interval must be positive")
	}
	if payee.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payee is required")
	}
	return &Plan{
		ID:         planID,
		MinimumAge: minimumAge,
		Interval:   interval,
		Price:      price,
		Payee:      payee,
		CreatedAt:  now,
	}, nil
}
