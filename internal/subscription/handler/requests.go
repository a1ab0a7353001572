package handler

import (
	"encoding/hex"
	"strings"
	"time"

	proofmodels "agegate/internal/proof/models"
	"agegate/internal/subscription/models"
	"agegate/internal/subscription/service"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

// CreatePlanRequest is the body of POST /v1/plans.
type CreatePlanRequest struct {
	ID             string `json:"id,omitempty" validate:"omitempty,uuid"`
	MinimumAgeDays uint64 `json:"minimum_age_days"`
	Interval       string `json:"interval" validate:"required"`
	Price          uint64 `json:"price" validate:"required,gt=0"`
	Payee          string `json:"payee" validate:"required"`

	parsed service.CreatePlanRequest
}

// Validate implements httputil.Validatable.
func (r *CreatePlanRequest) Validate() error {
	interval, err := time.ParseDuration(strings.TrimSpace(r.Interval))
	if err != nil || interval <= 0 {
		return dErrors.New(dErrors.CodeValidation, "interval must be a positive duration such as 720h")
	}
	payee, err := id.ParseAccountID(r.Payee)
	if err != nil {
		return err
	}
	if r.ID != "" {
		planID, err := id.ParsePlanID(r.ID)
		if err != nil {
			return err
		}
		r.parsed.ID = planID
	}
	r.parsed.MinimumAge = r.MinimumAgeDays
	r.parsed.Interval = interval
	r.parsed.Price = r.Price
	r.parsed.Payee = payee
	return nil
}

// PublicInputsRequest mirrors proofmodels.PublicInputs on the wire.
type PublicInputsRequest struct {
	MinimumAge  uint64 `json:"minimum_age"`
	CurrentDate uint64 `json:"current_date" validate:"required"`
	Subscriber  string `json:"subscriber" validate:"required"`
}

// RegisterRequest is the body of POST /v1/plans/{planID}/subscriptions. Proof is
// hex-encoded. ChannelHandle is opaque to the registry, e.g. "tg:@alice".
type RegisterRequest struct {
	Proof         string              `json:"proof" validate:"required,hexadecimal"`
	PublicInputs  PublicInputsRequest `json:"public_inputs" validate:"required"`
	ChannelHandle string              `json:"channel_handle" validate:"required,max=256"`

	parsed service.RegisterRequest
}

func (r *RegisterRequest) Validate() error {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(r.Proof, "0x"), "0X"))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "proof must be hex encoded")
	}
	subscriber, err := id.ParseAccountID(r.PublicInputs.Subscriber)
	if err != nil {
		return err
	}
	r.parsed = service.RegisterRequest{
		Proof: proofmodels.AgeProof{
			Bytes: raw,
			Public: proofmodels.PublicInputs{
				MinimumAge:  r.PublicInputs.MinimumAge,
				CurrentDate: r.PublicInputs.CurrentDate,
				Subscriber:  subscriber,
			},
		},
		ChannelHandle: r.ChannelHandle,
	}
	return models.ValidateChannelHandle(r.ChannelHandle)
}

// TransferOwnershipRequest is the body of PUT /v1/owner.
type TransferOwnershipRequest struct {
	Owner string `json:"owner" validate:"required"`

	parsed id.AccountID
}

func (r *TransferOwnershipRequest) Validate() error {
	owner, err := id.ParseAccountID(r.Owner)
	if err != nil {
		return err
	}
	r.parsed = owner
	return nil
}

// DepositRequest is the body of POST /v1/accounts/deposit.
type DepositRequest struct {
	Amount uint64 `json:"amount" validate:"required,gt=0"`
}
