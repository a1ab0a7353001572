package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	proofmodels "agegate/internal/proof/models"
	"agegate/internal/proof/prooftest"
	"agegate/internal/proof/prover"
	"agegate/internal/proof/verifier"
	"agegate/internal/subscription/service"
	"agegate/internal/subscription/store"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/requestcontext"
)

// Registration against the real PLONK verifier, with proofs from the real prover.
func TestRegisterWithRealProofs(t *testing.T) {
	_, keys := prooftest.Fixture(t)
	p := prover.New(keys)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewInMemory()
	cfg := service.DefaultConfig()
	cfg.Owner = owner
	svc, err := service.New(st, st, verifier.New(keys.Verifying, verifier.WithLogger(logger)), cfg, service.WithLogger(logger))
	require.NoError(t, err)

	signed := func(caller id.AccountID) context.Context {
		return requestcontext.WithTime(requestcontext.WithCaller(context.Background(), caller), t0)
	}
	plan, err := svc.CreatePlan(signed(owner), service.CreatePlanRequest{
		MinimumAge: minimumAge, Interval: 30 * day, Price: 10, Payee: payee,
	})
	require.NoError(t, err)

	today, err := proofmodels.DayNumber(t0)
	require.NoError(t, err)
	statement := func(subscriber id.AccountID) proofmodels.PublicInputs {
		return proofmodels.PublicInputs{MinimumAge: minimumAge, CurrentDate: today, Subscriber: subscriber}
	}

	t.Run("adult registers with an honest proof", func(t *testing.T) {
		proof, err := p.Prove(proofmodels.Witness{BirthDate: today - 7300, Public: statement(alice)})
		require.NoError(t, err)

		sub, err := svc.Register(signed(alice), plan.ID, service.RegisterRequest{Proof: *proof, ChannelHandle: "tg:@alice"})
		require.NoError(t, err)
		assert.True(t, sub.IsActive())
	})

	t.Run("minor cannot obtain a proof", func(t *testing.T) {
		_, err := p.Prove(proofmodels.Witness{BirthDate: today - 5000, Public: statement(bob)})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeWitnessInvalid))
	})

	t.Run("proof cannot be replayed by another account", func(t *testing.T) {
		proof, err := p.Prove(proofmodels.Witness{BirthDate: today - 7300, Public: statement(alice)})
		require.NoError(t, err)

		_, err = svc.Register(signed(mallory), plan.ID, service.RegisterRequest{Proof: *proof, ChannelHandle: "tg:@mallory"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofRejected))

		proof.Public.Subscriber = mallory
		_, err = svc.Register(signed(mallory), plan.ID, service.RegisterRequest{Proof: *proof, ChannelHandle: "tg:@mallory"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofRejected))

		sub, err := svc.GetSubscription(context.Background(), mallory, plan.ID)
		require.NoError(t, err)
		assert.Nil(t, sub)
	})

	t.Run("corrupted proof bytes are rejected", func(t *testing.T) {
		proof, err := p.Prove(proofmodels.Witness{BirthDate: today - 9000, Public: statement(bob)})
		require.NoError(t, err)
		proof.Bytes = proof.Bytes[:len(proof.Bytes)-1]

		_, err = svc.Register(signed(bob), plan.ID, service.RegisterRequest{Proof: *proof, ChannelHandle: "tg:@bob"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofRejected))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofMalformed))
	})
}
