// Package verifier checks min-age proofs under a gas budget.
//
// Failures are coded: proof_malformed for bytes that do not decode as a proof,
// proof_rejected for well-formed proofs that do not verify against the statement, and
// out_of_resources when the budget cannot cover the call. Nothing here mutates state.
package verifier

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"

	"agegate/internal/proof/circuit"
	"agegate/internal/proof/models"
	dErrors "agegate/pkg/domain-errors"
)

const (
	// DefaultMaxProofSize bounds accepted proof encodings.
	DefaultMaxProofSize = 4096
	// DefaultBudget covers one verification under DefaultSchedule with headroom.
	DefaultBudget = 500_000

	nbPublicInputs = 4
)

// Verifier holds the verifying key. Safe for concurrent use.
type Verifier struct {
	vk           plonk.VerifyingKey
	schedule     GasSchedule
	budget       uint64
	maxProofSize int
	metrics      *Metrics
	logger       *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithSchedule overrides the gas schedule.
func WithSchedule(s GasSchedule) Option {
	return func(v *Verifier) { v.schedule = s }
}

// WithBudget sets the per-call gas budget used by Verify.
func WithBudget(budget uint64) Option {
	return func(v *Verifier) { v.budget = budget }
}

// WithMaxProofSize bounds the accepted proof length.
func WithMaxProofSize(n int) Option {
	return func(v *Verifier) { v.maxProofSize = n }
}

func WithMetrics(m *Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// New builds a verifier for vk.
func New(vk plonk.VerifyingKey, opts ...Option) *Verifier {
	v := &Verifier{
		vk:           vk,
		schedule:     DefaultSchedule,
		budget:       DefaultBudget,
		maxProofSize: DefaultMaxProofSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks proof against public with a fresh meter holding the configured budget.
func (v *Verifier) Verify(ctx context.Context, proof []byte, public models.PublicInputs) error {
	return v.VerifyMetered(ctx, NewMeter(v.budget), proof, public)
}

// VerifyMetered checks proof against public, charging meter before doing the work.
func (v *Verifier) VerifyMetered(ctx context.Context, meter *Meter, proof []byte, public models.PublicInputs) (err error) {
	start := time.Now()
	before := meter.Used()
	defer func() {
		outcome := outcomeOf(err)
		if v.metrics != nil {
			v.metrics.ObserveVerification(outcome, meter.Used()-before, start)
		}
		if err != nil {
			v.logger.DebugContext(ctx, "proof verification failed",
				"outcome", outcome,
				"subscriber", public.Subscriber.String(),
				"error", err,
			)
		}
	}()

	if len(proof) == 0 {
		return dErrors.New(dErrors.CodeProofMalformed, "empty proof")
	}
	if len(proof) > v.maxProofSize {
		return dErrors.New(dErrors.CodeProofMalformed,
			fmt.Sprintf("proof is %d bytes, limit %d", len(proof), v.maxProofSize))
	}
	if err := meter.Charge(v.schedule.Cost(len(proof), nbPublicInputs)); err != nil {
		return err
	}
	if err := public.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeProofRejected, "public inputs outside the circuit range")
	}

	decoded, err := decode(proof)
	if err != nil {
		return err
	}
	publicWitness, err := circuit.PublicWitness(public)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeProofRejected, "encode public inputs")
	}
	return v.verify(decoded, publicWitness)
}

func decode(raw []byte) (proof plonk.Proof, err error) {
	defer func() {
		if r := recover(); r != nil {
			proof, err = nil, dErrors.New(dErrors.CodeProofMalformed, fmt.Sprintf("decode proof: %v", r))
		}
	}()

	proof = plonk.NewProof(circuit.Curve)
	n, err := proof.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProofMalformed, "decode proof")
	}
	if n != int64(len(raw)) {
		return nil, dErrors.New(dErrors.CodeProofMalformed,
			fmt.Sprintf("%d trailing bytes after proof", int64(len(raw))-n))
	}
	return proof, nil
}

func (v *Verifier) verify(proof plonk.Proof, public witness.Witness) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = dErrors.New(dErrors.CodeProofMalformed, fmt.Sprintf("verify proof: %v", r))
		}
	}()
	if err := plonk.Verify(proof, v.vk, public); err != nil {
		return dErrors.Wrap(err, dErrors.CodeProofRejected, "proof does not verify")
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case dErrors.HasCode(err, dErrors.CodeOutOfResources):
		return OutcomeOutOfResources
	case dErrors.HasCode(err, dErrors.CodeProofMalformed):
		return OutcomeMalformed
	default:
		return OutcomeRejected
	}
}
