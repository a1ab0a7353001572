// Package prover produces min-age proofs. It holds no mutable state, so one Prover can
// serve concurrent callers.
package prover

import (
	"bytes"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"

	"agegate/internal/proof/circuit"
	"agegate/internal/proof/models"
	"agegate/internal/proof/setup"
	dErrors "agegate/pkg/domain-errors"
)

// Prover wraps the compiled circuit and the proving key.
type Prover struct {
	ccs constraint.ConstraintSystem
	pk  plonk.ProvingKey
}

// New builds a prover from setup output.
func New(keys *setup.Keys) *Prover {
	return &Prover{ccs: keys.CCS, pk: keys.Proving}
}

// Check reports whether w satisfies the circuit without producing a proof.
func (p *Prover) Check(w models.Witness) error {
	_, err := p.solve(w)
	return err
}

func (p *Prover) solve(w models.Witness) (witness.Witness, error) {
	if err := w.Public.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeWitnessInvalid, "public inputs out of range")
	}
	if w.BirthDate > models.MaxDay {
		return nil, dErrors.New(dErrors.CodeWitnessInvalid, "birth date out of range")
	}
	if !w.Satisfied() {
		return nil, dErrors.New(dErrors.CodeWitnessInvalid, "witness does not satisfy the age threshold")
	}

	full, err := circuit.FullWitness(w)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeWitnessInvalid, "build witness")
	}
	if err := p.ccs.IsSolved(full); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeWitnessInvalid, "constraint system not satisfied")
	}
	return full, nil
}

// Prove returns a proof for w. No proof bytes exist unless the witness satisfies every
// constraint.
func (p *Prover) Prove(w models.Witness) (*models.AgeProof, error) {
	full, err := p.solve(w)
	if err != nil {
		return nil, err
	}
	proof, err := plonk.Prove(p.ccs, p.pk, full)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate proof")
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode proof")
	}
	return &models.AgeProof{Bytes: buf.Bytes(), Public: w.Public}, nil
}
