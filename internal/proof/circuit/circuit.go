// Package circuit defines the minimum-age statement as a PLONK constraint system.
//
// The statement: the prover knows BirthDate such that
//
//	CurrentDate - BirthDate - MinimumAge >= 0
//
// over the integers, with every date bounded to models.DateBits bits. The subscriber
// account is carried as two public 128-bit limbs so a proof only unlocks registration for
// the account it was generated for.
package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"

	"agegate/internal/proof/models"
)

// SubscriberLimbBits is the width of each half of the subscriber account.
const SubscriberLimbBits = 128

// Curve is the pairing-friendly curve every artefact (params, keys, proofs) lives on.
const Curve = ecc.BN254

// MinAgeCircuit is the constraint system. Public inputs are ordered; the verifier
// rebuilds them in this exact order.
type MinAgeCircuit struct {
	BirthDate frontend.Variable `gnark:",secret"`

	MinimumAge   frontend.Variable `gnark:",public"`
	CurrentDate  frontend.Variable `gnark:",public"`
	SubscriberHi frontend.Variable `gnark:",public"`
	SubscriberLo frontend.Variable `gnark:",public"`
}

// Define declares the constraints.
func (c *MinAgeCircuit) Define(api frontend.API) error {
	for _, v := range []frontend.Variable{c.BirthDate, c.MinimumAge, c.CurrentDate} {
		if err := RangeCheck(api, v, models.DateBits); err != nil {
			return err
		}
	}

	age := api.Sub(c.CurrentDate, c.BirthDate)
	if err := AssertGreaterOrEqual(api, age, c.MinimumAge, models.DateBits+1); err != nil {
		return err
	}

	if err := RangeCheck(api, c.SubscriberHi, SubscriberLimbBits); err != nil {
		return err
	}
	return RangeCheck(api, c.SubscriberLo, SubscriberLimbBits)
}

// Compile builds the sparse R1CS used by the PLONK backend.
func Compile() (constraint.ConstraintSystem, error) {
	var c MinAgeCircuit
	ccs, err := frontend.Compile(Curve.ScalarField(), scs.NewBuilder, &c)
	if err != nil {
		return nil, fmt.Errorf("compile min-age circuit: %w", err)
	}
	return ccs, nil
}

// Assign maps a witness onto circuit variables.
func Assign(w models.Witness) *MinAgeCircuit {
	a := AssignPublic(w.Public)
	a.BirthDate = w.BirthDate
	return a
}

// AssignPublic maps public inputs onto circuit variables; the secret stays zero.
func AssignPublic(p models.PublicInputs) *MinAgeCircuit {
	hi, lo := p.SubscriberLimbs()
	return &MinAgeCircuit{
		BirthDate:    0,
		MinimumAge:   p.MinimumAge,
		CurrentDate:  p.CurrentDate,
		SubscriberHi: hi,
		SubscriberLo: lo,
	}
}

// FullWitness builds the prover-side witness vector.
func FullWitness(w models.Witness) (witness.Witness, error) {
	full, err := frontend.NewWitness(Assign(w), Curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build full witness: %w", err)
	}
	return full, nil
}

// PublicWitness builds the verifier-side witness vector.
func PublicWitness(p models.PublicInputs) (witness.Witness, error) {
	public, err := frontend.NewWitness(AssignPublic(p), Curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, fmt.Errorf("build public witness: %w", err)
	}
	return public, nil
}
