package verifier

import (
	"fmt"
	"math"

	dErrors "agegate/pkg/domain-errors"
)

// GasSchedule prices one verification. Costs are deterministic functions of the input
// sizes so every node charges the same amount for the same call.
type GasSchedule struct {
	Base           uint64
	PerProofByte   uint64
	PerPublicInput uint64
	Pairing        uint64
	Pairings       uint64
}

// DefaultSchedule approximates the relative cost of a BN254 PLONK verification.
var DefaultSchedule = GasSchedule{
	Base:           40_000,
	PerProofByte:   16,
	PerPublicInput: 6_000,
	Pairing:        45_000,
	Pairings:       2,
}

// Cost returns the total price of verifying a proof of proofLen bytes against
// nbPublic public inputs, saturating at MaxUint64.
func (s GasSchedule) Cost(proofLen, nbPublic int) uint64 {
	total := s.Base
	total = addSat(total, mulSat(s.PerProofByte, uint64(proofLen)))
	total = addSat(total, mulSat(s.PerPublicInput, uint64(nbPublic)))
	total = addSat(total, mulSat(s.Pairing, s.Pairings))
	return total
}

// Meter tracks gas consumed against a fixed budget.
type Meter struct {
	budget uint64
	used   uint64
}

// NewMeter returns a meter allowing budget units.
func NewMeter(budget uint64) *Meter {
	return &Meter{budget: budget}
}

// Charge consumes amount or fails without consuming anything.
func (m *Meter) Charge(amount uint64) error {
	if amount > m.budget-m.used {
		return dErrors.New(dErrors.CodeOutOfResources,
			fmt.Sprintf("verification needs %d gas, %d remaining", amount, m.budget-m.used))
	}
	m.used += amount
	return nil
}

// Used is the gas consumed so far.
func (m *Meter) Used() uint64 { return m.used }

// Remaining is the gas left.
func (m *Meter) Remaining() uint64 { return m.budget - m.used }

func addSat(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func mulSat(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}
