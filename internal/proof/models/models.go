// Package models holds the data exchanged between the prover, the verifier and the
// subscription registry: public inputs, witnesses and proof envelopes.
package models

import (
	"math/big"
	"time"

	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

// DayEpoch is day zero for every date fed to the circuit. Dates are whole UTC days
// counted from it, which keeps 20th-century birth dates non-negative.
var DayEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// DateBits bounds every date and age the circuit accepts. 2^32 days is far beyond any
// calendar date, and keeping all operands this small rules out wrap-around mod r.
const DateBits = 32

// MaxDay is the largest representable day number.
const MaxDay = uint64(1)<<DateBits - 1

const secondsPerDay = 24 * 60 * 60

// DayNumber converts an instant to its day number, truncating to the UTC day.
func DayNumber(t time.Time) (uint64, error) {
	t = t.UTC()
	if t.Before(DayEpoch) {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "date precedes the day epoch")
	}
	n := uint64((t.Unix() - DayEpoch.Unix()) / secondsPerDay)
	if n > MaxDay {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "date exceeds the representable range")
	}
	return n, nil
}

// DateOf is the inverse of DayNumber.
func DateOf(dayNumber uint64) time.Time {
	return DayEpoch.AddDate(0, 0, int(dayNumber))
}

// PublicInputs is the statement a proof speaks about: the subscriber is at least
// MinimumAge days old on CurrentDate. Subscriber binds the proof to one account.
type PublicInputs struct {
	MinimumAge  uint64       `json:"minimum_age"`
	CurrentDate uint64       `json:"current_date"`
	Subscriber  id.AccountID `json:"subscriber"`
}

// Validate checks the inputs fit the circuit's operand width.
func (p PublicInputs) Validate() error {
	if p.MinimumAge > MaxDay {
		return dErrors.New(dErrors.CodeInvalidInput, "minimum age exceeds the circuit range")
	}
	if p.CurrentDate > MaxDay {
		return dErrors.New(dErrors.CodeInvalidInput, "current date exceeds the circuit range")
	}
	if p.Subscriber.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "subscriber is required")
	}
	return nil
}

// SubscriberLimbs splits the 32-byte account into two 128-bit big-endian limbs, each
// fitting a BN254 scalar.
func (p PublicInputs) SubscriberLimbs() (hi, lo *big.Int) {
	b := p.Subscriber.Bytes()
	hi = new(big.Int).SetBytes(b[:16])
	lo = new(big.Int).SetBytes(b[16:])
	return hi, lo
}

// Witness is everything the prover needs. BirthDate never leaves the prover.
type Witness struct {
	BirthDate uint64
	Public    PublicInputs
}

// Satisfied evaluates the statement on plain integers.
func (w Witness) Satisfied() bool {
	if w.BirthDate > w.Public.CurrentDate {
		return false
	}
	return w.Public.CurrentDate-w.BirthDate >= w.Public.MinimumAge
}

// AgeProof is the ephemeral envelope handed to the registry. Bytes are opaque.
type AgeProof struct {
	Bytes  []byte       `json:"proof"`
	Public PublicInputs `json:"public_inputs"`
}
