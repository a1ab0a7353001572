package circuit

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/math/bits"
)

// maxRangeBits keeps a decomposition unique: 2^nbBits must stay below the BN254 scalar
// modulus (254 bits) or two bit strings could recompose to the same element.
const maxRangeBits = 252

// RangeCheck constrains v to [0, 2^nbBits) by decomposing it into nbBits boolean wires
// that must recompose to v.
func RangeCheck(api frontend.API, v frontend.Variable, nbBits int) error {
	if nbBits <= 0 || nbBits > maxRangeBits {
		return fmt.Errorf("range check width %d outside (0, %d]", nbBits, maxRangeBits)
	}
	bits.ToBinary(api, v, bits.WithNbDigits(nbBits))
	return nil
}

// AssertGreaterOrEqual constrains a >= b for operands already known to be below
// 2^(nbBits-1): the difference a-b must itself fit in nbBits bits, which fails for every
// negative difference because those wrap to elements close to the modulus.
func AssertGreaterOrEqual(api frontend.API, a, b frontend.Variable, nbBits int) error {
	return RangeCheck(api, api.Sub(a, b), nbBits)
}
