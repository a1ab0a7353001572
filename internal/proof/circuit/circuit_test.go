package circuit

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/proof/models"
	id "agegate/pkg/domain"
)

func subscriber() id.AccountID {
	var a id.AccountID
	for i := range a {
		a[i] = byte(i + 1)
	}
	return a
}

func witnessFor(birth, minAge, current uint64) models.Witness {
	return models.Witness{
		BirthDate: birth,
		Public: models.PublicInputs{
			MinimumAge:  minAge,
			CurrentDate: current,
			Subscriber:  subscriber(),
		},
	}
}

func solve(assignment *MinAgeCircuit) error {
	return test.IsSolved(&MinAgeCircuit{}, assignment, Curve.ScalarField())
}

func TestMinAgeCircuit(t *testing.T) {
	t.Run("adult is accepted", func(t *testing.T) {
		assert.NoError(t, solve(Assign(witnessFor(45000-7300, 6570, 45000))))
	})

	t.Run("age exactly at threshold is accepted", func(t *testing.T) {
		assert.NoError(t, solve(Assign(witnessFor(45000-6570, 6570, 45000))))
	})

	t.Run("one day short is rejected", func(t *testing.T) {
		assert.Error(t, solve(Assign(witnessFor(45000-6569, 6570, 45000))))
	})

	t.Run("minor is rejected", func(t *testing.T) {
		assert.Error(t, solve(Assign(witnessFor(45000-5000, 6570, 45000))))
	})

	t.Run("birth date after current date is rejected", func(t *testing.T) {
		assert.Error(t, solve(Assign(witnessFor(45001, 0, 45000))))
	})

	t.Run("zero threshold accepts any past birth date", func(t *testing.T) {
		assert.NoError(t, solve(Assign(witnessFor(0, 0, 45000))))
	})

	t.Run("birth date wrapping around the modulus is rejected", func(t *testing.T) {
		// r - 100000 makes current - birth equal 145000 in the field.
		wrapped := new(big.Int).Sub(Curve.ScalarField(), big.NewInt(100000))
		a := Assign(witnessFor(0, 6570, 45000))
		a.BirthDate = wrapped
		assert.Error(t, solve(a))
	})

	t.Run("oversized current date is rejected", func(t *testing.T) {
		a := Assign(witnessFor(0, 6570, 45000))
		a.CurrentDate = new(big.Int).Lsh(big.NewInt(1), models.DateBits)
		assert.Error(t, solve(a))
	})

	t.Run("oversized subscriber limb is rejected", func(t *testing.T) {
		a := Assign(witnessFor(45000-7300, 6570, 45000))
		a.SubscriberLo = new(big.Int).Lsh(big.NewInt(1), SubscriberLimbBits)
		assert.Error(t, solve(a))
	})
}

type rangeCircuit struct {
	V frontend.Variable
}

func (c *rangeCircuit) Define(api frontend.API) error {
	return RangeCheck(api, c.V, 8)
}

type wideRangeCircuit struct {
	V frontend.Variable
}

func (c *wideRangeCircuit) Define(api frontend.API) error {
	return RangeCheck(api, c.V, 300)
}

func TestRangeCheck(t *testing.T) {
	field := Curve.ScalarField()

	assert.NoError(t, test.IsSolved(&rangeCircuit{}, &rangeCircuit{V: 255}, field))
	assert.NoError(t, test.IsSolved(&rangeCircuit{}, &rangeCircuit{V: 0}, field))
	assert.Error(t, test.IsSolved(&rangeCircuit{}, &rangeCircuit{V: 256}, field))

	assert.Error(t, test.IsSolved(&wideRangeCircuit{}, &wideRangeCircuit{V: 1}, field))
}

func TestCompile(t *testing.T) {
	ccs, err := Compile()
	require.NoError(t, err)

	assert.Greater(t, ccs.GetNbConstraints(), 0)

	full, err := FullWitness(witnessFor(45000-7300, 6570, 45000))
	require.NoError(t, err)
	assert.NoError(t, ccs.IsSolved(full))
}

func TestPublicWitnessOrder(t *testing.T) {
	w := witnessFor(1, 6570, 45000)
	public, err := PublicWitness(w.Public)
	require.NoError(t, err)

	vec, ok := public.Vector().(fr.Vector)
	require.True(t, ok)
	require.Len(t, vec, 4)

	hi, lo := w.Public.SubscriberLimbs()
	assert.Equal(t, uint64(6570), vec[0].Uint64())
	assert.Equal(t, uint64(45000), vec[1].Uint64())
	assert.Zero(t, hi.Cmp(vec[2].BigInt(new(big.Int))))
	assert.Zero(t, lo.Cmp(vec[3].BigInt(new(big.Int))))
}
