package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

func TestDayNumber(t *testing.T) {
	t.Run("epoch is day zero", func(t *testing.T) {
		n, err := DayNumber(DayEpoch)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), n)
	})

	t.Run("truncates to the UTC day", func(t *testing.T) {
		morning := time.Date(2024, time.March, 1, 0, 0, 1, 0, time.UTC)
		evening := time.Date(2024, time.March, 1, 23, 59, 59, 0, time.UTC)
		a, err := DayNumber(morning)
		require.NoError(t, err)
		b, err := DayNumber(evening)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.True(t, DateOf(a).Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("rejects dates before the epoch", func(t *testing.T) {
		_, err := DayNumber(DayEpoch.Add(-time.Second))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestWitnessSatisfied(t *testing.T) {
	subscriber := id.AccountID{1}
	public := PublicInputs{MinimumAge: 6570, CurrentDate: 45000, Subscriber: subscriber}

	assert.True(t, Witness{BirthDate: 45000 - 7300, Public: public}.Satisfied())
	assert.True(t, Witness{BirthDate: 45000 - 6570, Public: public}.Satisfied(), "boundary is inclusive")
	assert.False(t, Witness{BirthDate: 45000 - 6569, Public: public}.Satisfied())
	assert.False(t, Witness{BirthDate: 45000 - 5000, Public: public}.Satisfied())
	assert.False(t, Witness{BirthDate: 45001, Public: public}.Satisfied(), "birth after current date")
}

func TestSubscriberLimbs(t *testing.T) {
	var acct id.AccountID
	acct[15] = 0x02
	acct[31] = 0x03
	hi, lo := PublicInputs{Subscriber: acct}.SubscriberLimbs()
	assert.Equal(t, int64(2), hi.Int64())
	assert.Equal(t, int64(3), lo.Int64())
	assert.LessOrEqual(t, hi.BitLen(), 128)
	assert.LessOrEqual(t, lo.BitLen(), 128)
}
