package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outcome is one Record call: true for success.
type outcome bool

const (
	ok   outcome = true
	fail outcome = false
)

func replay(b *Breaker, outcomes ...outcome) (last Change) {
	for _, o := range outcomes {
		if o {
			_, last = b.RecordSuccess()
		} else {
			_, last = b.RecordFailure()
		}
	}
	return last
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		successes int
		outcomes  []outcome
		wantState State
		wantLast  Change
	}{
		{name: "fresh breaker is closed", failures: 3, successes: 1, wantState: StateClosed},
		{name: "opens on the threshold failure", failures: 3, successes: 1,
			outcomes: []outcome{fail, fail, fail}, wantState: StateOpen, wantLast: Change{Opened: true}},
		{name: "stays closed below threshold", failures: 3, successes: 1,
			outcomes: []outcome{fail, fail}, wantState: StateClosed},
		{name: "success clears the failure streak", failures: 3, successes: 1,
			outcomes: []outcome{fail, fail, ok, fail, fail}, wantState: StateClosed},
		{name: "further failures while open report no change", failures: 1, successes: 1,
			outcomes: []outcome{fail, fail}, wantState: StateOpen},
		{name: "closes after the success streak", failures: 1, successes: 2,
			outcomes: []outcome{fail, ok, ok}, wantState: StateClosed, wantLast: Change{Closed: true}},
		{name: "failure while open restarts the success streak", failures: 1, successes: 3,
			outcomes: []outcome{fail, ok, ok, fail, ok, ok}, wantState: StateOpen},
		{name: "thresholds below one are raised to one", failures: 0, successes: -2,
			outcomes: []outcome{fail, ok}, wantState: StateClosed, wantLast: Change{Closed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("audit-kafka", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))
			last := replay(b, tt.outcomes...)
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantLast, last)
		})
	}
}

func TestBreakerRecordResults(t *testing.T) {
	b := New("plan-cache", WithFailureThreshold(2), WithSuccessThreshold(2))
	require.Equal(t, "plan-cache", b.Name())

	useFallback, _ := b.RecordFailure()
	assert.False(t, useFallback, "primary still usable below threshold")
	useFallback, _ = b.RecordFailure()
	assert.True(t, useFallback)

	usePrimary, _ := b.RecordSuccess()
	assert.False(t, usePrimary, "one success is not enough to close")
	usePrimary, _ = b.RecordSuccess()
	assert.True(t, usePrimary)

	replay(b, fail, fail)
	require.True(t, b.IsOpen())
	b.Reset()
	assert.False(t, b.IsOpen())
	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.Equal(t, Change{}, change)
}

func TestBreakerAllowProbesOncePerCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("plan-cache", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(func() time.Time { return now }))

	assert.True(t, b.Allow())
	replay(b, fail)
	assert.False(t, b.Allow(), "no probe inside the cooldown")

	now = now.Add(time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "one probe per window")

	replay(b, ok)
	assert.True(t, b.Allow())
}
