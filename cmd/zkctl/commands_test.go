package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/proof/models"
	dErrors "agegate/pkg/domain-errors"
)

const alice = "0x000000000000000000000000000000000000000000000000000000000000000a"

func TestBuildWitness(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)

	t.Run("defaults the statement date to today", func(t *testing.T) {
		w, err := buildWitness("2000-01-01", "", 6570, alice, now)
		require.NoError(t, err)

		today, err := models.DayNumber(now)
		require.NoError(t, err)
		born, err := models.DayNumber(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, today, w.Public.CurrentDate)
		assert.Equal(t, born, w.BirthDate)
		assert.Equal(t, uint64(6570), w.Public.MinimumAge)
		assert.True(t, w.Satisfied())
	})

	t.Run("explicit date wins", func(t *testing.T) {
		w, err := buildWitness("2010-06-15", "2020-06-15", 6570, alice, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC), models.DateOf(w.Public.CurrentDate))
		assert.False(t, w.Satisfied())
	})

	t.Run("input errors", func(t *testing.T) {
		_, err := buildWitness("", "", 6570, alice, now)
		assert.ErrorContains(t, err, "-birth")

		_, err = buildWitness("01/01/2000", "", 6570, alice, now)
		assert.ErrorContains(t, err, "-birth")

		_, err = buildWitness("2000-01-01", "tomorrow", 6570, alice, now)
		assert.ErrorContains(t, err, "-date")

		_, err = buildWitness("2000-01-01", "", 6570, "0x01", now)
		assert.ErrorContains(t, err, "-subscriber")

		_, err = buildWitness("1850-01-01", "", 6570, alice, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestRegistrationBody(t *testing.T) {
	w, err := buildWitness("2000-01-01", "2024-03-01", 6570, alice, time.Now())
	require.NoError(t, err)
	body := newRegistrationBody(&models.AgeProof{Bytes: []byte{0xca, 0xfe}, Public: w.Public}, "tg:@alice")

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "cafe", decoded["proof"])
	assert.Equal(t, "tg:@alice", decoded["channel_handle"])
	assert.Equal(t, alice, decoded["public_inputs"].(map[string]any)["subscriber"])
}

func TestRunProveRequiresChannel(t *testing.T) {
	var out bytes.Buffer
	err := runProve([]string{"-birth", "2000-01-01", "-subscriber", alice}, &out)
	assert.ErrorContains(t, err, "-channel")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Empty(t, out.String())
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(nil, &out))
	assert.Contains(t, out.String(), "usage: zkctl")

	assert.ErrorContains(t, run([]string{"frobnicate"}, &out), "unknown command")
	assert.ErrorContains(t, run([]string{"vk"}, &out), "-params and -params-digest are required")
}

func TestRunToken(t *testing.T) {
	var out bytes.Buffer
	err := runToken([]string{"-key", "k", "-account", alice, "-ttl", "5m"}, &out)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "."), 3)

	assert.ErrorContains(t, runToken([]string{"-key", "k", "-account", "nope"}, &out), "-account")
}
