package setup_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/proof/prooftest"
	"agegate/internal/proof/setup"
)

func TestParamsRoundTripAndDigest(t *testing.T) {
	params, err := setup.GenerateParams(6, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, 1<<6+3, params.Size())

	var buf bytes.Buffer
	_, err = params.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, params.Digest(), setup.DigestOf(buf.Bytes()))

	t.Run("pinned digest loads", func(t *testing.T) {
		loaded, err := setup.ReadParams(bytes.NewReader(buf.Bytes()), params.Digest())
		require.NoError(t, err)
		assert.Equal(t, params.Size(), loaded.Size())
		assert.Equal(t, params.Digest(), loaded.Digest())
	})

	t.Run("tampered bytes are refused", func(t *testing.T) {
		tampered := bytes.Clone(buf.Bytes())
		tampered[len(tampered)/2] ^= 0x01
		_, err := setup.ReadParams(bytes.NewReader(tampered), params.Digest())
		assert.ErrorIs(t, err, setup.ErrParamsTampered)
	})

	t.Run("different toxic scalar gives a different digest", func(t *testing.T) {
		other, err := setup.GenerateParams(6, big.NewInt(8))
		require.NoError(t, err)
		assert.NotEqual(t, params.Digest(), other.Digest())
	})
}

func TestGenerateParamsRejectsBadSize(t *testing.T) {
	_, err := setup.GenerateParams(0, nil)
	assert.Error(t, err)
	_, err = setup.GenerateParams(setup.MaxLogSize+1, nil)
	assert.Error(t, err)
}

func TestSetupDegreeBound(t *testing.T) {
	small, err := setup.GenerateParams(4, big.NewInt(3))
	require.NoError(t, err)

	_, err = setup.SetupMinAge(small)
	assert.ErrorIs(t, err, setup.ErrDegreeExceeded)
}

func TestSetupIsDeterministic(t *testing.T) {
	params, keys := prooftest.Fixture(t)

	again, err := setup.SetupMinAge(params)
	require.NoError(t, err)
	assert.Equal(t, keys.VKDigest, again.VKDigest)
	assert.False(t, keys.VKDigest.IsZero())
}

func TestReadVerifyingKey(t *testing.T) {
	_, keys := prooftest.Fixture(t)

	var buf bytes.Buffer
	_, err := keys.Verifying.WriteTo(&buf)
	require.NoError(t, err)

	vk, err := setup.ReadVerifyingKey(buf.Bytes(), keys.VKDigest)
	require.NoError(t, err)
	digest, err := setup.VerifyingKeyDigest(vk)
	require.NoError(t, err)
	assert.Equal(t, keys.VKDigest, digest)

	_, err = setup.ReadVerifyingKey(buf.Bytes(), setup.DigestOf([]byte("other key")))
	assert.ErrorIs(t, err, setup.ErrVerifyingKeyTampered)

	tampered := bytes.Clone(buf.Bytes())
	tampered[len(tampered)-1] ^= 0x01
	_, err = setup.ReadVerifyingKey(tampered, keys.VKDigest)
	assert.ErrorIs(t, err, setup.ErrVerifyingKeyTampered)

	var _ plonk.VerifyingKey = vk
}

func TestParseDigest(t *testing.T) {
	d := setup.DigestOf([]byte("params"))

	parsed, err := setup.ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	parsed, err = setup.ParseDigest("0x" + d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = setup.ParseDigest("abcd")
	assert.Error(t, err)
	_, err = setup.ParseDigest("zz")
	assert.Error(t, err)
}
