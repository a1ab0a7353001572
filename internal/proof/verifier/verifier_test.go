package verifier_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"agegate/internal/proof/models"
	"agegate/internal/proof/prooftest"
	"agegate/internal/proof/prover"
	"agegate/internal/proof/setup"
	"agegate/internal/proof/verifier"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

type VerifierSuite struct {
	suite.Suite
	keys     *setup.Keys
	verifier *verifier.Verifier
	proof    *models.AgeProof
	bob      id.AccountID
	carol    id.AccountID
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupSuite() {
	_, s.keys = prooftest.Fixture(s.T())
	s.verifier = verifier.New(s.keys.Verifying)
	s.bob[31] = 0x0b
	s.carol[31] = 0x0c

	proof, err := prover.New(s.keys).Prove(models.Witness{
		BirthDate: 45000 - 7300,
		Public:    models.PublicInputs{MinimumAge: 6570, CurrentDate: 45000, Subscriber: s.bob},
	})
	s.Require().NoError(err)
	s.proof = proof
}

func (s *VerifierSuite) TestAcceptsHonestProof() {
	s.NoError(s.verifier.Verify(context.Background(), s.proof.Bytes, s.proof.Public))
}

func (s *VerifierSuite) TestRejectsStatementChanges() {
	ctx := context.Background()

	s.Run("other subscriber", func() {
		public := s.proof.Public
		public.Subscriber = s.carol
		err := s.verifier.Verify(ctx, s.proof.Bytes, public)
		s.True(dErrors.HasCode(err, dErrors.CodeProofRejected))
	})

	s.Run("higher minimum age", func() {
		public := s.proof.Public
		public.MinimumAge = 7665
		err := s.verifier.Verify(ctx, s.proof.Bytes, public)
		s.True(dErrors.HasCode(err, dErrors.CodeProofRejected))
	})

	s.Run("different current date", func() {
		public := s.proof.Public
		public.CurrentDate = 45001
		err := s.verifier.Verify(ctx, s.proof.Bytes, public)
		s.True(dErrors.HasCode(err, dErrors.CodeProofRejected))
	})

	s.Run("current date outside the circuit range", func() {
		public := s.proof.Public
		public.CurrentDate = models.MaxDay + 1
		err := s.verifier.Verify(ctx, s.proof.Bytes, public)
		s.True(dErrors.HasCode(err, dErrors.CodeProofRejected))
	})
}

func (s *VerifierSuite) TestMalformedProofs() {
	ctx := context.Background()
	cases := map[string][]byte{
		"empty":          nil,
		"garbage":        {0xde, 0xad, 0xbe, 0xef},
		"truncated":      s.proof.Bytes[:len(s.proof.Bytes)/2],
		"trailing bytes": append(bytes.Clone(s.proof.Bytes), 0x00),
		"oversized":      make([]byte, verifier.DefaultMaxProofSize+1),
	}
	for name, raw := range cases {
		s.Run(name, func() {
			err := s.verifier.Verify(ctx, raw, s.proof.Public)
			s.True(dErrors.HasCode(err, dErrors.CodeProofMalformed), "got %v", err)
		})
	}
}

func (s *VerifierSuite) TestBitFlipNeverVerifies() {
	flipped := bytes.Clone(s.proof.Bytes)
	flipped[len(flipped)-1] ^= 0x01

	err := s.verifier.Verify(context.Background(), flipped, s.proof.Public)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeProofRejected) || dErrors.HasCode(err, dErrors.CodeProofMalformed))
}

func (s *VerifierSuite) TestOutOfResources() {
	cost := verifier.DefaultSchedule.Cost(len(s.proof.Bytes), 4)

	s.Run("budget below cost", func() {
		v := verifier.New(s.keys.Verifying, verifier.WithBudget(cost-1))
		err := v.Verify(context.Background(), s.proof.Bytes, s.proof.Public)
		s.True(dErrors.HasCode(err, dErrors.CodeOutOfResources))
	})

	s.Run("budget equal to cost", func() {
		v := verifier.New(s.keys.Verifying, verifier.WithBudget(cost))
		s.NoError(v.Verify(context.Background(), s.proof.Bytes, s.proof.Public))
	})

	s.Run("shared meter is charged once per call", func() {
		meter := verifier.NewMeter(cost + cost/2)
		s.NoError(s.verifier.VerifyMetered(context.Background(), meter, s.proof.Bytes, s.proof.Public))
		s.Equal(cost, meter.Used())

		err := s.verifier.VerifyMetered(context.Background(), meter, s.proof.Bytes, s.proof.Public)
		s.True(dErrors.HasCode(err, dErrors.CodeOutOfResources))
		s.Equal(cost, meter.Used())
	})
}

func (s *VerifierSuite) TestKeyFromOtherParamsRejects() {
	other, err := setup.GenerateParams(prooftest.LogSize, big.NewInt(99))
	s.Require().NoError(err)
	otherKeys, err := setup.SetupMinAge(other)
	s.Require().NoError(err)
	s.NotEqual(s.keys.VKDigest, otherKeys.VKDigest)

	v := verifier.New(otherKeys.Verifying)
	err = v.Verify(context.Background(), s.proof.Bytes, s.proof.Public)
	s.Require().Error(err)
	s.False(dErrors.HasCode(err, dErrors.CodeOutOfResources))
}

func TestGasSchedule(t *testing.T) {
	s := verifier.GasSchedule{Base: 10, PerProofByte: 2, PerPublicInput: 3, Pairing: 5, Pairings: 2}
	assert.Equal(t, uint64(10+2*100+3*4+5*2), s.Cost(100, 4))

	huge := verifier.GasSchedule{Base: 1, PerProofByte: ^uint64(0)}
	assert.Equal(t, ^uint64(0), huge.Cost(2, 0))
}

func TestMeter(t *testing.T) {
	m := verifier.NewMeter(100)
	require.NoError(t, m.Charge(60))
	assert.Equal(t, uint64(40), m.Remaining())

	err := m.Charge(41)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOutOfResources))
	assert.Equal(t, uint64(60), m.Used())

	require.NoError(t, m.Charge(40))
	assert.Zero(t, m.Remaining())
}
