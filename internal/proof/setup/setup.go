// Package setup turns universal parameters and the compiled circuit into proving and
// verifying keys.
package setup

import (
	"bytes"
	"fmt"

	kzg_bn254 "github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"

	"agegate/internal/proof/circuit"
)

// Keys is the circuit-specific output of Setup.
type Keys struct {
	CCS       constraint.ConstraintSystem
	Proving   plonk.ProvingKey
	Verifying plonk.VerifyingKey
	// VKDigest fingerprints the serialised verifying key so it can be registered and
	// compared without shipping the key itself.
	VKDigest Digest
}

// Setup derives keys for ccs from params. It is deterministic: the same params and
// circuit always give the same verifying key digest.
func Setup(params *Params, ccs constraint.ConstraintSystem) (*Keys, error) {
	sizeCanonical, sizeLagrange := plonk.SRSSize(ccs)
	if sizeCanonical > params.Size() {
		return nil, fmt.Errorf("%w: need %d points, params hold %d", ErrDegreeExceeded, sizeCanonical, params.Size())
	}

	canonical := &kzg_bn254.SRS{Vk: params.srs.Vk}
	canonical.Pk.G1 = params.srs.Pk.G1[:sizeCanonical]

	lagrange := &kzg_bn254.SRS{Vk: params.srs.Vk}
	var err error
	lagrange.Pk.G1, err = kzg_bn254.ToLagrangeG1(params.srs.Pk.G1[:sizeLagrange])
	if err != nil {
		return nil, fmt.Errorf("lagrange srs: %w", err)
	}

	pk, vk, err := plonk.Setup(ccs, canonical, lagrange)
	if err != nil {
		return nil, fmt.Errorf("plonk setup: %w", err)
	}

	digest, err := VerifyingKeyDigest(vk)
	if err != nil {
		return nil, err
	}
	return &Keys{CCS: ccs, Proving: pk, Verifying: vk, VKDigest: digest}, nil
}

// SetupMinAge compiles the min-age circuit and runs Setup on it.
func SetupMinAge(params *Params) (*Keys, error) {
	ccs, err := circuit.Compile()
	if err != nil {
		return nil, err
	}
	return Setup(params, ccs)
}

// VerifyingKeyDigest fingerprints vk's canonical serialisation.
func VerifyingKeyDigest(vk plonk.VerifyingKey) (Digest, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return Digest{}, fmt.Errorf("encode verifying key: %w", err)
	}
	return DigestOf(buf.Bytes()), nil
}

// ReadVerifyingKey decodes a verifying key and checks it against a registered digest.
// A zero expected digest skips the check.
func ReadVerifyingKey(raw []byte, expected Digest) (plonk.VerifyingKey, error) {
	if !expected.IsZero() && DigestOf(raw) != expected {
		return nil, ErrVerifyingKeyTampered
	}
	vk := plonk.NewVerifyingKey(circuit.Curve)
	if _, err := vk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("decode verifying key: %w", err)
	}
	return vk, nil
}
