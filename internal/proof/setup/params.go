package setup

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	kzg_bn254 "github.com/consensys/gnark-crypto/ecc/bn254/kzg"
)

var (
	// ErrParamsTampered is returned when serialised parameters do not hash to the pinned digest.
	ErrParamsTampered = errors.New("universal parameters do not match the pinned digest")
	// ErrVerifyingKeyTampered is returned when a verifying key does not hash to its registered digest.
	ErrVerifyingKeyTampered = errors.New("verifying key does not match the registered digest")
	// ErrDegreeExceeded is returned when a circuit needs more SRS points than the parameters hold.
	ErrDegreeExceeded = errors.New("circuit exceeds the parameters' degree bound")
)

// MaxLogSize caps parameter generation; 2^26 points is several GiB of G1 elements.
const MaxLogSize = 26

// Params are universal KZG parameters over BN254: a structured reference string valid for
// every circuit up to its degree bound. They are generated once, published, and pinned by
// digest.
type Params struct {
	srs    *kzg_bn254.SRS
	raw    []byte
	digest Digest
}

// GenerateParams creates an SRS holding 2^logSize+3 G1 points. A nil tau draws the toxic
// scalar from crypto/rand; passing one is only meant for reproducible test fixtures.
func GenerateParams(logSize int, tau *big.Int) (*Params, error) {
	if logSize < 1 || logSize > MaxLogSize {
		return nil, fmt.Errorf("log size %d outside [1, %d]", logSize, MaxLogSize)
	}
	if tau == nil {
		var err error
		tau, err = rand.Int(rand.Reader, fr.Modulus())
		if err != nil {
			return nil, fmt.Errorf("draw toxic scalar: %w", err)
		}
	}

	srs, err := kzg_bn254.NewSRS(uint64(1)<<logSize+3, tau)
	if err != nil {
		return nil, fmt.Errorf("generate srs: %w", err)
	}
	return fromSRS(srs)
}

// ReadParams loads serialised parameters and refuses them unless they hash to expected.
// A zero expected digest skips the check.
func ReadParams(r io.Reader, expected Digest) (*Params, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	if !expected.IsZero() && DigestOf(raw) != expected {
		return nil, ErrParamsTampered
	}

	srs := new(kzg_bn254.SRS)
	n, err := srs.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if n != int64(len(raw)) {
		return nil, fmt.Errorf("decode params: %d trailing bytes", int64(len(raw))-n)
	}
	return &Params{srs: srs, raw: raw, digest: DigestOf(raw)}, nil
}

func fromSRS(srs *kzg_bn254.SRS) (*Params, error) {
	var buf bytes.Buffer
	if _, err := srs.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	raw := buf.Bytes()
	return &Params{srs: srs, raw: raw, digest: DigestOf(raw)}, nil
}

// WriteTo writes the canonical serialisation, byte for byte what Digest covers.
func (p *Params) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.raw)
	return int64(n), err
}

// Digest is the pin operators publish alongside the parameters.
func (p *Params) Digest() Digest { return p.digest }

// Size is the number of canonical G1 points, the upper bound on circuit size.
func (p *Params) Size() int { return len(p.srs.Pk.G1) }
