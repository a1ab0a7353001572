// Package prooftest shares a deterministic parameter and key fixture across test packages.
// Generating an SRS and running setup takes a noticeable fraction of a second, so the
// fixture is built once per test binary.
package prooftest

import (
	"math/big"
	"sync"
	"testing"

	"agegate/internal/proof/setup"
)

// LogSize comfortably fits the min-age circuit.
const LogSize = 13

var (
	once   sync.Once
	params *setup.Params
	keys   *setup.Keys
	err    error
)

// Tau is the fixed toxic scalar behind the fixture. Never use it outside tests.
func Tau() *big.Int { return big.NewInt(424242) }

// Fixture returns the shared params and keys, failing the test if either cannot be built.
func Fixture(t testing.TB) (*setup.Params, *setup.Keys) {
	t.Helper()
	once.Do(func() {
		params, err = setup.GenerateParams(LogSize, Tau())
		if err != nil {
			return
		}
		keys, err = setup.SetupMinAge(params)
	})
	if err != nil {
		t.Fatalf("build proof fixture: %v", err)
	}
	return params, keys
}
