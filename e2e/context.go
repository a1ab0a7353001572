// Package e2e drives a running agegate node over HTTP with godog scenarios.
//
// The suite reads the node's own environment (AGEGATE_URL plus the variables the node
// reads) so it can mint tokens and prove statements against the same pinned parameters.
package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	jwttoken "agegate/internal/jwt_token"
	"agegate/internal/platform/config"
	"agegate/internal/proof/prover"
	"agegate/internal/proof/setup"
	id "agegate/pkg/domain"
)

// TestContext is shared by every step package within one scenario.
type TestContext struct {
	BaseURL string
	Config  config.Config

	client   *http.Client
	tokens   *jwttoken.JWTService
	prover   *prover.Prover
	accounts map[string]id.AccountID

	lastStatus int
	lastBody   []byte
}

// NewTestContext loads the proving key once; scenarios share it through Reset.
func NewTestContext(baseURL string, cfg config.Config) (*TestContext, error) {
	f, err := os.Open(cfg.Proof.ParamsPath)
	if err != nil {
		return nil, fmt.Errorf("open params: %w", err)
	}
	defer f.Close()
	params, err := setup.ReadParams(f, cfg.Proof.ParamsDigest)
	if err != nil {
		return nil, err
	}
	keys, err := setup.SetupMinAge(params)
	if err != nil {
		return nil, err
	}
	return &TestContext{
		BaseURL:  baseURL,
		Config:   cfg,
		client:   &http.Client{Timeout: 30 * time.Second},
		tokens:   jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience),
		prover:   prover.New(keys),
		accounts: make(map[string]id.AccountID),
	}, nil
}

// Reset forgets per-scenario accounts and the last response.
func (tc *TestContext) Reset() {
	tc.accounts = make(map[string]id.AccountID)
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) Prover() *prover.Prover { return tc.prover }

// Account returns a fresh random account per name and scenario, so reruns never collide
// with ledger state left by earlier runs. "owner" is the node's configured owner.
func (tc *TestContext) Account(name string) id.AccountID {
	if name == "owner" {
		return tc.Config.Ledger.Owner
	}
	if a, ok := tc.accounts[name]; ok {
		return a
	}
	var a id.AccountID
	_, _ = rand.Read(a[:])
	tc.accounts[name] = a
	return a
}

// Do sends body as JSON, signed by as unless as is empty.
func (tc *TestContext) Do(method, path, as string, body any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		token, err := tc.tokens.GenerateAccountToken(tc.Account(as), time.Minute)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }

// ResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(tc.lastBody, &m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w (body %q)", err, tc.lastBody)
	}
	v, ok := m[field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from %s", field, tc.lastBody)
	}
	return v, nil
}
