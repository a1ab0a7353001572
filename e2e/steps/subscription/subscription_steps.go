package subscription

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"

	proofmodels "agegate/internal/proof/models"
	"agegate/internal/proof/prover"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, as string, body any) error
	LastStatus() int
	ResponseField(field string) (any, error)
	Account(name string) id.AccountID
	Prover() *prover.Prover
}

// RegisterSteps registers plan, registration and settlement steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &subscriptionSteps{tc: tc, proofs: make(map[string]map[string]any)}

	ctx.Step(`^the owner created a plan requiring (\d+) days of age, charging (\d+) every "([^"]*)"$`, steps.createPlan)
	ctx.Step(`^"([^"]*)" has deposited (\d+)$`, steps.deposit)
	ctx.Step(`^"([^"]*)", born (\d+) days ago, proves the plan's age requirement$`, steps.proveToday)
	ctx.Step(`^"([^"]*)", born (\d+) days ago, proves the plan's age requirement as of (\d+) days ago$`, steps.proveDated)
	ctx.Step(`^the prover refuses with "([^"]*)"$`, steps.proverRefuses)
	ctx.Step(`^"([^"]*)" registers with the proof of "([^"]*)"$`, steps.register)
	ctx.Step(`^"([^"]*)" cancels the subscription of "([^"]*)"$`, steps.cancel)
	ctx.Step(`^anyone settles the subscription of "([^"]*)"$`, steps.settle)
	ctx.Step(`^the subscription of "([^"]*)" should be "([^"]*)"$`, steps.subscriptionShouldBe)
}

type subscriptionSteps struct {
	tc         TestContext
	planID     string
	minimumAge uint64
	proofs     map[string]map[string]any
	proveErr   error
}

func (s *subscriptionSteps) createPlan(ctx context.Context, minimumAge uint64, price uint64, interval string) error {
	err := s.tc.Do(http.MethodPost, "/v1/plans", "owner", map[string]any{
		"minimum_age_days": minimumAge,
		"interval":         interval,
		"price":            price,
		"payee":            s.tc.Account("payee").String(),
	})
	if err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusCreated {
		return fmt.Errorf("create plan: status %d", s.tc.LastStatus())
	}
	planID, err := s.tc.ResponseField("id")
	if err != nil {
		return err
	}
	s.planID = fmt.Sprint(planID)
	s.minimumAge = minimumAge
	return nil
}

func (s *subscriptionSteps) deposit(ctx context.Context, who string, amount uint64) error {
	if err := s.tc.Do(http.MethodPost, "/v1/accounts/deposit", who, map[string]any{"amount": amount}); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusOK {
		return fmt.Errorf("deposit: status %d", s.tc.LastStatus())
	}
	return nil
}

func (s *subscriptionSteps) proveToday(ctx context.Context, who string, ageDays uint64) error {
	return s.proveDated(ctx, who, ageDays, 0)
}

// proveDated records either a registration body or the prover's refusal.
func (s *subscriptionSteps) proveDated(ctx context.Context, who string, ageDays, daysAgo uint64) error {
	today, err := proofmodels.DayNumber(time.Now())
	if err != nil {
		return err
	}
	date := today - daysAgo
	subscriber := s.tc.Account(who)
	proof, err := s.tc.Prover().Prove(proofmodels.Witness{
		BirthDate: today - ageDays,
		Public:    proofmodels.PublicInputs{MinimumAge: s.minimumAge, CurrentDate: date, Subscriber: subscriber},
	})
	s.proveErr = err
	if err != nil {
		return nil
	}
	s.proofs[who] = map[string]any{
		"proof": hex.EncodeToString(proof.Bytes),
		"public_inputs": map[string]any{
			"minimum_age":  proof.Public.MinimumAge,
			"current_date": proof.Public.CurrentDate,
			"subscriber":   proof.Public.Subscriber.String(),
		},
		"channel_handle": "tg:@" + who,
	}
	return nil
}

func (s *subscriptionSteps) proverRefuses(ctx context.Context, code string) error {
	if s.proveErr == nil {
		return fmt.Errorf("expected the prover to refuse with %s", code)
	}
	if !dErrors.HasCode(s.proveErr, dErrors.Code(code)) {
		return fmt.Errorf("expected %s, got %v", code, s.proveErr)
	}
	return nil
}

func (s *subscriptionSteps) register(ctx context.Context, who, owner string) error {
	body, ok := s.proofs[owner]
	if !ok {
		return fmt.Errorf("no proof recorded for %s", owner)
	}
	return s.tc.Do(http.MethodPost, "/v1/plans/"+s.planID+"/subscriptions", who, body)
}

func (s *subscriptionSteps) cancel(ctx context.Context, who, subscriber string) error {
	return s.tc.Do(http.MethodDelete, s.pairPath(subscriber), who, nil)
}

func (s *subscriptionSteps) settle(ctx context.Context, subscriber string) error {
	return s.tc.Do(http.MethodPost, s.pairPath(subscriber)+"/settle", "", nil)
}

func (s *subscriptionSteps) subscriptionShouldBe(ctx context.Context, subscriber, status string) error {
	if err := s.tc.Do(http.MethodGet, s.pairPath(subscriber), "", nil); err != nil {
		return err
	}
	got, err := s.tc.ResponseField("status")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != status {
		return fmt.Errorf("expected status %s, got %v", status, got)
	}
	return nil
}

func (s *subscriptionSteps) pairPath(subscriber string) string {
	return "/v1/plans/" + s.planID + "/subscriptions/" + s.tc.Account(subscriber).String()
}
