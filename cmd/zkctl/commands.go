package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	jwttoken "agegate/internal/jwt_token"
	"agegate/internal/proof/models"
	"agegate/internal/proof/prover"
	"agegate/internal/proof/setup"
	submodels "agegate/internal/subscription/models"
	id "agegate/pkg/domain"
)

const dateLayout = "2006-01-02"

func runParams(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("params", flag.ContinueOnError)
	logSize := fs.Int("log-size", 13, "the SRS holds 2^log-size+3 points")
	path := fs.String("out", "params.bin", "where to write the parameters")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params, err := setup.GenerateParams(*logSize, nil)
	if err != nil {
		return err
	}
	f, err := os.Create(*path)
	if err != nil {
		return fmt.Errorf("create %s: %w", *path, err)
	}
	defer f.Close()
	if _, err := params.WriteTo(f); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	fmt.Fprintf(out, "params_path=%s\nparams_digest=%s\n", *path, params.Digest())
	return nil
}

func runVK(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("vk", flag.ContinueOnError)
	pf := paramFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	keys, err := pf.load()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "vk_digest=%s\n", keys.VKDigest)
	return nil
}

// registrationBody matches the node's POST /v1/plans/{planID}/subscriptions body.
type registrationBody struct {
	Proof        string `json:"proof"`
	PublicInputs struct {
		MinimumAge  uint64       `json:"minimum_age"`
		CurrentDate uint64       `json:"current_date"`
		Subscriber  id.AccountID `json:"subscriber"`
	} `json:"public_inputs"`
	ChannelHandle string `json:"channel_handle"`
}

func newRegistrationBody(proof *models.AgeProof, channel string) registrationBody {
	var body registrationBody
	body.Proof = hex.EncodeToString(proof.Bytes)
	body.PublicInputs.MinimumAge = proof.Public.MinimumAge
	body.PublicInputs.CurrentDate = proof.Public.CurrentDate
	body.PublicInputs.Subscriber = proof.Public.Subscriber
	body.ChannelHandle = channel
	return body
}

func runProve(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("prove", flag.ContinueOnError)
	pf := paramFlags(fs)
	birth := fs.String("birth", "", "birth date, YYYY-MM-DD (stays local)")
	minAge := fs.Uint64("min-age", 6570, "minimum age in days required by the plan")
	on := fs.String("date", "", "statement date, YYYY-MM-DD (default today, UTC)")
	subscriber := fs.String("subscriber", "", "account the proof is bound to")
	channel := fs.String("channel", "", "where the service should reach the subscriber, e.g. tg:@alice")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := submodels.ValidateChannelHandle(*channel); err != nil {
		return fmt.Errorf("-channel: %w", err)
	}

	w, err := buildWitness(*birth, *on, *minAge, *subscriber, time.Now())
	if err != nil {
		return err
	}
	keys, err := pf.load()
	if err != nil {
		return err
	}
	proof, err := prover.New(keys).Prove(w)
	if err != nil {
		return err
	}

	body := newRegistrationBody(proof, *channel)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

// buildWitness turns calendar input into day numbers. An empty date means now.
func buildWitness(birth, on string, minAge uint64, subscriber string, now time.Time) (models.Witness, error) {
	if birth == "" {
		return models.Witness{}, errors.New("-birth is required")
	}
	account, err := id.ParseAccountID(subscriber)
	if err != nil {
		return models.Witness{}, fmt.Errorf("-subscriber: %w", err)
	}
	born, err := time.Parse(dateLayout, birth)
	if err != nil {
		return models.Witness{}, fmt.Errorf("-birth: %w", err)
	}
	today := now.UTC()
	if on != "" {
		if today, err = time.Parse(dateLayout, on); err != nil {
			return models.Witness{}, fmt.Errorf("-date: %w", err)
		}
	}
	birthDay, err := models.DayNumber(born)
	if err != nil {
		return models.Witness{}, err
	}
	currentDay, err := models.DayNumber(today)
	if err != nil {
		return models.Witness{}, err
	}
	w := models.Witness{
		BirthDate: birthDay,
		Public: models.PublicInputs{
			MinimumAge:  minAge,
			CurrentDate: currentDay,
			Subscriber:  account,
		},
	}
	return w, w.Public.Validate()
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	key := fs.String("key", os.Getenv("JWT_SIGNING_KEY"), "HS256 signing key")
	issuer := fs.String("issuer", "agegate", "token issuer")
	audience := fs.String("audience", "agegate-ledger", "token audience")
	account := fs.String("account", "", "account the token speaks for")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("-key or JWT_SIGNING_KEY is required")
	}
	a, err := id.ParseAccountID(*account)
	if err != nil {
		return fmt.Errorf("-account: %w", err)
	}
	token, err := jwttoken.NewJWTService(*key, *issuer, *audience).GenerateAccountToken(a, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

type paramSource struct {
	path   *string
	digest *string
}

func paramFlags(fs *flag.FlagSet) paramSource {
	return paramSource{
		path:   fs.String("params", os.Getenv("PARAMS_PATH"), "setup parameters file"),
		digest: fs.String("params-digest", os.Getenv("PARAMS_DIGEST"), "pinned BLAKE2b-256 digest of the parameters"),
	}
}

// load refuses parameters that do not hash to the pinned digest.
func (p paramSource) load() (*setup.Keys, error) {
	if *p.path == "" || *p.digest == "" {
		return nil, errors.New("-params and -params-digest are required")
	}
	digest, err := setup.ParseDigest(*p.digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(*p.path)
	if err != nil {
		return nil, fmt.Errorf("open params: %w", err)
	}
	defer f.Close()
	params, err := setup.ReadParams(f, digest)
	if err != nil {
		return nil, err
	}
	return setup.SetupMinAge(params)
}
