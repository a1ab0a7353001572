// Package config loads node configuration from the environment.
//
// A .env file in the working directory is loaded first when present; real environment
// variables always win. Every knob has a development default except the ones that make a
// deployment unsafe to guess, which FromEnv reports as errors.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"agegate/internal/proof/setup"
	id "agegate/pkg/domain"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// AllowedOrigins enables CORS for browser wallets. Empty disables it.
	AllowedOrigins []string
}

// Ledger holds registry and settlement policy.
type Ledger struct {
	FreshnessToleranceDays uint64
	GracePeriod            time.Duration
	Owner                  id.AccountID
}

// Proof locates and pins the setup artefacts.
type Proof struct {
	ParamsPath   string
	ParamsDigest setup.Digest
	// VKDigest, when set, must match the verifying key derived at startup.
	VKDigest     setup.Digest
	GasBudget    uint64
	MaxProofSize int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PlanTTL      time.Duration
}

type Kafka struct {
	Brokers []string
	Topic   string
}

// RateLimit bounds proof submissions per caller.
type RateLimit struct {
	RegisterLimit  int
	RegisterWindow time.Duration
}

type Keeper struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
}

type Log struct {
	Level  slog.Level
	Format string
}

type Config struct {
	Server      Server
	Ledger      Ledger
	Proof       Proof
	DatabaseURL string
	Redis       RedisConfig
	Kafka       Kafka
	Keeper      Keeper
	RateLimit   RateLimit
	Log         Log
}

// FromEnv builds the node configuration so main stays lean.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	e := &envReader{}
	cfg := Config{
		Server: Server{
			Addr:           e.str("AGEGATE_ADDR", ":8080"),
			JWTSigningKey:  e.str("JWT_SIGNING_KEY", devSigningKey),
			JWTIssuer:      e.str("JWT_ISSUER", "agegate"),
			JWTAudience:    e.str("JWT_AUDIENCE", "agegate-ledger"),
			AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS"),
		},
		Ledger: Ledger{
			FreshnessToleranceDays: e.uint("FRESHNESS_TOLERANCE_DAYS", 1),
			GracePeriod:            e.duration("GRACE_PERIOD", 72*time.Hour),
			Owner:                  e.account("OWNER_ACCOUNT"),
		},
		Proof: Proof{
			ParamsPath:   e.str("PARAMS_PATH", ""),
			ParamsDigest: e.digest("PARAMS_DIGEST"),
			VKDigest:     e.digest("VK_DIGEST"),
			GasBudget:    e.uint("VERIFIER_GAS_BUDGET", 500_000),
			MaxProofSize: int(e.uint("VERIFIER_MAX_PROOF_SIZE", 4096)),
		},
		DatabaseURL: e.str("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     int(e.uint("REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(e.uint("REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PlanTTL:      e.duration("REDIS_PLAN_TTL", time.Hour),
		},
		Kafka: Kafka{
			Brokers: e.list("KAFKA_BROKERS"),
			Topic:   e.str("KAFKA_TOPIC", "agegate.lifecycle"),
		},
		Keeper: Keeper{
			Enabled:     e.bool("KEEPER_ENABLED", true),
			Interval:    e.duration("KEEPER_INTERVAL", time.Minute),
			Concurrency: int(e.uint("KEEPER_CONCURRENCY", 8)),
		},
		RateLimit: RateLimit{
			RegisterLimit:  int(e.uint("RATELIMIT_REGISTER_LIMIT", 10)),
			RegisterWindow: e.duration("RATELIMIT_REGISTER_WINDOW", time.Minute),
		},
		Log: Log{
			Level:  e.level("LOG_LEVEL", slog.LevelInfo),
			Format: e.str("LOG_FORMAT", "json"),
		},
	}
	if cfg.Proof.ParamsPath == "" {
		e.fail("PARAMS_PATH", "is required")
	}
	if cfg.Proof.ParamsDigest.IsZero() {
		e.fail("PARAMS_DIGEST", "is required")
	}
	if e.err != nil {
		return Config{}, e.err
	}
	return cfg, nil
}

// UsingDevSigningKey reports whether tokens are signed with the built-in key.
func (c Config) UsingDevSigningKey() bool {
	return c.Server.JWTSigningKey == devSigningKey
}

// envReader collects the first parse error.
type envReader struct {
	err error
}

func (e *envReader) fail(key, msg string) {
	if e.err == nil {
		e.err = fmt.Errorf("config: %s %s", key, msg)
	}
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) uint(key string, def uint64) uint64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, "must be a non-negative integer")
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, "must be a boolean")
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.fail(key, "must be a non-negative duration")
		return def
	}
	return d
}

func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) account(key string) id.AccountID {
	v := e.str(key, "")
	if v == "" {
		return id.AccountID{}
	}
	a, err := id.ParseAccountID(v)
	if err != nil {
		e.fail(key, "must be a 32-byte hex account")
	}
	return a
}

func (e *envReader) digest(key string) setup.Digest {
	v := e.str(key, "")
	if v == "" {
		return setup.Digest{}
	}
	d, err := setup.ParseDigest(v)
	if err != nil {
		e.fail(key, "must be a 32-byte hex digest")
	}
	return d
}

func (e *envReader) level(key string, def slog.Level) slog.Level {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.fail(key, "must be debug, info, warn or error")
		return def
	}
	return l
}
