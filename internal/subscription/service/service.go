// Package service implements the subscription registry and the settlement engine.
//
// Every mutating entry point runs inside StoreTx.RunInTx: the caller either observes the
// whole transition or none of it. Proof verification happens before the transaction
// opens, so a slow verification never holds the store lock. Lifecycle events are queued
// during the transaction and emitted only after it commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	subscriptionmetrics "agegate/internal/subscription/metrics"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
)

const tracerName = "agegate/internal/subscription/service"

// Config holds the policy knobs of the ledger.
type Config struct {
	// FreshnessToleranceDays bounds |current_date - today| for a registration proof.
	FreshnessToleranceDays uint64
	// GracePeriod is how long after the last successful settlement an unfunded
	// subscription survives before settlement auto-cancels it.
	GracePeriod time.Duration
	// Owner may create plans until ownership is transferred. A zero owner disables plan
	// creation unless an owner was persisted earlier.
	Owner id.AccountID
}

// DefaultConfig is a one-day freshness window and a 72 hour grace period.
func DefaultConfig() Config {
	return Config{FreshnessToleranceDays: 1, GracePeriod: 72 * time.Hour}
}

// Service is the registry and settlement engine.
type Service struct {
	store    Store
	plans    PlanStore
	tx       StoreTx
	verifier ProofVerifier
	cfg      Config

	logger  *slog.Logger
	events  *auditEmitter
	metrics *subscriptionmetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.events.publisher = publisher }
}

func WithMetrics(m *subscriptionmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPlanReader routes plan lookups outside transactions through a cache.
func WithPlanReader(plans PlanStore) Option {
	return func(s *Service) { s.plans = plans }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// New constructs a Service. store serves reads outside transactions; tx opens them.
func New(store Store, tx StoreTx, verifier ProofVerifier, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if verifier == nil {
		return nil, errors.New("proof verifier is required")
	}
	s := &Service{
		store:    store,
		plans:    store,
		tx:       tx,
		verifier: verifier,
		cfg:      cfg,
		logger:   slog.Default(),
		events:   &auditEmitter{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events.logger = s.logger
	return s, nil
}

// startSpan opens a span; end records err on it.
func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}
}

func accountAttr(key string, a id.AccountID) attribute.KeyValue {
	return attribute.String(key, a.String())
}

func planAttr(planID id.PlanID) attribute.KeyValue {
	return attribute.String("plan_id", planID.String())
}
