// Package plancache fronts a plan store with Redis. Plans are immutable, so entries never
// need invalidation; the TTL only bounds memory. Redis failures fall through to the
// backing store and trip a circuit breaker so a dead cache costs one probe per cooldown.
package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"agegate/internal/subscription/models"
	"agegate/internal/subscription/service"
	id "agegate/pkg/domain"
	"agegate/pkg/platform/circuit"
)

const (
	keyPrefix  = "agegate:plan:"
	defaultTTL = 24 * time.Hour
)

// Cache implements service.PlanStore.
type Cache struct {
	client  redis.Cmdable
	next    service.PlanStore
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Cache) { c.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

func New(client redis.Cmdable, next service.PlanStore, opts ...Option) *Cache {
	c := &Cache{
		client:  client,
		next:    next,
		ttl:     defaultTTL,
		breaker: circuit.New("plan-cache", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(1)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(planID id.PlanID) string { return keyPrefix + planID.String() }

// CreatePlan writes through to the backing store, then warms the cache.
func (c *Cache) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if err := c.next.CreatePlan(ctx, plan); err != nil {
		return err
	}
	c.put(ctx, plan)
	return nil
}

func (c *Cache) FindPlan(ctx context.Context, planID id.PlanID) (*models.Plan, error) {
	if c.breaker.Allow() {
		raw, err := c.client.Get(ctx, key(planID)).Bytes()
		switch {
		case err == nil:
			c.recordSuccess()
			var plan models.Plan
			if jsonErr := json.Unmarshal(raw, &plan); jsonErr == nil {
				return &plan, nil
			}
			c.logger.WarnContext(ctx, "discarding undecodable cached plan", "plan_id", planID.String())
		case errors.Is(err, redis.Nil):
			c.recordSuccess()
		default:
			c.recordFailure(ctx, err)
		}
	}

	plan, err := c.next.FindPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, plan)
	return plan, nil
}

func (c *Cache) put(ctx context.Context, plan *models.Plan) {
	if !c.breaker.Allow() {
		return
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(plan.ID), raw, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, err)
		return
	}
	c.recordSuccess()
}

func (c *Cache) recordSuccess() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("plan cache recovered")
	}
}

func (c *Cache) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "plan cache unavailable, reading through to store", "error", err)
	}
}
