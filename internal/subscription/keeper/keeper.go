// Package keeper drives permissionless settlement on a schedule.
//
// The ledger never settles on its own: something has to call Settle. The keeper is that
// something for a single deployment. Several keepers may race on the same subscriptions;
// Settle is idempotent within an interval, so the losers just observe no-ops.
package keeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"agegate/internal/subscription/metrics"
	"agegate/internal/subscription/models"
	id "agegate/pkg/domain"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/requestcontext"
)

const (
	DefaultInterval    = time.Minute
	DefaultConcurrency = 8
)

// Settler is the slice of the subscription service the keeper drives.
type Settler interface {
	ListActive(ctx context.Context) ([]*models.Subscription, error)
	Settle(ctx context.Context, subscriber id.AccountID, planID id.PlanID) (*models.Receipt, error)
}

// Result summarises one sweep.
type Result struct {
	Checked     int
	Settled     int
	Partial     int
	Cancelled   int
	Noop        int
	Underfunded int
	Failed      int
}

type Keeper struct {
	settler     Settler
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Keeper)

// WithInterval sets the sweep period. Non-positive values keep DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(k *Keeper) { k.interval = d }
}

// WithConcurrency bounds how many settlements run at once.
func WithConcurrency(n int) Option {
	return func(k *Keeper) { k.concurrency = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Keeper) { k.metrics = m }
}

func New(settler Settler, opts ...Option) *Keeper {
	k := &Keeper{
		settler:     settler,
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.concurrency < 1 {
		k.concurrency = 1
	}
	if k.interval <= 0 {
		k.interval = DefaultInterval
	}
	return k
}

// Start sweeps every interval until ctx is cancelled.
func (k *Keeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := k.SweepAt(ctx, time.Now()); err != nil {
				k.logger.ErrorContext(ctx, "settlement sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SweepAt settles every active subscription as of now. A failing subscription is counted
// and logged; it never aborts the sweep.
// Exported for testability; Start passes wall-clock time.
func (k *Keeper) SweepAt(ctx context.Context, now time.Time) (Result, error) {
	ctx = requestcontext.WithTime(ctx, now)
	active, err := k.settler.ListActive(ctx)
	if err != nil {
		k.observe("error")
		return Result{}, err
	}

	var settled, partial, cancelled, noop, underfunded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.concurrency)
	for _, sub := range active {
		g.Go(func() error {
			receipt, err := k.settler.Settle(gctx, sub.Subscriber, sub.PlanID)
			switch {
			case dErrors.HasCode(err, dErrors.CodeInsufficientBalance):
				underfunded.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotSubscribed):
				// Cancelled between listing and settling.
				noop.Add(1)
			case err != nil:
				failed.Add(1)
				k.logger.WarnContext(gctx, "settlement failed",
					"subscription_id", sub.ID.String(), "error", err)
			default:
				switch receipt.Outcome {
				case models.OutcomeSettled:
					settled.Add(1)
				case models.OutcomePartial:
					partial.Add(1)
				case models.OutcomeAutoCancelled:
					cancelled.Add(1)
				default:
					noop.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Checked:     len(active),
		Settled:     int(settled.Load()),
		Partial:     int(partial.Load()),
		Cancelled:   int(cancelled.Load()),
		Noop:        int(noop.Load()),
		Underfunded: int(underfunded.Load()),
		Failed:      int(failed.Load()),
	}
	if res.Failed > 0 {
		k.observe("partial_failure")
	} else {
		k.observe("ok")
	}
	if res.Checked > res.Noop {
		k.logger.InfoContext(ctx, "settlement sweep",
			"checked", res.Checked, "settled", res.Settled, "partial", res.Partial,
			"cancelled", res.Cancelled, "underfunded", res.Underfunded, "failed", res.Failed)
	}
	return res, ctx.Err()
}

func (k *Keeper) observe(result string) {
	if k.metrics != nil {
		k.metrics.IncrementKeeperSweep(result)
	}
}
