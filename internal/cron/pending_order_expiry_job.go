package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	pendingExpiryJobName  = "pending-order-expiry"
	defaultPendingTTL     = 24 * time.Hour
	defaultExpiryBatch    = 100
	pendingExpiryActorTag = "cron:" + pendingExpiryJobName
)

type pendingOrderLister interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type pendingOrderCanceller interface {
	CancelPending(ctx context.Context, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (bool, error)
}

type PendingOrderExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    pendingOrderLister
	Canceller pendingOrderCanceller
	Metrics   *metrics.CronJobMetrics
	TTL       time.Duration
	BatchSize int
}

// NewPendingOrderExpiryJob cancels orders that stayed pending longer than TTL
// and returns their stock. An order paid while the job runs loses nothing:
// the cancel is a compare-and-set on the pending status.
func NewPendingOrderExpiryJob(params PendingOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Canceller == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &pendingOrderExpiryJob{
		logg:      params.Logger,
		orders:    params.Orders,
		canceller: params.Canceller,
		metrics:   params.Metrics,
		ttl:       ttl,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type pendingOrderExpiryJob struct {
	logg      *logger.Logger
	orders    pendingOrderLister
	canceller pendingOrderCanceller
	metrics   *metrics.CronJobMetrics
	ttl       time.Duration
	batch     int
	now       func() time.Time
}

func (j *pendingOrderExpiryJob) Name() string { return pendingExpiryJobName }

func (j *pendingOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.ListPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}

	actor := &outbox.ActorRef{Kind: outbox.ActorSystem, ID: pendingExpiryActorTag}
	var errs error
	expired, skipped := 0, 0
	for _, order := range stale {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		won, err := j.canceller.CancelPending(ctx, order.ID, orders.ReasonExpired, actor)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if won {
			expired++
		} else {
			skipped++
		}
	}
	j.metrics.AddProcessed(j.Name(), expired)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"expired":    expired,
		"skipped":    skipped,
	}), "pending order expiry complete")
	return errs
}
