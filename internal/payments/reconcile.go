package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/icredit"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

const redeemSavepoint = "redeem_discount"

var errCancelledPayment = errors.New("payment arrived after the order was cancelled")

func (s *service) HandleReturn(ctx context.Context, identity shopper.Identity, params ReturnParams) (*ReturnResult, error) {
	ctx, span := tracer.Start(ctx, "payments.HandleReturn")
	defer span.End()

	order, err := s.resolveReturn(ctx, identity, params)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())

	switch order.Status {
	case enums.OrderStatusPaid:
		s.clearPending(ctx, identity)
		return &ReturnResult{OrderID: order.ID, Status: order.Status}, nil
	case enums.OrderStatusCancelled:
		s.logg.Error(logCtx, "payment return for cancelled order needs manual reconciliation", errCancelledPayment)
		return &ReturnResult{OrderID: order.ID, Status: order.Status}, nil
	}

	if s.cfg.VerifyReturn {
		if err := s.verify(ctx, order); err != nil {
			return nil, err
		}
	}

	won, err := s.markPaid(ctx, order.ID, SourceReturn)
	if err != nil {
		return nil, err
	}
	s.clearPending(ctx, identity)

	current, err := s.orders.FindByID(ctx, nil, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	return &ReturnResult{OrderID: current.ID, Status: current.Status, Transitioned: won}, nil
}

func (s *service) HandleFailedReturn(ctx context.Context, identity shopper.Identity, params ReturnParams) (*ReturnResult, error) {
	order, err := s.resolveReturn(ctx, identity, params)
	if err != nil {
		return nil, err
	}
	s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "payment page reported failure")
	return &ReturnResult{OrderID: order.ID, Status: order.Status}, nil
}

func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	ctx, span := tracer.Start(ctx, "payments.HandleWebhook")
	defer span.End()

	if secret := strings.TrimSpace(s.cfg.WebhookSecret); secret != "" {
		if !security.VerifyHMACSHA256(secret, body, strings.TrimSpace(signature)) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
		}
	}

	n, err := icredit.ParseNotification(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment notification")
	}
	span.SetAttributes(
		attribute.String("icredit.sale_id", n.SaleID),
		attribute.String("icredit.status", n.Status),
	)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_reference": firstNonEmpty(n.PaymentReference, n.SaleID),
		"gateway_status":    n.Status,
		"event_key":         n.EventKey(),
	})

	dedupeKey := s.store.IdempotencyKey(webhookScope, n.EventKey())
	first, err := s.store.SetNX(ctx, dedupeKey, "1", s.dedupeTTL())
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "webhook dedupe unavailable, relying on order state")
		first = true
	}
	if !first {
		s.logg.Info(logCtx, "duplicate webhook delivery ignored")
		return ack(WebhookDuplicate), nil
	}

	if !n.Approved() {
		s.logg.Info(logCtx, "non-approved payment notification acknowledged")
		return ack(WebhookIgnored), nil
	}

	order, err := s.resolveNotification(ctx, n)
	if err != nil {
		if repo.IsNotFound(err) {
			s.logg.Error(logCtx, "payment notification for unknown order", err)
			return ack(WebhookOrderNotFound), nil
		}
		s.release(ctx, dedupeKey)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	logCtx = s.logg.WithOrderID(logCtx, order.ID.String())

	switch order.Status {
	case enums.OrderStatusPaid:
		s.metrics.IncTransition(SourceWebhook, "already_paid")
		return ack(WebhookAlreadyPaid), nil
	case enums.OrderStatusCancelled:
		s.logg.Error(logCtx, "payment received for cancelled order needs manual reconciliation", errCancelledPayment)
		return ack(WebhookCancelled), nil
	}

	won, err := s.markPaid(ctx, order.ID, SourceWebhook)
	if err != nil {
		s.release(ctx, dedupeKey)
		return nil, err
	}
	if !won {
		return ack(WebhookAlreadyPaid), nil
	}
	return ack(WebhookPaid), nil
}

// markPaid runs the pending to paid compare-and-set. Only the winner redeems
// the discount, queues order_paid and dispatches the confirmation.
func (s *service) markPaid(ctx context.Context, orderID uuid.UUID, source string) (bool, error) {
	ctx, span := tracer.Start(ctx, "payments.markPaid")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()), attribute.String("payments.source", source))

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	var paid *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		at := s.now()
		won, err := s.orders.Transition(ctx, tx, orderID, enums.OrderStatusPaid, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		if !won {
			return nil
		}
		order, err := s.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload paid order")
		}

		redeemed := false
		if order.CouponCode != nil && *order.CouponCode != "" {
			if redeemed, err = s.redeem(ctx, tx, *order.CouponCode); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeem discount")
			}
		}

		ref := ""
		if order.PaymentReference != nil {
			ref = *order.PaymentReference
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorGateway, ID: source},
			OccurredAt:    at,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				PaymentReference: ref,
				TotalPrice:       order.TotalPrice,
				CouponCode:       order.CouponCode,
				CouponRedeemed:   redeemed,
				Source:           source,
				PaidAt:           at,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue order_paid")
		}
		paid = order
		return nil
	})
	if err != nil {
		s.metrics.IncTransition(source, "error")
		return false, err
	}
	if paid == nil {
		s.metrics.IncTransition(source, "lost")
		s.logg.Info(s.logg.WithField(logCtx, "source", source), "order already reconciled")
		return false, nil
	}

	s.metrics.IncTransition(source, "won")
	s.logg.Info(s.logg.WithField(logCtx, "source", source), "order paid")
	s.notify(ctx, *paid)
	return true, nil
}

// redeem consumes the discount inside a savepoint so a failed redemption cannot
// abort the payment. An error means the savepoint itself could not be restored
// and the surrounding transaction is no longer usable.
func (s *service) redeem(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	logCtx := s.logg.WithField(ctx, "coupon_code", code)
	if err := tx.SavePoint(redeemSavepoint).Error; err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "discount redemption skipped")
		return false, nil
	}
	ok, err := s.discounts.Redeem(ctx, tx, code)
	if err != nil {
		if rbErr := tx.RollbackTo(redeemSavepoint).Error; rbErr != nil {
			s.logg.Error(logCtx, "discount savepoint rollback failed", rbErr)
			return false, fmt.Errorf("rollback to %s: %w", redeemSavepoint, rbErr)
		}
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "discount redemption failed")
		return false, nil
	}
	if !ok {
		s.logg.Warn(logCtx, "discount exhausted before redemption")
	}
	return ok, nil
}

func (s *service) notify(ctx context.Context, order models.Order) {
	msg := notifications.ConfirmationFromOrder(order)
	base := context.WithoutCancel(ctx)
	s.async(func() {
		notifyCtx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		if err := s.dispatcher.OrderPaid(notifyCtx, msg); err != nil {
			s.metrics.IncNotificationFailure()
			s.logg.Error(s.logg.WithOrderID(notifyCtx, order.ID.String()), "order confirmation failed", err)
		}
	})
}

func (s *service) verify(ctx context.Context, order *models.Order) error {
	if order.PaymentReference == nil || order.GatewayToken == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment was never initiated for this order")
	}
	result, err := s.gateway.VerifySale(ctx, *order.PaymentReference, *order.GatewayToken)
	if err != nil {
		return err
	}
	if !result.Verified {
		s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"gateway_status": result.Status,
			"description":    result.Description,
		}), "payment return not verified")
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment could not be verified")
	}
	return nil
}

// resolveReturn looks the order up by order_id, then reference, then SaleId,
// then the pointer stored when the shopper was sent to the payment page.
func (s *service) resolveReturn(ctx context.Context, identity shopper.Identity, params ReturnParams) (*models.Order, error) {
	order, err := s.lookup(ctx, params.OrderID, params.PaymentReference, params.SaleID)
	if err == nil {
		return order, nil
	}
	if !repo.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	for _, key := range identity.PointerKeys() {
		raw, getErr := s.store.Get(ctx, s.store.PendingOrderKey(key))
		if getErr != nil {
			continue
		}
		if order, err = s.lookup(ctx, raw, "", ""); err == nil {
			return order, nil
		}
	}
	if params.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *service) resolveNotification(ctx context.Context, n *icredit.Notification) (*models.Order, error) {
	return s.lookup(ctx, n.OrderID, n.PaymentReference, n.SaleID)
}

// lookup tries each identifier in turn and returns gorm.ErrRecordNotFound when none match.
func (s *service) lookup(ctx context.Context, orderID, ref, saleID string) (*models.Order, error) {
	if id, err := uuid.Parse(strings.TrimSpace(orderID)); err == nil {
		order, err := s.orders.FindByID(ctx, nil, id)
		if err == nil || !repo.IsNotFound(err) {
			return order, err
		}
	}
	for _, candidate := range []string{ref, saleID} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		order, err := s.orders.FindByPaymentReference(ctx, nil, candidate)
		if err == nil || !repo.IsNotFound(err) {
			return order, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *service) clearPending(ctx context.Context, identity shopper.Identity) {
	keys := identity.PointerKeys()
	if len(keys) == 0 {
		return
	}
	for i, key := range keys {
		keys[i] = s.store.PendingOrderKey(key)
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "pending order pointer not cleared")
	}
}

// release drops the dedupe marker so the gateway's retry is processed.
func (s *service) release(ctx context.Context, key string) {
	if err := s.store.Del(ctx, key); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook dedupe marker not released")
	}
}

func (s *service) dedupeTTL() time.Duration {
	if s.cfg.WebhookDedupeTTL > 0 {
		return s.cfg.WebhookDedupeTTL
	}
	return defaultDedupeTTL
}

func ack(status string) *WebhookResult {
	return &WebhookResult{Received: true, Status: status}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
