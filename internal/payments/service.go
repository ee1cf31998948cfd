// Package payments drives the hosted payment page flow and reconciles
// orders from the browser return and the gateway webhook.
package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/icredit"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	returnPath  = "/api/v1/payments/return"
	failedPath  = "/api/v1/payments/failed"
	webhookPath = "/api/v1/webhooks/icredit"

	webhookScope      = "icredit_webhook"
	defaultPendingTTL = 24 * time.Hour
	defaultDedupeTTL  = 30 * 24 * time.Hour
	notifyTimeout     = 15 * time.Second
)

var tracer = otel.Tracer("github.com/angelmondragon/storefront-backend/internal/payments")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderStore interface {
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, tx *gorm.DB, ref string) (*models.Order, error)
	SetPaymentDetails(ctx context.Context, id uuid.UUID, ref, token string) (bool, error)
	Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.OrderStatus, at time.Time) (bool, error)
}

type discountRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, code string) (bool, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// keyStore is the slice of the Redis client used for the pending-order
// pointer and webhook duplicate suppression.
type keyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	PendingOrderKey(identity string) string
}

// Service is the payment gateway adapter plus reconciliation.
type Service interface {
	Initiate(ctx context.Context, identity shopper.Identity, orderID uuid.UUID) (*InitiateResult, error)
	HandleReturn(ctx context.Context, identity shopper.Identity, params ReturnParams) (*ReturnResult, error)
	HandleFailedReturn(ctx context.Context, identity shopper.Identity, params ReturnParams) (*ReturnResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
}

type ServiceParams struct {
	Config     config.PaymentsConfig
	PendingTTL time.Duration
	Tx         txRunner
	Orders     orderStore
	Discounts  discountRedeemer
	Outbox     outboxPublisher
	Gateway    icredit.Gateway
	Store      keyStore
	Dispatcher notifications.Dispatcher
	Logger     *logger.Logger
	Metrics    *metrics.CheckoutMetrics
	Now        func() time.Time
	// Async runs post-commit work. Defaults to a goroutine.
	Async func(func())
}

type service struct {
	cfg        config.PaymentsConfig
	pendingTTL time.Duration
	tx         txRunner
	orders     orderStore
	discounts  discountRedeemer
	outbox     outboxPublisher
	gateway    icredit.Gateway
	store      keyStore
	dispatcher notifications.Dispatcher
	logg       *logger.Logger
	metrics    *metrics.CheckoutMetrics
	now        func() time.Time
	async      func(func())
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Discounts == nil:
		return nil, fmt.Errorf("discount redeemer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Store == nil:
		return nil, fmt.Errorf("key store required")
	case params.Dispatcher == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	s := &service{
		cfg:        params.Config,
		pendingTTL: params.PendingTTL,
		tx:         params.Tx,
		orders:     params.Orders,
		discounts:  params.Discounts,
		outbox:     params.Outbox,
		gateway:    params.Gateway,
		store:      params.Store,
		dispatcher: params.Dispatcher,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        params.Now,
		async:      params.Async,
	}
	if s.pendingTTL <= 0 {
		s.pendingTTL = defaultPendingTTL
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.async == nil {
		s.async = func(fn func()) { go fn() }
	}
	return s, nil
}

func (s *service) Initiate(ctx context.Context, identity shopper.Identity, orderID uuid.UUID) (*InitiateResult, error) {
	ctx, span := tracer.Start(ctx, "payments.Initiate")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	if identity.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shopper identity required")
	}
	order, err := s.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !identity.Owns(order.UserID, order.SessionKey) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}

	ref := ""
	if order.PaymentReference != nil {
		ref = strings.TrimSpace(*order.PaymentReference)
	}
	if ref == "" {
		ref = ulid.Make().String()
	}

	req := s.saleRequest(order, ref)
	if sum := lineTotal(req.Items); !sum.Equal(req.Amount) {
		s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"lines_total": sum.StringFixed(2),
			"amount":      req.Amount.StringFixed(2),
		}), "payment page lines do not match order total")
	}

	sale, err := s.gateway.CreateSale(ctx, req)
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "payment gateway unavailable")
		}
		return nil, err
	}

	stored, err := s.orders.SetPaymentDetails(ctx, order.ID, ref, sale.PrivateSaleToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment reference")
	}
	if !stored {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	for _, key := range identity.PointerKeys() {
		if err := s.store.Set(ctx, s.store.PendingOrderKey(key), order.ID.String(), s.pendingTTL); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "pending order pointer not stored")
		}
	}
	s.logg.Info(s.logg.WithField(logCtx, "payment_reference", ref), "payment page issued")

	return &InitiateResult{OrderID: order.ID, PaymentReference: ref, RedirectURL: sale.URL}, nil
}

func (s *service) saleRequest(order *models.Order, ref string) icredit.SaleRequest {
	items := make([]icredit.Item, 0, len(order.Items)+2)
	for _, item := range order.Items {
		items = append(items, icredit.Item{
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
			Description: item.ProductName,
		})
	}
	if order.DiscountAmount.IsPositive() {
		label := "Discount"
		if order.CouponCode != nil {
			label = fmt.Sprintf("Discount (%s)", *order.CouponCode)
		}
		items = append(items, icredit.Item{Quantity: 1, UnitPrice: order.DiscountAmount.Neg(), Description: label})
	}
	if order.ShippingFee.IsPositive() {
		items = append(items, icredit.Item{Quantity: 1, UnitPrice: order.ShippingFee, Description: "Shipping"})
	}

	return icredit.SaleRequest{
		SaleID:  ref,
		OrderID: order.ID.String(),
		Amount:  order.TotalPrice.Round(2),
		Items:   items,
		Customer: icredit.Customer{
			FullName: order.GuestName,
			Email:    order.GuestEmail,
			Phone:    order.GuestPhone,
			Address:  order.GuestAddress,
			City:     order.GuestCity,
		},
		RedirectURL:     s.publicURL(returnPath, order.ID),
		FailRedirectURL: s.publicURL(failedPath, order.ID),
		IPNURL:          s.publicURL(webhookPath, uuid.Nil),
	}
}

func (s *service) publicURL(path string, orderID uuid.UUID) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.PublicBaseURL), "/")
	if orderID == uuid.Nil {
		return base + path
	}
	return base + path + "?" + url.Values{"order_id": {orderID.String()}}.Encode()
}

// lineTotal sums the payment page lines. It matches the order total unless rounding drifted.
func lineTotal(items []icredit.Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}
