package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartStore interface {
	FindByIdentity(ctx context.Context, tx *gorm.DB, identity shopper.Identity) (*models.Cart, error)
	ListItems(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) ([]models.CartItem, error)
	ClearItems(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type productStore interface {
	FindProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
}

type orderStore interface {
	Create(ctx context.Context, tx *gorm.DB, order *models.Order) error
	CreateItems(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error
}

type discountResolver interface {
	RevalidateForOrder(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal) discounts.Resolution
	CodeFromToken(token string) (string, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PlaceOrderInput is the shopper's checkout form. Free text is expected to be sanitized already.
type PlaceOrderInput struct {
	Contact       helpers.Contact
	Notes         string
	CouponCode    string
	DiscountToken string
}

// Service turns a cart into a pending order.
type Service interface {
	PlaceOrder(ctx context.Context, identity shopper.Identity, input PlaceOrderInput) (*orders.OrderDTO, error)
}

type ServiceParams struct {
	Tx        txRunner
	Carts     cartStore
	Products  productStore
	Orders    orderStore
	Discounts discountResolver
	Outbox    outboxPublisher
	Shipping  config.ShippingConfig
	Logger    *logger.Logger
	Metrics   *metrics.CheckoutMetrics
}

type service struct {
	tx        txRunner
	carts     cartStore
	products  productStore
	orders    orderStore
	discounts discountResolver
	outbox    outboxPublisher
	shipping  config.ShippingConfig
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discount resolver required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:        params.Tx,
		carts:     params.Carts,
		products:  params.Products,
		orders:    params.Orders,
		discounts: params.Discounts,
		outbox:    params.Outbox,
		shipping:  params.Shipping,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// pricedLine is a cart line re-read inside the checkout transaction.
type pricedLine struct {
	item      models.CartItem
	product   *models.Product
	unitPrice decimal.Decimal
}

func (s *service) PlaceOrder(ctx context.Context, identity shopper.Identity, input PlaceOrderInput) (*orders.OrderDTO, error) {
	if identity.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shopper identity required")
	}
	if err := helpers.ValidateContact(input.Contact); err != nil {
		s.metrics.IncOrderPlaced("invalid")
		return nil, err
	}
	code := s.discountCode(ctx, input)

	var placed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := s.carts.FindByIdentity(ctx, tx, identity)
		if err != nil {
			if repo.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		items, err := s.carts.ListItems(ctx, tx, record.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}

		lines, demand, err := s.priceLines(ctx, tx, items)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		for _, line := range lines {
			subtotal = subtotal.Add(line.unitPrice.Mul(decimal.NewFromInt(int64(line.item.Quantity))))
		}
		discount := s.discounts.RevalidateForOrder(ctx, tx, code, subtotal)
		shipping := helpers.ShippingFee(s.shipping, subtotal)
		total := helpers.OrderTotal(subtotal, shipping, discount.Amount)

		order := &models.Order{
			UserID:         identity.UserID,
			SessionKey:     identity.SessionPtr(),
			GuestName:      strings.TrimSpace(input.Contact.Name),
			GuestEmail:     strings.TrimSpace(input.Contact.Email),
			GuestPhone:     strings.TrimSpace(input.Contact.Phone),
			GuestAddress:   strings.TrimSpace(input.Contact.Address),
			GuestCity:      strings.TrimSpace(input.Contact.City),
			Notes:          optional(input.Notes),
			Subtotal:       subtotal,
			ShippingFee:    shipping,
			DiscountAmount: discount.Amount,
			CouponCode:     optional(discount.Code),
			TotalPrice:     total,
			Status:         enums.OrderStatusPending,
		}
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		orderItems := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			orderItems = append(orderItems, models.OrderItem{
				OrderID:     order.ID,
				ProductID:   line.product.ID,
				VariantID:   line.item.VariantID,
				ProductName: line.product.Name,
				Quantity:    line.item.Quantity,
				Price:       line.unitPrice,
			})
		}
		if err := s.orders.CreateItems(ctx, tx, orderItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
		}
		order.Items = orderItems

		if err := s.decrementStock(ctx, tx, demand, lines); err != nil {
			return err
		}
		if err := s.carts.ClearItems(ctx, tx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(identity),
			Data: payloads.OrderCreatedEvent{
				OrderID:        order.ID,
				UserID:         order.UserID,
				ItemCount:      len(orderItems),
				Subtotal:       subtotal,
				ShippingFee:    shipping,
				DiscountAmount: discount.Amount,
				CouponCode:     order.CouponCode,
				TotalPrice:     total,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue order_created")
		}

		placed = order
		return nil
	})
	if err != nil {
		s.metrics.IncOrderPlaced(resultLabel(err))
		return nil, err
	}

	s.metrics.IncOrderPlaced("placed")
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, placed.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"total":       placed.TotalPrice.StringFixed(2),
			"coupon_code": code,
		})
		s.logg.Info(logCtx, "order placed")
	}
	dto := orders.ToDTO(*placed)
	return &dto, nil
}

// discountCode prefers an explicit code and falls back to the signed token.
// A bad token is dropped the same way an invalid code is.
func (s *service) discountCode(ctx context.Context, input PlaceOrderInput) string {
	if code := discounts.NormalizeCode(input.CouponCode); code != "" {
		return code
	}
	token := strings.TrimSpace(input.DiscountToken)
	if token == "" {
		return ""
	}
	code, err := s.discounts.CodeFromToken(token)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "discount token ignored")
		}
		return ""
	}
	return code
}

// priceLines re-reads every product and variant in tx and returns the
// lines with their current unit price plus total demand per product.
func (s *service) priceLines(ctx context.Context, tx *gorm.DB, items []models.CartItem) ([]pricedLine, map[uuid.UUID]int, error) {
	lines := make([]pricedLine, 0, len(items))
	demand := map[uuid.UUID]int{}
	products := map[uuid.UUID]*models.Product{}

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			loaded, err := s.products.FindProduct(ctx, tx, item.ProductID)
			if err != nil && !repo.IsNotFound(err) {
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
			}
			product = loaded
			products[item.ProductID] = product
		}
		if product == nil || !product.IsActive {
			return nil, nil, insufficientStock(item.ProductID, productName(product, item), 0)
		}

		var variant *models.ProductVariant
		if item.VariantID != nil {
			v, err := s.products.FindVariant(ctx, tx, item.ProductID, *item.VariantID)
			if err != nil && !repo.IsNotFound(err) {
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
			}
			if v == nil || !v.IsAvailable {
				return nil, nil, pkgerrors.New(pkgerrors.CodeVariantUnavailable, fmt.Sprintf("%s is no longer available in the selected option", product.Name)).
					WithDetails(map[string]any{"product_id": product.ID, "variant_id": *item.VariantID})
			}
			variant = v
		}

		demand[item.ProductID] += item.Quantity
		if product.StockQuantity < demand[item.ProductID] {
			return nil, nil, insufficientStock(product.ID, product.Name, product.StockQuantity)
		}
		lines = append(lines, pricedLine{
			item:      item,
			product:   product,
			unitPrice: variant.EffectivePrice(product.Price),
		})
	}
	return lines, demand, nil
}

// decrementStock applies the guarded update per product in id order.
func (s *service) decrementStock(ctx context.Context, tx *gorm.DB, demand map[uuid.UUID]int, lines []pricedLine) error {
	ids := make([]uuid.UUID, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	names := map[uuid.UUID]string{}
	for _, line := range lines {
		names[line.product.ID] = line.product.Name
	}
	for _, id := range ids {
		ok, err := s.products.DecrementStock(ctx, tx, id, demand[id])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
		if !ok {
			return insufficientStock(id, names[id], -1)
		}
	}
	return nil
}

func insufficientStock(productID uuid.UUID, name string, available int) error {
	details := map[string]any{"product_id": productID}
	if available >= 0 {
		details["available"] = available
	}
	msg := "not enough stock to complete the order"
	if name != "" {
		msg = fmt.Sprintf("not enough stock for %s", name)
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).WithDetails(details)
}

func productName(product *models.Product, item models.CartItem) string {
	if product != nil {
		return product.Name
	}
	if item.Product != nil {
		return item.Product.Name
	}
	return ""
}

func resultLabel(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func actorFor(identity shopper.Identity) *outbox.ActorRef {
	if identity.IsUser() {
		return &outbox.ActorRef{Kind: outbox.ActorUser, ID: identity.UserID.String()}
	}
	return &outbox.ActorRef{Kind: outbox.ActorGuest}
}
