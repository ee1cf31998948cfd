// Package notifications sends order confirmations once payment is reconciled.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Dispatcher delivers a paid-order confirmation. Callers treat failures as non-fatal.
type Dispatcher interface {
	OrderPaid(ctx context.Context, msg OrderConfirmation) error
}

type ConfirmationLine struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// OrderConfirmation is the payload handed to the mail worker.
type OrderConfirmation struct {
	OrderID          uuid.UUID          `json:"order_id"`
	Email            string             `json:"email"`
	Name             string             `json:"name"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	Subtotal         decimal.Decimal    `json:"subtotal"`
	ShippingFee      decimal.Decimal    `json:"shipping_fee"`
	DiscountAmount   decimal.Decimal    `json:"discount_amount"`
	TotalPrice       decimal.Decimal    `json:"total_price"`
	Lines            []ConfirmationLine `json:"lines"`
	PaidAt           time.Time          `json:"paid_at"`
}

// ConfirmationFromOrder snapshots an order for the confirmation email.
func ConfirmationFromOrder(order models.Order) OrderConfirmation {
	msg := OrderConfirmation{
		OrderID:        order.ID,
		Email:          order.GuestEmail,
		Name:           order.GuestName,
		Subtotal:       order.Subtotal,
		ShippingFee:    order.ShippingFee,
		DiscountAmount: order.DiscountAmount,
		TotalPrice:     order.TotalPrice,
		Lines:          make([]ConfirmationLine, 0, len(order.Items)),
	}
	if order.PaymentReference != nil {
		msg.PaymentReference = *order.PaymentReference
	}
	if order.PaidAt != nil {
		msg.PaidAt = *order.PaidAt
	}
	for _, item := range order.Items {
		msg.Lines = append(msg.Lines, ConfirmationLine{ProductName: item.ProductName, Quantity: item.Quantity, Price: item.Price})
	}
	return msg
}

type publishFunc func(ctx context.Context, data []byte, attrs map[string]string) error

// PubSubDispatcher publishes confirmations to the notification topic.
type PubSubDispatcher struct {
	publish publishFunc
	logg    *logger.Logger
}

func NewPubSubDispatcher(publisher *pubsub.Publisher, logg *logger.Logger) (*PubSubDispatcher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	return &PubSubDispatcher{
		publish: func(ctx context.Context, data []byte, attrs map[string]string) error {
			_, err := publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
			return err
		},
		logg: logg,
	}, nil
}

func (d *PubSubDispatcher) OrderPaid(ctx context.Context, msg OrderConfirmation) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}
	attrs := map[string]string{
		"kind":     string(enums.NotificationTypeOrderConfirmation),
		"order_id": msg.OrderID.String(),
	}
	if err := d.publish(ctx, data, attrs); err != nil {
		return fmt.Errorf("publish confirmation: %w", err)
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithOrderID(ctx, msg.OrderID.String()), "order confirmation published")
	}
	return nil
}

// LogDispatcher only logs. It backs local runs without Pub/Sub.
type LogDispatcher struct {
	logg *logger.Logger
}

func NewLogDispatcher(logg *logger.Logger) *LogDispatcher {
	return &LogDispatcher{logg: logg}
}

func (d *LogDispatcher) OrderPaid(ctx context.Context, msg OrderConfirmation) error {
	if d.logg == nil {
		return nil
	}
	logCtx := d.logg.WithOrderID(ctx, msg.OrderID.String())
	logCtx = d.logg.WithFields(logCtx, map[string]any{
		"total": msg.TotalPrice.StringFixed(2),
		"lines": len(msg.Lines),
	})
	d.logg.Info(logCtx, "order confirmation skipped, pubsub disabled")
	return nil
}
