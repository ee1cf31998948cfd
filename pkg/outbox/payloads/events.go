package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is emitted when checkout persists a pending order.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID       `json:"order_id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	ItemCount      int             `json:"item_count"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CouponCode     *string         `json:"coupon_code,omitempty"`
	TotalPrice     decimal.Decimal `json:"total_price"`
}

// OrderPaidEvent is emitted by whichever reconciliation path won the
// pending to paid transition.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	CouponCode       *string         `json:"coupon_code,omitempty"`
	CouponRedeemed   bool            `json:"coupon_redeemed"`
	Source           string          `json:"source"`
	PaidAt           time.Time       `json:"paid_at"`
}

// OrderCancelledEvent is emitted when a pending order is cancelled and its
// stock returned.
type OrderCancelledEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	Reason       string    `json:"reason"`
	RestockedQty int       `json:"restocked_qty"`
	CancelledAt  time.Time `json:"cancelled_at"`
}
