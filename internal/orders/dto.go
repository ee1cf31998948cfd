package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type ItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// OrderDTO is the shopper-facing order view.
type OrderDTO struct {
	ID               uuid.UUID         `json:"id"`
	Status           enums.OrderStatus `json:"status"`
	GuestName        string            `json:"name"`
	GuestEmail       string            `json:"email"`
	GuestPhone       string            `json:"phone"`
	GuestAddress     string            `json:"address"`
	GuestCity        string            `json:"city"`
	Notes            *string           `json:"notes,omitempty"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	ShippingFee      decimal.Decimal   `json:"shipping_fee"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	CouponCode       *string           `json:"coupon_code,omitempty"`
	TotalPrice       decimal.Decimal   `json:"total_price"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	Items            []ItemDTO         `json:"items"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

type OrderPage struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ToDTO maps an order row, omitting the gateway token.
func ToDTO(o models.Order) OrderDTO {
	dto := OrderDTO{
		ID:               o.ID,
		Status:           o.Status,
		GuestName:        o.GuestName,
		GuestEmail:       o.GuestEmail,
		GuestPhone:       o.GuestPhone,
		GuestAddress:     o.GuestAddress,
		GuestCity:        o.GuestCity,
		Notes:            o.Notes,
		Subtotal:         o.Subtotal,
		ShippingFee:      o.ShippingFee,
		DiscountAmount:   o.DiscountAmount,
		CouponCode:       o.CouponCode,
		TotalPrice:       o.TotalPrice,
		PaymentReference: o.PaymentReference,
		PaidAt:           o.PaidAt,
		CancelledAt:      o.CancelledAt,
		CreatedAt:        o.CreatedAt,
		Items:            make([]ItemDTO, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, ItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
			LineTotal:   item.LineTotal(),
		})
	}
	return dto
}

func errUnsupportedTransition(status enums.OrderStatus) error {
	return fmt.Errorf("unsupported order transition to %q", status)
}
