package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the financial record produced at checkout. Only the status
// columns change after creation.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	SessionKey       *string           `gorm:"column:session_key"`
	GuestName        string            `gorm:"column:guest_name;not null"`
	GuestEmail       string            `gorm:"column:guest_email;not null"`
	GuestPhone       string            `gorm:"column:guest_phone;not null"`
	GuestAddress     string            `gorm:"column:guest_address;not null"`
	GuestCity        string            `gorm:"column:guest_city;not null"`
	Notes            *string           `gorm:"column:notes"`
	Subtotal         decimal.Decimal   `gorm:"column:subtotal;type:numeric(10,2);not null"`
	ShippingFee      decimal.Decimal   `gorm:"column:shipping_fee;type:numeric(10,2);not null"`
	DiscountAmount   decimal.Decimal   `gorm:"column:discount_amount;type:numeric(10,2);not null;default:0"`
	CouponCode       *string           `gorm:"column:coupon_code"`
	TotalPrice       decimal.Decimal   `gorm:"column:total_price;type:numeric(10,2);not null"`
	Status           enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	PaymentReference *string           `gorm:"column:payment_reference;uniqueIndex"`
	GatewayToken     *string           `gorm:"column:gateway_token"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
