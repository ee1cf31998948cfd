package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Coupon is a reusable discount code capped by MaxUses (0 = unlimited).
type Coupon struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code               string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType       enums.DiscountType `gorm:"column:discount_type;not null"`
	DiscountValue      decimal.Decimal    `gorm:"column:discount_value;type:numeric(10,2);not null"`
	MinimumOrderAmount decimal.Decimal    `gorm:"column:minimum_order_amount;type:numeric(10,2);not null;default:0"`
	ValidFrom          time.Time          `gorm:"column:valid_from;not null"`
	ValidUntil         time.Time          `gorm:"column:valid_until;not null"`
	MaxUses            int                `gorm:"column:max_uses;not null;default:0"`
	TimesUsed          int                `gorm:"column:times_used;not null;default:0"`
	IsActive           bool               `gorm:"column:is_active;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// IsValid reports whether the coupon is active, inside its window and under its cap.
func (c Coupon) IsValid(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return false
	}
	return c.MaxUses == 0 || c.TimesUsed < c.MaxUses
}
