package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NewsletterSubscriber carries a single-use welcome code.
type NewsletterSubscriber struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email            string          `gorm:"column:email;not null;uniqueIndex"`
	CouponCode       string          `gorm:"column:coupon_code;not null;uniqueIndex"`
	DiscountPercent  decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	IsUsed           bool            `gorm:"column:is_used;not null;default:false"`
	IsActive         bool            `gorm:"column:is_active;not null"`
	UnsubscribeToken string          `gorm:"column:unsubscribe_token;not null;uniqueIndex"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (n *NewsletterSubscriber) BeforeCreate(*gorm.DB) error {
	assignID(&n.ID)
	return nil
}
