package discounts

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository reads coupon and newsletter code tables.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindCoupon matches code case-insensitively, as the upper(code) unique index does.
func (r *Repository) FindCoupon(ctx context.Context, tx *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.Conn(ctx, tx).Where("upper(code) = ?", strings.ToUpper(code)).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *Repository) FindNewsletterCode(ctx context.Context, tx *gorm.DB, code string) (*models.NewsletterSubscriber, error) {
	var sub models.NewsletterSubscriber
	if err := r.Conn(ctx, tx).Where("upper(coupon_code) = ?", strings.ToUpper(code)).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// Unsubscribe deactivates the subscriber holding token. It reports false when no row matched.
func (r *Repository) Unsubscribe(ctx context.Context, token string) (bool, error) {
	res := r.DB(ctx).
		Model(&models.NewsletterSubscriber{}).
		Where("unsubscribe_token = ?", token).
		Update("is_active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
