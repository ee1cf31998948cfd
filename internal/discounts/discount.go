package discounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Resolution is the discount a code yields against a given subtotal.
type Resolution struct {
	Code    string               `json:"code"`
	Amount  decimal.Decimal      `json:"amount"`
	Percent *decimal.Decimal     `json:"percent,omitempty"`
	Kind    enums.DiscountSource `json:"kind"`
}

// Discount is a code that can be checked against a subtotal and later redeemed.
type Discount interface {
	Code() string
	Validate(subtotal decimal.Decimal, now time.Time) (Resolution, error)
	// Redeem consumes one use. It reports false when the code was exhausted
	// between validation and redemption.
	Redeem(ctx context.Context, db *gorm.DB) (bool, error)
}

// NormalizeCode trims and uppercases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GeneralCoupon is a reusable store coupon.
type GeneralCoupon struct {
	coupon models.Coupon
}

func NewGeneralCoupon(c models.Coupon) *GeneralCoupon {
	return &GeneralCoupon{coupon: c}
}

func (g *GeneralCoupon) Code() string { return g.coupon.Code }

func (g *GeneralCoupon) Validate(subtotal decimal.Decimal, now time.Time) (Resolution, error) {
	c := g.coupon
	if !c.IsValid(now) {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeCouponRejected, "coupon is expired or no longer available")
	}
	if c.MinimumOrderAmount.IsPositive() && subtotal.LessThan(c.MinimumOrderAmount) {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeCouponRejected, fmt.Sprintf("order minimum of %s required", c.MinimumOrderAmount.StringFixed(2))).
			WithDetails(map[string]any{"minimum_order_amount": c.MinimumOrderAmount.StringFixed(2)})
	}

	res := Resolution{Code: c.Code, Kind: enums.DiscountSourceCoupon}
	switch c.DiscountType {
	case enums.DiscountTypePercentage:
		pct := c.DiscountValue
		res.Percent = &pct
		res.Amount = percentOf(subtotal, pct)
	case enums.DiscountTypeFixed:
		res.Amount = c.DiscountValue.Round(2)
	default:
		return Resolution{}, pkgerrors.New(pkgerrors.CodeCouponRejected, "coupon type not supported")
	}
	res.Amount = clamp(res.Amount, subtotal)
	return res, nil
}

// Redeem increments times_used only while the cap still allows it.
func (g *GeneralCoupon) Redeem(ctx context.Context, db *gorm.DB) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE coupons SET times_used = times_used + 1 WHERE id = ? AND (max_uses = 0 OR times_used < max_uses)`,
		g.coupon.ID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// NewsletterCoupon is a single-use welcome code.
type NewsletterCoupon struct {
	subscriber models.NewsletterSubscriber
}

func NewNewsletterCoupon(s models.NewsletterSubscriber) *NewsletterCoupon {
	return &NewsletterCoupon{subscriber: s}
}

func (n *NewsletterCoupon) Code() string { return n.subscriber.CouponCode }

func (n *NewsletterCoupon) Validate(subtotal decimal.Decimal, _ time.Time) (Resolution, error) {
	s := n.subscriber
	if !s.IsActive || s.IsUsed {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeCouponRejected, "newsletter code has already been used")
	}
	pct := s.DiscountPercent
	return Resolution{
		Code:    s.CouponCode,
		Amount:  clamp(percentOf(subtotal, pct), subtotal),
		Percent: &pct,
		Kind:    enums.DiscountSourceNewsletter,
	}, nil
}

// Redeem flips is_used once.
func (n *NewsletterCoupon) Redeem(ctx context.Context, db *gorm.DB) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE newsletter_subscribers SET is_used = ? WHERE id = ? AND is_used = ?`,
		true, n.subscriber.ID, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func percentOf(subtotal, pct decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(pct).Div(hundred).Round(2)
}

// clamp keeps a discount within [0, subtotal].
func clamp(amount, subtotal decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}
