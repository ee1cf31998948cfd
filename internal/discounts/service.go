package discounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Applied is a resolution plus the signed token the client hands back at checkout.
type Applied struct {
	Resolution
	Token     string    `json:"discount_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service resolves codes to discounts and redeems them once an order is paid.
type Service interface {
	Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (*Resolution, error)
	Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error)
	RevalidateForOrder(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal) Resolution
	CodeFromToken(token string) (string, error)
	Redeem(ctx context.Context, tx *gorm.DB, code string) (bool, error)
	Unsubscribe(ctx context.Context, token string) error
}

type service struct {
	repo   *Repository
	jwtCfg config.JWTConfig
	logg   *logger.Logger
	now    func() time.Time
}

// ServiceParams bundles the resolver's dependencies.
type ServiceParams struct {
	Repo      *Repository
	JWTConfig config.JWTConfig
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("discount repository required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, jwtCfg: params.JWTConfig, logg: params.Logger, now: now}, nil
}

// lookup finds the code as a general coupon first, then as a newsletter code.
func (s *service) lookup(ctx context.Context, tx *gorm.DB, code string) (Discount, error) {
	coupon, err := s.repo.FindCoupon(ctx, tx, code)
	if err == nil {
		return NewGeneralCoupon(*coupon), nil
	}
	if !repo.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	sub, err := s.repo.FindNewsletterCode(ctx, tx, code)
	if err == nil {
		return NewNewsletterCoupon(*sub), nil
	}
	if !repo.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load newsletter code")
	}
	return nil, pkgerrors.New(pkgerrors.CodeCouponNotFound, "coupon code not found")
}

func (s *service) resolve(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal) (*Resolution, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	discount, err := s.lookup(ctx, tx, normalized)
	if err != nil {
		return nil, err
	}
	res, err := discount.Validate(subtotal, s.now())
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *service) Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (*Resolution, error) {
	return s.resolve(ctx, nil, code, subtotal)
}

func (s *service) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error) {
	res, err := s.Resolve(ctx, code, subtotal)
	if err != nil {
		return nil, err
	}
	token, expires, err := pkgauth.MintDiscountToken(s.jwtCfg, s.now(), res.Code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign discount token")
	}
	return &Applied{Resolution: *res, Token: token, ExpiresAt: expires}, nil
}

// RevalidateForOrder re-runs resolution at order time. Any rejection yields a zero discount.
func (s *service) RevalidateForOrder(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal) Resolution {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Resolution{Amount: decimal.Zero}
	}
	res, err := s.resolve(ctx, tx, normalized, subtotal)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"coupon_code": normalized, "reason": err.Error()}), "discount dropped at checkout")
		}
		return Resolution{Amount: decimal.Zero}
	}
	return *res
}

func (s *service) CodeFromToken(token string) (string, error) {
	code, err := pkgauth.ParseDiscountToken(s.jwtCfg, strings.TrimSpace(token))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount token")
	}
	return NormalizeCode(code), nil
}

// Redeem consumes one use of code inside tx.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return false, nil
	}
	if tx == nil {
		tx = s.repo.DB(ctx)
	}
	discount, err := s.lookup(ctx, tx, normalized)
	if err != nil {
		return false, err
	}
	return discount.Redeem(ctx, tx)
}

func (s *service) Unsubscribe(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsubscribe token is required")
	}
	ok, err := s.repo.Unsubscribe(ctx, token)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unsubscribe")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return nil
}
