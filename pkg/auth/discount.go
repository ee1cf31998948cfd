package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const (
	discountAudience   = "discount"
	defaultDiscountTTL = 30 * time.Minute
)

// DiscountClaims carry a normalized discount code between resolve and
// checkout. Checkout re-validates the code; the token grants nothing itself.
type DiscountClaims struct {
	Code string `json:"code"`
	jwt.RegisteredClaims
}

// MintDiscountToken signs code and returns the token with its expiry.
func MintDiscountToken(cfg config.JWTConfig, now time.Time, code string) (string, time.Time, error) {
	if cfg.Secret == "" {
		return "", time.Time{}, errNoSecret
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", time.Time{}, errors.New("discount code is required")
	}
	ttl := cfg.DiscountTokenTTL
	if ttl <= 0 {
		ttl = defaultDiscountTTL
	}
	token, err := sign(cfg, &DiscountClaims{
		Code:             code,
		RegisteredClaims: registered(cfg, now, ttl, discountAudience, "", ""),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, now.Add(ttl), nil
}

// ParseDiscountToken verifies the token and returns the carried code.
func ParseDiscountToken(cfg config.JWTConfig, tokenString string) (string, error) {
	claims := &DiscountClaims{}
	if err := parse(cfg, tokenString, discountAudience, claims); err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Code) == "" {
		return "", errors.New("token missing discount code")
	}
	return claims.Code, nil
}
