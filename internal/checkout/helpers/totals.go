package helpers

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// ShippingFee is free once subtotal reaches a positive threshold, otherwise the flat fee.
func ShippingFee(cfg config.ShippingConfig, subtotal decimal.Decimal) decimal.Decimal {
	threshold := cfg.Threshold()
	if threshold.IsPositive() && subtotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero
	}
	return cfg.Fee()
}

// OrderTotal is subtotal plus shipping minus discount, floored at zero.
func OrderTotal(subtotal, shipping, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}
