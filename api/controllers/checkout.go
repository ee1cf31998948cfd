package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxNotesLength = 1000

type checkoutRequest struct {
	Contact       helpers.Contact `json:"contact"`
	Notes         string          `json:"notes,omitempty" validate:"max=4000"`
	CouponCode    string          `json:"coupon_code,omitempty" validate:"max=64"`
	DiscountToken string          `json:"discount_token,omitempty"`
}

// Checkout turns the shopper's cart into a pending order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.PlaceOrderInput{
			Contact: helpers.Contact{
				Name:    validators.SanitizeString(body.Contact.Name, 200),
				Email:   strings.TrimSpace(body.Contact.Email),
				Phone:   validators.SanitizeString(body.Contact.Phone, 32),
				Address: validators.SanitizeString(body.Contact.Address, 300),
				City:    validators.SanitizeString(body.Contact.City, 100),
			},
			Notes:         validators.SanitizeString(body.Notes, maxNotesLength),
			CouponCode:    strings.TrimSpace(body.CouponCode),
			DiscountToken: strings.TrimSpace(body.DiscountToken),
		}

		order, err := svc.PlaceOrder(r.Context(), middleware.IdentityFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
