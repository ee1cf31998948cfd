package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// PaymentReturn handles the browser redirect after a successful payment page.
func PaymentReturn(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		result, err := svc.HandleReturn(r.Context(), middleware.IdentityFromContext(r.Context()), returnParams(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PaymentFailed reports the order state after the payment page gave up. It never changes status.
func PaymentFailed(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		result, err := svc.HandleFailedReturn(r.Context(), middleware.IdentityFromContext(r.Context()), returnParams(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// returnParams accepts both our own query names and the gateway's.
func returnParams(r *http.Request) payments.ReturnParams {
	q := r.URL.Query()
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(q.Get(k)); v != "" {
				return v
			}
		}
		return ""
	}
	return payments.ReturnParams{
		OrderID:          first("order_id", "Custom1"),
		PaymentReference: first("ref", "reference", "payment_reference"),
		SaleID:           first("SaleId", "sale_id"),
	}
}
