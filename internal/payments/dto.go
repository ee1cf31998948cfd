package payments

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// InitiateResult is returned to the browser before the redirect to the payment page.
type InitiateResult struct {
	OrderID          uuid.UUID `json:"order_id"`
	PaymentReference string    `json:"payment_reference"`
	RedirectURL      string    `json:"redirect_url"`
}

// ReturnParams are the query values the gateway appends to the browser redirect.
type ReturnParams struct {
	OrderID          string
	PaymentReference string
	SaleID           string
}

// IsZero reports whether no identifier was supplied.
func (p ReturnParams) IsZero() bool {
	return strings.TrimSpace(p.OrderID) == "" &&
		strings.TrimSpace(p.PaymentReference) == "" &&
		strings.TrimSpace(p.SaleID) == ""
}

// ReturnResult reports the order's state after a browser return.
type ReturnResult struct {
	OrderID      uuid.UUID         `json:"order_id"`
	Status       enums.OrderStatus `json:"status"`
	Transitioned bool              `json:"transitioned"`
}

// Webhook acknowledgement statuses.
const (
	WebhookPaid          = "paid"
	WebhookAlreadyPaid   = "already_paid"
	WebhookDuplicate     = "duplicate"
	WebhookIgnored       = "ignored"
	WebhookOrderNotFound = "order_not_found"
	WebhookCancelled     = "order_cancelled"
)

// WebhookResult is the body acknowledged to the gateway.
type WebhookResult struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// Reconciliation sources, used as metric and event labels.
const (
	SourceReturn  = "return"
	SourceWebhook = "webhook"
)
