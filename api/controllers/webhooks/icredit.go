package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw notification body.
const SignatureHeader = "X-ICredit-Signature"

const maxNotificationBytes = 1 << 20

type ICreditWebhookService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*payments.WebhookResult, error)
}

// ICreditWebhook receives the gateway's server-to-server payment notification.
// Everything the service acknowledges is answered 200 so the gateway stops retrying;
// only malformed or unsigned payloads and storage failures are errors.
func ICreditWebhook(svc ICreditWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.HandleWebhook(ctx, payload, r.Header.Get(SignatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(result); err != nil && logg != nil {
			logg.Error(ctx, "write webhook ack", err)
		}
	}
}
