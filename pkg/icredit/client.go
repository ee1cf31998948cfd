package icredit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	currencyILS     = 1
	documentInvoice = 4
	statusOK        = 0
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

var (
	errAPIURLRequired = errors.New("icredit api url is required")
	errLoggerRequired = errors.New("icredit logger is required")
)

var tracer = otel.Tracer("github.com/angelmondragon/storefront-backend/pkg/icredit")

// Gateway is the hosted payment page surface used by the payments service.
type Gateway interface {
	CreateSale(ctx context.Context, req SaleRequest) (*SaleResponse, error)
	VerifySale(ctx context.Context, saleID, privateSaleToken string) (*VerifyResult, error)
}

// Client talks JSON over HTTP to the iCredit PaymentPageRequest service.
type Client struct {
	http              *http.Client
	apiURL            string
	verifyURL         string
	groupPrivateToken string
	creditBoxToken    string
	logger            *logger.Logger
	metrics           *metrics.CheckoutMetrics
}

// NewClient validates cfg and builds a client bounded by cfg.Timeout.
func NewClient(cfg config.PaymentsConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		return nil, errAPIURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:              &http.Client{Timeout: timeout},
		apiURL:            apiURL,
		verifyURL:         strings.TrimSpace(cfg.VerifyURL),
		groupPrivateToken: cfg.GroupPrivateToken,
		creditBoxToken:    cfg.CreditBoxToken,
		logger:            logg,
		metrics:           m,
	}, nil
}

// CreateSale requests a payment page URL for the sale.
func (c *Client) CreateSale(ctx context.Context, req SaleRequest) (*SaleResponse, error) {
	ctx, span := tracer.Start(ctx, "icredit.CreateSale", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("icredit.sale_id", req.SaleID),
		attribute.String("order.id", req.OrderID),
	)

	payload, err := req.payload(c.groupPrivateToken, c.creditBoxToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode icredit sale")
	}

	c.log(ctx, "request", "create_sale", map[string]any{
		"sale_id":  req.SaleID,
		"order_id": req.OrderID,
		"amount":   req.Amount.StringFixed(2),
		"email":    req.Customer.Email,
	})

	var resp saleResponse
	if err := c.post(ctx, "create_sale", c.apiURL, payload, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway call failed")
		return nil, err
	}
	if resp.Status != statusOK {
		desc := strings.TrimSpace(resp.StatusDescription)
		if desc == "" {
			desc = "payment gateway rejected the sale"
		}
		c.log(ctx, "error", "create_sale", map[string]any{"status": resp.Status, "error": desc})
		span.SetStatus(codes.Error, desc)
		return nil, pkgerrors.New(pkgerrors.CodeGatewayRejected, desc).WithDetails(map[string]any{"gateway_status": resp.Status})
	}

	c.log(ctx, "response", "create_sale", map[string]any{"sale_id": req.SaleID})
	return &SaleResponse{URL: resp.URL, PrivateSaleToken: resp.PrivateSaleToken}, nil
}

// VerifySale asks the gateway whether the sale completed.
func (c *Client) VerifySale(ctx context.Context, saleID, privateSaleToken string) (*VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "icredit.VerifySale", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("icredit.sale_id", saleID))

	if c.verifyURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "payment verification is not configured")
	}

	body, err := json.Marshal(verifyPayload{
		GroupPrivateToken: c.groupPrivateToken,
		SaleID:            saleID,
		PrivateSaleToken:  privateSaleToken,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode icredit verify")
	}

	c.log(ctx, "request", "verify_sale", map[string]any{"sale_id": saleID, "private_sale_token": privateSaleToken})

	var resp verifyResponse
	if err := c.post(ctx, "verify_sale", c.verifyURL, body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway call failed")
		return nil, err
	}

	result := &VerifyResult{
		Verified:    resp.Status == statusOK,
		Status:      resp.Status,
		Description: resp.StatusDescription,
	}
	c.log(ctx, "response", "verify_sale", map[string]any{"sale_id": saleID, "verified": result.Verified})
	return result, nil
}

func (c *Client) post(ctx context.Context, op, url string, body []byte, out any) error {
	start := time.Now()
	result := "ok"
	defer func() {
		c.metrics.ObserveGateway(op, result, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		result = "error"
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build icredit request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		result = "unavailable"
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "payment gateway unavailable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		result = "unavailable"
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "read payment gateway response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result = "unavailable"
		c.log(ctx, "error", op, map[string]any{"http_status": resp.StatusCode, "error": fmt.Sprintf("http %d", resp.StatusCode)})
		return pkgerrors.New(pkgerrors.CodeGatewayUnavailable, fmt.Sprintf("payment gateway returned http %d", resp.StatusCode))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		result = "unavailable"
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode payment gateway response")
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("icredit %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("icredit %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
