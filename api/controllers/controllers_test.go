package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func withSession(r *http.Request, token string) *http.Request {
	return r.WithContext(middleware.WithSession(r.Context(), token))
}

type stubCheckout struct {
	identity shopper.Identity
	input    checkoutsvc.PlaceOrderInput
	err      error
}

func (s *stubCheckout) PlaceOrder(_ context.Context, identity shopper.Identity, input checkoutsvc.PlaceOrderInput) (*orders.OrderDTO, error) {
	s.identity = identity
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderDTO{ID: uuid.New(), Status: enums.OrderStatusPending}, nil
}

const validCheckoutBody = `{
	"contact": {"name": "<b>Dana</b> Levi", "email": " dana@example.com ", "phone": "050-1234567", "address": "1 Herzl St<script>x</script>", "city": "Haifa"},
	"notes": "<i>ring twice</i>",
	"coupon_code": " save10 "
}`

func TestCheckoutSanitizesAndPlacesOrder(t *testing.T) {
	svc := &stubCheckout{}
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(validCheckoutBody)), "sess-1")
	rec := httptest.NewRecorder()

	Checkout(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "sess-1", svc.identity.SessionKey)
	assert.Equal(t, "Dana Levi", svc.input.Contact.Name)
	assert.Equal(t, "dana@example.com", svc.input.Contact.Email)
	assert.Equal(t, "1 Herzl St", svc.input.Contact.Address)
	assert.Equal(t, "ring twice", svc.input.Notes)
	assert.Equal(t, "save10", svc.input.CouponCode)
}

func TestCheckoutRejectsInvalidContact(t *testing.T) {
	svc := &stubCheckout{}
	body := `{"contact": {"name": "Dana", "email": "not-an-email", "phone": "1", "address": "a", "city": "b"}}`
	rec := httptest.NewRecorder()

	Checkout(svc, nil).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), "s"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, rec).Error.Code)
	assert.True(t, svc.identity.IsZero(), "service must not be called")
}

func TestCheckoutSurfacesDomainErrors(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "Only 1 left of Linen Shirt")}
	rec := httptest.NewRecorder()

	Checkout(svc, nil).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(validCheckoutBody)), "s"))

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), body.Error.Code)
	assert.Equal(t, "Only 1 left of Linen Shirt", body.Error.Message)
}

type stubCart struct {
	cart.Service
	view *cart.View
}

func (s stubCart) View(context.Context, shopper.Identity) (*cart.View, error) {
	return s.view, nil
}

type stubDiscounts struct {
	discounts.Service
	subtotal decimal.Decimal
	code     string
	unsubErr error
	token    string
}

func (s *stubDiscounts) Apply(_ context.Context, code string, subtotal decimal.Decimal) (*discounts.Applied, error) {
	s.code = code
	s.subtotal = subtotal
	if code == "NOPE" {
		return nil, pkgerrors.New(pkgerrors.CodeCouponNotFound, "coupon not found")
	}
	return &discounts.Applied{Resolution: discounts.Resolution{Code: code, Amount: decimal.NewFromInt(10)}, Token: "signed"}, nil
}

func (s *stubDiscounts) Unsubscribe(_ context.Context, token string) error {
	s.token = token
	return s.unsubErr
}

func TestDiscountResolveUsesCartSubtotal(t *testing.T) {
	disc := &stubDiscounts{}
	carts := stubCart{view: &cart.View{Items: []cart.LineDTO{{Quantity: 1}}, Subtotal: decimal.NewFromInt(120)}}
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/discounts/resolve", strings.NewReader(`{"code":"save10"}`)), "s")
	rec := httptest.NewRecorder()

	DiscountResolve(disc, carts, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, disc.subtotal.Equal(decimal.NewFromInt(120)))
	assert.Contains(t, rec.Body.String(), `"discount_token":"signed"`)
}

func TestDiscountResolveRejectsEmptyCartAndUnknownCode(t *testing.T) {
	disc := &stubDiscounts{}
	empty := stubCart{view: &cart.View{}}
	rec := httptest.NewRecorder()
	DiscountResolve(disc, empty, nil).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"X"}`)), "s"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeEmptyCart), decodeError(t, rec).Error.Code)

	full := stubCart{view: &cart.View{Items: []cart.LineDTO{{Quantity: 1}}, Subtotal: decimal.NewFromInt(5)}}
	rec = httptest.NewRecorder()
	DiscountResolve(disc, full, nil).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"NOPE"}`)), "s"))
	assert.Equal(t, string(pkgerrors.CodeCouponNotFound), decodeError(t, rec).Error.Code)
}

func TestNewsletterUnsubscribeReadsToken(t *testing.T) {
	disc := &stubDiscounts{}
	r := chi.NewRouter()
	r.Post("/newsletter/unsubscribe/{token}", NewsletterUnsubscribe(disc, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/newsletter/unsubscribe/tok-123", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-123", disc.token)

	disc.unsubErr = pkgerrors.New(pkgerrors.CodeNotFound, "subscriber not found")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/newsletter/unsubscribe/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubPayments struct {
	payments.Service
	params payments.ReturnParams
	failed bool
}

func (s *stubPayments) HandleReturn(_ context.Context, _ shopper.Identity, params payments.ReturnParams) (*payments.ReturnResult, error) {
	s.params = params
	return &payments.ReturnResult{Status: enums.OrderStatusPaid, Transitioned: true}, nil
}

func (s *stubPayments) HandleFailedReturn(_ context.Context, _ shopper.Identity, params payments.ReturnParams) (*payments.ReturnResult, error) {
	s.params = params
	s.failed = true
	return &payments.ReturnResult{Status: enums.OrderStatusPending}, nil
}

func TestPaymentReturnMapsGatewayQuery(t *testing.T) {
	svc := &stubPayments{}
	orderID := uuid.NewString()
	rec := httptest.NewRecorder()
	PaymentReturn(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?order_id="+orderID+"&SaleId=S-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orderID, svc.params.OrderID)
	assert.Equal(t, "S-1", svc.params.SaleID)
	assert.Contains(t, rec.Body.String(), `"status":"paid"`)

	rec = httptest.NewRecorder()
	PaymentFailed(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/failed?reference=REF-9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.failed)
	assert.Equal(t, "REF-9", svc.params.PaymentReference)

	for _, query := range []string{"ref=REF-7", "payment_reference=REF-7", "ref=REF-7&reference=OTHER"} {
		svc.params = payments.ReturnParams{}
		rec = httptest.NewRecorder()
		PaymentReturn(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+query, nil))
		require.Equal(t, http.StatusOK, rec.Code, query)
		assert.Equal(t, "REF-7", svc.params.PaymentReference, query)
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": failingPinger{}, "redis": failingPinger{}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get(envHeader))

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": failingPinger{}, "redis": failingPinger{err: errors.New("down")}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
