package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubOrders struct {
	internalorders.Service
	identity shopper.Identity
	orderID  uuid.UUID
	params   pagination.Params
}

func (s *stubOrders) Get(_ context.Context, identity shopper.Identity, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	s.identity, s.orderID = identity, orderID
	if !identity.IsUser() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusPending}, nil
}

func (s *stubOrders) List(_ context.Context, identity shopper.Identity, params pagination.Params) (*internalorders.OrderPage, error) {
	s.identity, s.params = identity, params
	return &internalorders.OrderPage{}, nil
}

func (s *stubOrders) Cancel(_ context.Context, identity shopper.Identity, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	s.identity, s.orderID = identity, orderID
	return &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

type stubPayments struct {
	payments.Service
	orderID uuid.UUID
}

func (s *stubPayments) Initiate(_ context.Context, _ shopper.Identity, orderID uuid.UUID) (*payments.InitiateResult, error) {
	s.orderID = orderID
	return &payments.InitiateResult{OrderID: orderID, RedirectURL: "https://pay.example/x"}, nil
}

func newOrdersRouter(svc internalorders.Service, pay payments.Service, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = r.WithContext(middleware.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/orders", List(svc, nil))
	r.Get("/orders/{orderId}", Detail(svc, nil))
	r.Post("/orders/{orderId}/cancel", CancelOrder(svc, nil))
	r.Post("/orders/{orderId}/payment", InitiatePayment(pay, nil))
	return r
}

func TestDetailPassesIdentityAndOrder(t *testing.T) {
	svc := &stubOrders{}
	userID, orderID := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	newOrdersRouter(svc, nil, userID.String()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.orderID != orderID || !svc.identity.IsUser() || *svc.identity.UserID != userID {
		t.Fatalf("unexpected call %+v", svc)
	}

	rec = httptest.NewRecorder()
	newOrdersRouter(svc, nil, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger got %d", rec.Code)
	}
}

func TestListParsesPaging(t *testing.T) {
	svc := &stubOrders{}
	rec := httptest.NewRecorder()
	newOrdersRouter(svc, nil, uuid.NewString()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?limit=5&cursor=abc", nil))
	if rec.Code != http.StatusOK || svc.params.Limit != 5 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected paging %+v code=%d", svc.params, rec.Code)
	}

	rec = httptest.NewRecorder()
	newOrdersRouter(svc, nil, uuid.NewString()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?limit=1000", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit got %d", rec.Code)
	}
}

func TestCancelAndPaymentRoutes(t *testing.T) {
	svc := &stubOrders{}
	pay := &stubPayments{}
	orderID := uuid.New()
	h := newOrdersRouter(svc, pay, uuid.NewString())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/cancel", nil))
	if rec.Code != http.StatusOK || svc.orderID != orderID {
		t.Fatalf("cancel failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/payment", nil))
	if rec.Code != http.StatusOK || pay.orderID != orderID {
		t.Fatalf("payment initiate failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/bogus/payment", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id got %d", rec.Code)
	}
}
