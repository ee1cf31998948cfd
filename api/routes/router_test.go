package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type memoryRedis struct {
	data map[string]string
	hits map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, hits: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.hits[scope]++
	return m.hits[scope] <= limit, m.hits[scope], nil
}

type stubSessions struct{}

func (stubSessions) Issue(context.Context) (string, error) { return "fresh-session", nil }

func (stubSessions) Validate(_ context.Context, token string) (bool, error) {
	return token == "known", nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: "https://shop.example"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:     time.Minute,
			LoginEmailLimit: 5,
			LoginIPLimit:    1,
		},
	}
}

func newTestRouter() http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Config:   testConfig(),
		Redis:    newMemoryRedis(),
		Sessions: stubSessions{},
		Gatherer: reg,
		Metrics:  metrics.NewHTTPMetrics(reg),
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter()

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/health/live", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", rec.Code)
	}
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/health/ready", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", rec.Code)
	}
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "storefront_http_requests_total") {
		t.Fatalf("expected http metrics exported, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCartRoutesIssueShopperSession(t *testing.T) {
	h := newTestRouter()

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if got := rec.Header().Get(middleware.SessionHeader); got != "fresh-session" {
		t.Fatalf("expected issued session header, got %q", got)
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 1 || cookies[0].Name != middleware.SessionCookie || cookies[0].Value != "fresh-session" {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(middleware.SessionHeader, "known")
	rec = serve(h, req)
	if got := rec.Header().Get(middleware.SessionHeader); got != "known" {
		t.Fatalf("expected existing session kept, got %q", got)
	}
}

type returnRecorder struct {
	payments.Service
	identity shopper.Identity
	params   payments.ReturnParams
}

func (p *returnRecorder) HandleReturn(_ context.Context, identity shopper.Identity, params payments.ReturnParams) (*payments.ReturnResult, error) {
	p.identity, p.params = identity, params
	return &payments.ReturnResult{}, nil
}

func TestPaymentReturnResolvesSessionCookie(t *testing.T) {
	recorder := &returnRecorder{}
	h := NewRouter(Deps{
		Config:   testConfig(),
		Redis:    newMemoryRedis(),
		Sessions: stubSessions{},
		Gatherer: prometheus.NewRegistry(),
		Payments: recorder,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/return", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "known"})
	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := recorder.identity.Key(); got != "session:known" {
		t.Fatalf("expected cookie session to reach the return handler, got %q", got)
	}
	if !recorder.params.IsZero() {
		t.Fatalf("expected no query params, got %+v", recorder.params)
	}

	recorder.identity = shopper.Identity{}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/payments/return", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "expired"})
	rec = serve(h, req)
	if !recorder.identity.IsZero() || len(rec.Result().Cookies()) != 0 {
		t.Fatalf("return must not issue sessions: identity=%+v cookies=%d", recorder.identity, len(rec.Result().Cookies()))
	}
}

func TestCatalogRoutesDoNotIssueSessions(t *testing.T) {
	rec := serve(newTestRouter(), httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	if rec.Header().Get(middleware.SessionHeader) != "" {
		t.Fatal("catalog reads must not create sessions")
	}
}

func TestWishlistRequiresSignIn(t *testing.T) {
	rec := serve(newTestRouter(), httptest.NewRequest(http.MethodGet, "/api/v1/wishlist", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestInvalidBearerIsRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer forged")
	if rec := serve(newTestRouter(), req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set(middleware.SessionHeader, "known")
	if rec := serve(newTestRouter(), req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	h := newTestRouter()
	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
		req.RemoteAddr = "7.7.7.7:1000"
		last = serve(h, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second attempt got %d", last.Code)
	}
}

func TestCORSPreflightAllowsSessionHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", middleware.SessionHeader)

	rec := serve(newTestRouter(), req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://shop.example" {
		t.Fatalf("expected origin allowed, headers=%v", rec.Header())
	}
}
