package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// redisStore is the slice of the Redis client the HTTP layer needs.
type redisStore interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps carries everything the router mounts. Nil services answer 500 on their routes.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    redisStore
	Sessions session.Resolver
	Ready    map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTPMetrics

	Auth      auth.Service
	Catalog   catalog.Service
	Cart      cart.Service
	Discounts discounts.Service
	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Payments  payments.Service
	Wishlist  wishlist.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.Metrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Ready))
	})

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		0,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/icredit", webhookcontrollers.ICreditWebhook(d.Payments, logg))
		r.Post("/newsletter/unsubscribe/{token}", controllers.NewsletterUnsubscribe(d.Discounts, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, d.Redis, logg)).Post("/login", controllers.AuthLogin(d.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, d.Redis, logg)).Post("/register", controllers.AuthRegister(d.Auth, logg))
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/categories", controllers.CatalogCategories(d.Catalog, logg))
			r.Get("/products", controllers.CatalogProducts(d.Catalog, logg))
			r.Get("/products/{slug}", controllers.CatalogProduct(d.Catalog, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			// The gateway redirects the browser here, so only the session cookie arrives.
			r.Route("/payments", func(r chi.Router) {
				r.Use(middleware.ReadShopperSession(d.Sessions, logg))
				r.Get("/return", controllers.PaymentReturn(d.Payments, logg))
				r.Get("/failed", controllers.PaymentFailed(d.Payments, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser(logg))
				r.Get("/wishlist", controllers.WishlistList(d.Wishlist, logg))
				r.Post("/wishlist/{productId}", controllers.WishlistAddItem(d.Wishlist, logg))
				r.Delete("/wishlist/{productId}", controllers.WishlistRemoveItem(d.Wishlist, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.ShopperSession(d.Sessions, logg))
				r.Use(middleware.Idempotency(d.Redis, logg))

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", cartcontrollers.CartFetch(d.Cart, logg))
					r.Post("/items", cartcontrollers.CartAddItem(d.Cart, logg))
					r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(d.Cart, logg))
					r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(d.Cart, logg))
				})
				r.Post("/discounts/resolve", controllers.DiscountResolve(d.Discounts, d.Cart, logg))
				r.Post("/checkout", controllers.Checkout(d.Checkout, logg))

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", ordercontrollers.List(d.Orders, logg))
					r.Get("/{orderId}", ordercontrollers.Detail(d.Orders, logg))
					r.Post("/{orderId}/cancel", ordercontrollers.CancelOrder(d.Orders, logg))
					r.Post("/{orderId}/payment", ordercontrollers.InitiatePayment(d.Payments, logg))
				})
			})
		})
	})

	return r
}
