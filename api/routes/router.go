package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/carts"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	httpMetrics middleware.HTTPObserver,
	metricsHandler http.Handler,
	catalogService catalog.Service,
	cartService carts.Service,
	paymentsService payments.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.Correlate(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var store redis.IdempotencyStore
	if redisClient != nil {
		store = redisClient
	}
	idem := middleware.Idempotency(store, logg, middleware.IdempotencyTTL)
	idemCritical := middleware.Idempotency(store, logg, middleware.CriticalIdempotencyTTL)
	intentPolicy := middleware.NewRateLimitPolicy("payment-intents", time.Minute, cfg.App.IntentRateLimit)
	var limiter middleware.RateLimiterStore
	if redisClient != nil {
		limiter = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": pingerOrNil(redisClient),
		}))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Get("/api/v1/products/{productId}", controllers.ProductDetail(catalogService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
			r.With(idem).Post("/items", controllers.CartAddItem(cartService, logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(cartService, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(cartService, logg))
			r.With(idemCritical).Post("/checkout", controllers.CartCheckout(cartService, logg))
		})

		r.With(middleware.RateLimit(intentPolicy, limiter, logg), idemCritical).Post("/payments/intents", controllers.PaymentsCreateIntent(paymentsService, logg))
		r.With(idemCritical).Post("/payments/intents/{intentId}/processor-confirm", controllers.PaymentsProcessorConfirm(paymentsService, logg))
		r.With(idemCritical).Post("/payments/intents/{intentId}/confirm", controllers.PaymentsConfirm(paymentsService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(ordersService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
			r.With(idemCritical).Post("/{orderId}/cancel", controllers.OrderCancel(ordersService, logg))
			r.With(idemCritical).Post("/{orderId}/cancellation-requests", controllers.OrderRequestCancellation(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.OrderDetail(ordersService, logg))
			r.With(idem).Post("/cancellation/approve", controllers.AdminApproveCancellation(ordersService, logg))
			r.With(idem).Post("/cancellation/reject", controllers.AdminRejectCancellation(ordersService, logg))
			r.With(idem).Post("/status", controllers.AdminAdvanceStatus(ordersService, logg))
		})
	})

	return r
}

func pingerOrNil(c *redis.Client) controllers.Pinger {
	if c == nil {
		return nil
	}
	return c
}
