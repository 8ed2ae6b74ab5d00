package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/settlement"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Cache is the Redis surface the HTTP layer needs for health, idempotent
// replay and rate limiting.
type Cache interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type webhookVerifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       pinger
	Cache    Cache
	Gatherer prometheus.Gatherer

	Checkout      checkout.Service
	Cart          cart.Service
	Orders        *orders.Manager
	SubOrders     orders.Repository
	Payments      payments.Service
	Settlement    settlement.Service
	Notifications notifications.Service
	Ledger        ledger.Service

	StripeWebhooks webhookcontrollers.StripeWebhookService
	StripeVerifier webhookVerifier
	StripeGuard    webhookGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.DB, p.Cache, logg))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	placementLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "order-placement",
		Window: cfg.RateLimit.PlacementWindow,
		Limit:  cfg.RateLimit.PlacementLimit,
	}, p.Cache, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhooks, p.StripeVerifier, p.StripeGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(p.Cache, logg))

			r.Get("/orders/{orderId}", controllers.OrderDetail(p.Orders, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleCustomer))

				r.With(placementLimit).Post("/orders", controllers.PlaceOrder(p.Checkout, logg))
				r.Get("/orders", controllers.ListOrders(p.Orders, logg))
				r.Post("/orders/{orderId}/payment-intent", controllers.CreatePaymentIntent(p.Payments, logg))
				r.Post("/orders/{orderId}/confirm-payment", controllers.ConfirmPayment(p.Payments, logg))

				r.Get("/cart", controllers.CartGet(p.Cart, logg))
				r.Put("/cart/items", controllers.CartUpsertItem(p.Cart, logg))
				r.Delete("/cart/items", controllers.CartRemoveItems(p.Cart, logg))
			})

			r.Route("/seller", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleSeller))
				r.Get("/sub-orders", controllers.SellerSubOrders(p.Orders, logg))
				r.Patch("/sub-orders/{subOrderId}/status", controllers.SellerUpdateSubOrderStatus(p.Orders, logg))
				r.Post("/sub-orders/{subOrderId}/cod-collected", controllers.SellerCODCollected(p.SubOrders, p.Settlement, logg))
				r.Get("/wallet", controllers.SellerWallet(p.Ledger, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(p.Cache, logg))

		r.Get("/orders/{orderId}", controllers.OrderDetail(p.Orders, logg))
		r.Patch("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(p.Orders, logg))
		r.Get("/wallet", controllers.AdminPlatformWallet(p.Ledger, logg))
	})

	return r
}
