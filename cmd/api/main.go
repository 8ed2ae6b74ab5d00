package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bazaar-backend/api/routes"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/settlement"
	stripewebhook "github.com/angelmondragon/bazaar-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/instance"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	params, err := buildRouterParams(cfg, logg, dbClient, redisClient, stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.GetID(),
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildRouterParams(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stripeClient *stripe.Client) (routes.RouterParams, error) {
	conn := dbClient.DB()
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	productsRepo := catalog.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)

	guard, err := catalog.NewGuard(productsRepo)
	if err != nil {
		return routes.RouterParams{}, err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return routes.RouterParams{}, err
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(conn), dbClient, emitter)
	if err != nil {
		return routes.RouterParams{}, err
	}

	manager, err := orders.NewManager(orders.ManagerParams{
		Tx:             dbClient,
		Repo:           ordersRepo,
		Products:       productsRepo,
		Outbox:         emitter,
		Notifier:       notificationsService,
		Metrics:        orderMetrics,
		Logger:         logg,
		RefundOnCancel: cfg.Orders.RefundOnCancel,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Tx:       dbClient,
		Orders:   ordersRepo,
		Products: productsRepo,
		Guard:    guard,
		Ledger:   ledgerService,
		Outbox:   emitter,
		Metrics:  orderMetrics,
		Logger:   logg,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	cartService, err := cart.NewService(cartRepo, productsRepo)
	if err != nil {
		return routes.RouterParams{}, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:              dbClient,
		Orders:          ordersRepo,
		Cart:            cartRepo,
		Guard:           guard,
		Outbox:          emitter,
		COD:             manager,
		Metrics:         orderMetrics,
		Logger:          logg,
		Checkout:        cfg.Checkout,
		PaymentDeadline: cfg.Payments.Deadline,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return routes.RouterParams{}, err
	}
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:       payments.NewRepository(conn),
		Orders:     ordersRepo,
		Gateway:    gateway,
		Settlement: settlementService,
		Currency:   cfg.Checkout.Currency,
		Logger:     logg,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Settlement: settlementService,
		Intents:    paymentsService,
		Logger:     logg,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookIdempotencyTTL, stripewebhook.DefaultScope)
	if err != nil {
		return routes.RouterParams{}, err
	}

	return routes.RouterParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Cache:          redisClient,
		Gatherer:       prometheus.DefaultGatherer,
		Checkout:       checkoutService,
		Cart:           cartService,
		Orders:         manager,
		SubOrders:      ordersRepo,
		Payments:       paymentsService,
		Settlement:     settlementService,
		Notifications:  notificationsService,
		Ledger:         ledgerService,
		StripeWebhooks: webhookService,
		StripeVerifier: gateway,
		StripeGuard:    webhookGuard,
	}, nil
}
