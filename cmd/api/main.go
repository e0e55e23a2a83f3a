package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/carts"
	"github.com/ariefcatur/go-food-orders/internal/catalog"
	"github.com/ariefcatur/go-food-orders/internal/config"
	"github.com/ariefcatur/go-food-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/logger"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/outbox"
	"github.com/ariefcatur/go-food-orders/internal/payment"
	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := cfg.Validate(); err != nil {
		lg.Fatal("invalid config", zap.Error(err))
	}
	if cfg.JWTSecret == "" {
		lg.Fatal("invalid config", zap.Error(errors.New("JWT_SECRET is required")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		lg.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr, cfg.RedisDB)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		lg.Fatal("redis ping", zap.Error(err))
	}

	gateway := payment.NewStripe(payment.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		APIURL:        cfg.StripeAPIURL,
		SuccessURL:    cfg.PaymentSuccessURL,
		CancelURL:     cfg.PaymentCancelURL,
		Currency:      cfg.PaymentCurrency,
		SessionTTL:    cfg.PaymentWindow,
	})
	viewCache := &redisx.ViewCache{RDB: rdb, TTL: redisx.TTLOrderView}

	svc := &orders.Service{
		Store:          &orders.Repo{DB: db},
		Expiry:         &redisx.ExpiryStore{RDB: rdb},
		Gateway:        gateway,
		Catalog:        catalog.New(cfg.CatalogURL, cfg.GatewayTimeout),
		Cache:          viewCache,
		Log:            lg.Named("orders"),
		ServiceName:    cfg.ServiceName,
		Window:         cfg.PaymentWindow,
		SweepGrace:     cfg.SweepGrace,
		GatewayTimeout: cfg.GatewayTimeout,
		StoreTimeout:   cfg.StoreTimeout,
	}
	cartSvc := &carts.Service{
		Store:       &carts.Repo{DB: db},
		Orders:      svc,
		Log:         lg.Named("carts"),
		ServiceName: cfg.ServiceName,
	}

	// Outbox relay: committed events -> Kafka
	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	defer prod.Close()
	relay := &outbox.Relay{Source: outbox.PoolSource{Pool: db}, Publisher: prod, Log: lg.Named("outbox")}
	go relay.Run(ctx)

	// Stale-Pending sweep: backstop for lapses the listener never saw
	go svc.RunSweeper(ctx, cfg.SweepInterval)

	router := httpx.NewRouter(lg)
	guards := httpx.NewGuards([]byte(cfg.JWTSecret), cfg.InternalToken, lg)
	(&httpx.OrdersHandler{
		Orders: svc,
		Carts:  cartSvc,
		Cache:  viewCache,
		Idem:   &redisx.Idempotency{RDB: rdb},
		Log:    lg,
	}).Register(router, guards)
	(&httpx.CartsHandler{Carts: cartSvc, Log: lg}).Register(router, guards)
	(&httpx.PaymentsHandler{Parser: gateway, Orders: svc, Log: lg}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.Duration("payment_window", cfg.PaymentWindow))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	cancel() // stop relay and sweeper
}
