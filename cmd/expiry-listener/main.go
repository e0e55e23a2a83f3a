package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-food-orders/internal/config"
	"github.com/ariefcatur/go-food-orders/internal/expiry"
	"github.com/ariefcatur/go-food-orders/internal/logger"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis: the listener needs its own connection for the subscription
	rdb := redisx.New(cfg.RedisAddr, cfg.RedisDB)
	defer rdb.Close()

	l := &expiry.Listener{
		Source:  &redisx.ExpirySubscriber{RDB: rdb, DB: cfg.RedisDB, Log: lg.Named("subscriber")},
		Orders:  expiry.NewOrderClient(cfg.OrderServiceURL, cfg.InternalToken, cfg.GatewayTimeout),
		Log:     lg.Named("expiry"),
		Workers: 4,
	}
	lg.Info("expiry listener started",
		zap.String("channel", redisx.ExpiredChannel(cfg.RedisDB)), zap.String("order_service", cfg.OrderServiceURL))
	if err := l.Run(ctx); err != nil && ctx.Err() == nil {
		lg.Fatal("listener exit", zap.Error(err))
	}
	lg.Info("expiry listener stopped")
}
