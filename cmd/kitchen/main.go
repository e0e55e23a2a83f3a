package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-food-orders/internal/config"
	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/kitchen"
	"github.com/ariefcatur/go-food-orders/internal/logger"
	"github.com/ariefcatur/go-food-orders/internal/orders"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	svc := &kitchen.Service{
		Tickets: &kitchen.TicketRepo{DB: db},
		Dedup:   &redisx.Dedup{RDB: rdb, Service: cfg.KitchenGroup},
		Log:     lg.Named("kitchen"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.KitchenGroup, orders.TopicKitchenDispatch, cfg.KitchenWorkers, lg)
	lg.Info("kitchen consumer started",
		zap.String("group", cfg.KitchenGroup), zap.String("topic", orders.TopicKitchenDispatch), zap.Int("workers", cfg.KitchenWorkers))
	if err := cons.Start(ctx, svc.HandleOrderPaid); err != nil {
		lg.Fatal("consumer exit", zap.Error(err))
	}
	lg.Info("kitchen consumer stopped")
}
