package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-marketplace.git/internal/alerts"
	"github.com/ariefcatur/go-marketplace.git/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
	"github.com/ariefcatur/go-marketplace.git/internal/postgres"
	"github.com/ariefcatur/go-marketplace.git/internal/redisx"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: stock.low
	pLow := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicStockLow, 1024)
	pLow.Start(ctx)

	// Service
	svc := &alerts.Service{
		Products:    &market.Repo{DB: db},
		Redis:       rdb,
		Producer:    pLow,
		ServiceName: cfg.ServiceName + "-alerts",
	}

	// Consumer
	group := getenv("ALERTS_GROUP", "alerts-svc")
	workers := mustAtoi(os.Getenv("ALERTS_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, market.TopicOrderPlaced, workers)

	go func() {
		log.Printf("alerts consumer started: group=%s topic=%s workers=%d", group, market.TopicOrderPlaced, workers)
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	pLow.Close()
	pLow.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
