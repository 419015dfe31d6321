package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-marketplace.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace.git/internal/checkout"
	"github.com/ariefcatur/go-marketplace.git/internal/config"
	"github.com/ariefcatur/go-marketplace.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace.git/internal/market"
	"github.com/ariefcatur/go-marketplace.git/internal/postgres"
	"github.com/ariefcatur/go-marketplace.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicOrderPlaced, 1024)
	pPlaced.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicOrderCancelled, 1024)
	pCancelled.Start(ctx)
	pDeleted := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicProductDeleted, 1024)
	pDeleted.Start(ctx)

	// Repos & services
	repo := &market.Repo{DB: db}
	catalogSvc := &catalog.Service{
		Store:         repo,
		Images:        &catalog.FSImageStore{Dir: cfg.ImageDir, BaseURL: cfg.ImageBaseURL},
		Redis:         rdb,
		DeletedEvents: pDeleted,
		ServiceName:   cfg.ServiceName,
	}
	checkoutSvc := &checkout.Service{
		Store:        repo,
		PlacedEvents: pPlaced,
		CancelEvents: pCancelled,
		ServiceName:  cfg.ServiceName,
	}

	router := httpx.NewRouter()
	(&httpx.ProductsHandler{Catalog: catalogSvc}).Register(router)
	(&httpx.CheckoutHandler{Svc: checkoutSvc}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pPlaced.Close() // close inbox -> flush & close writer
	pCancelled.Close()
	pDeleted.Close()
	cancel() // stop producer loops
	pPlaced.WaitClosed()
	pCancelled.WaitClosed()
	pDeleted.WaitClosed()
}
