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

	"github.com/example/pos-ledger/internal/config"
	"github.com/example/pos-ledger/internal/infrastructure/kafka"
	"github.com/example/pos-ledger/internal/projection"
	"github.com/example/pos-ledger/internal/readmodel"
	"github.com/example/pos-ledger/internal/stockfeed"
)

const reportInterval = time.Minute

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Projector] Invalid configuration: %v", err)
	}
	if !cfg.KafkaEnabled() {
		log.Fatal("[Projector] KAFKA_BROKERS environment variable is required")
	}

	log.Println("[Projector] ========================================")
	log.Println("[Projector] POS Ledger - Stock Projector")
	log.Println("[Projector] ========================================")
	log.Printf("[Projector] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Projector] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Projector] Group: %s", cfg.KafkaConsumerGroup)

	readStore := readmodel.NewStore()
	hub := stockfeed.NewHub()
	defer hub.Close()

	projector := projection.NewProjector(readStore)
	projector.OnStockChange(func(sl readmodel.StockLevel) {
		if err := hub.Publish(sl); err != nil {
			log.Printf("[Projector] Failed to publish stock level for %s: %v", sl.ProductID, err)
		}
	})

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaConsumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Projector] Starting event consumer...")
		if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
			log.Printf("[Projector] Consumer error: %v", err)
		}
	}()

	go reportLowStock(ctx, readStore)

	server := &http.Server{
		Addr:              cfg.FeedAddr,
		Handler:           stockfeed.NewRouter(readStore, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[Projector] Stock feed on %s", cfg.FeedAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Projector] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Projector] Shutting down...")
	cancel()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Projector] Shutdown error: %v", err)
	}
}

func reportLowStock(ctx context.Context, readStore *readmodel.Store) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sl := range readStore.LowStock() {
				log.Printf("[Projector] Low stock: %s has %d (min %d)", sl.ProductID, sl.CurrentStock, sl.MinStock)
				if !sl.Consistent {
					log.Printf("[Projector] Ledger drift on %s: stored %d, replayed %d", sl.ProductID, sl.CurrentStock, sl.Replayed)
				}
			}
		}
	}
}
