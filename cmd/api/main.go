package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/pos-ledger/internal/api"
	"github.com/example/pos-ledger/internal/auth"
	"github.com/example/pos-ledger/internal/command"
	"github.com/example/pos-ledger/internal/config"
	"github.com/example/pos-ledger/internal/domain/customer"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/example/pos-ledger/internal/domain/user"
	"github.com/example/pos-ledger/internal/idempotency"
	"github.com/example/pos-ledger/internal/infrastructure/kafka"
	"github.com/example/pos-ledger/internal/infrastructure/rabbitmq"
	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/example/pos-ledger/internal/metrics"
	"github.com/example/pos-ledger/internal/query"
	"github.com/example/pos-ledger/internal/relay"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
)

const adminID = "00000000-0000-0000-0000-000000000001"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("[API] Invalid ORDER_TIMEZONE: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] POS Ledger")
	log.Println("[API] ========================================")
	log.Printf("[API] Store: %s", cfg.StoreDriver)
	log.Printf("[API] Order timezone: %s", loc)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var s store.Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			log.Fatalf("[API] Failed to migrate schema: %v", err)
		}
		log.Println("[API] Connected to PostgreSQL")
		s = store.NewPostgresStore(db)
	default:
		s = store.NewMemoryStore()
	}

	cmdHandler := command.NewHandler(s, command.Options{
		Metrics:     m,
		Location:    loc,
		MaxAttempts: cfg.OrderNumberAttempts,
	})
	queryHandler := query.NewHandler(s)

	if mem, ok := s.(*store.MemoryStore); ok {
		if err := seedMemory(ctx, mem, cmdHandler, cfg); err != nil {
			log.Fatalf("[API] Failed to seed memory store: %v", err)
		}
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(s, jwtService)

	var wg sync.WaitGroup
	publisher, closePublisher, err := newPublisher(cfg)
	if err != nil {
		log.Fatalf("[API] Failed to set up event publisher: %v", err)
	}
	if publisher != nil {
		defer closePublisher()

		r := relay.New(s, publisher, m, cfg.RelayInterval, cfg.RelayBatch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	} else {
		log.Println("[API] No broker configured, events stay in the outbox")
	}

	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	if cfg.RedisURL != "" {
		rs, err := idempotency.NewRedisStore(cfg.RedisURL, cfg.IdempotencyTTL)
		if err != nil {
			log.Fatalf("[API] Failed to connect to Redis: %v", err)
		}
		defer rs.Close()
		idem = rs
		log.Println("[API] Idempotency keys: Redis")
	}

	handlers := api.NewHandlers(cmdHandler, queryHandler, authService, idem)
	router := api.NewRouter(handlers, jwtService, m, registry)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}

	wg.Wait()
}

// newPublisher picks the outbox relay target: Kafka when brokers are configured, else RabbitMQ
// when AMQP_URL is set. A nil publisher disables the relay.
func newPublisher(cfg *config.Config) (relay.Publisher, func() error, error) {
	switch {
	case cfg.KafkaEnabled():
		log.Printf("[API] Relaying outbox to Kafka %v topic %s", cfg.KafkaBrokers, cfg.KafkaTopic)
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, p.Close, nil
	case cfg.AMQPURL != "":
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[API] Relaying outbox to RabbitMQ exchange %s", cfg.AMQPExchange)
		return p, p.Close, nil
	}
	return nil, nil, nil
}

// seedMemory creates the operator account and a small demo catalog. Opening stock goes through
// the ledger as an ADJUSTMENT so replaying the movements matches the stored stock.
func seedMemory(ctx context.Context, s *store.MemoryStore, cmd *command.Handler, cfg *config.Config) error {
	password := cfg.AdminPassword
	if password == "" {
		password = uuid.NewString()
		log.Printf("[API] ADMIN_PASSWORD not set, generated one for %s: %s", cfg.AdminEmail, password)
	}
	hash, err := auth.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		return err
	}

	now := time.Now()
	s.PutUser(&user.User{
		ID:           adminID,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Name:         "Administrador",
		Role:         user.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	s.PutCustomer(&customer.Customer{ID: "walk-in", Name: "Cliente general", CreatedAt: now})

	demo := []struct {
		id, name string
		price    int64
		stock    int
	}{
		{"cafe-250", "Café molido 250g", 18, 40},
		{"te-verde", "Té verde x20", 9, 25},
		{"azucar-1k", "Azúcar rubia 1kg", 5, 60},
	}
	for _, d := range demo {
		p := &product.Product{
			ID:          d.id,
			Name:        d.name,
			Price:       decimal.NewFromInt(d.price),
			MinStock:    product.DefaultMinStock,
			IsAvailable: true,
		}
		p.TouchCreated(now)
		s.PutProduct(p)

		if _, err := cmd.RegisterMovement(ctx, command.RegisterMovement{
			ProductID: d.id,
			Type:      inventory.MovementAdjustment,
			Quantity:  d.stock,
			Reason:    "Inventario inicial",
			UserID:    adminID,
		}); err != nil {
			return err
		}
	}
	log.Printf("[API] Seeded %d demo products", len(demo))
	return nil
}
