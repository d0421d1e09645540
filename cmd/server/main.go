// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/cache"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/config"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/controller"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/db"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/logger"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/queue"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/segment"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/vendor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "crm-server")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	kv, closeKV := openKV(ctx, cfg, lg)
	defer closeKV()

	rec := delivery.NewStoreRecorder(store, m, lg)

	// background work outlives request contexts but not the process
	bg, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()

	sink, closeSink, err := receiptSink(bg, cfg, rec, lg)
	if err != nil {
		return err
	}

	sim := vendor.NewSimulator(vendor.Options{
		SuccessRate: cfg.Vendor.SuccessRate,
		MinDelay:    cfg.Vendor.MinDelay,
		MaxDelay:    cfg.Vendor.MaxDelay,
	}, sink, lg.Named("vendor"))

	drain := queue.NewDrainLoop(store.Messages, rec, sim, cfg.DrainInterval, cfg.DrainProcessingDelay, m, lg.Named("drain"))
	drain.Start(bg)

	segments := segment.NewService(store.Segments, store.Customers, cfg.SegmentStaleAfter, m, lg.Named("segments"))
	segments.StrictRules = cfg.StrictRules
	customers := &service.CustomerService{Customers: store.Customers, Orders: store.Orders, Logger: lg}
	orders := &service.OrderService{Orders: store.Orders, Customers: store.Customers, Spend: customers}
	campaigns := &service.CampaignService{
		CampaignRepo: store.Campaigns,
		CustomerRepo: store.Customers,
		MessageRepo:  store.Messages,
		LogRepo:      store.Logs,
		Segments:     segments,
		Recorder:     rec,
		Vendor:       sim,
		Queue:        drain,
		Mode:         cfg.DeliveryMode,
		Concurrency:  cfg.DeliveryConcurrency,
		Metrics:      m,
		Logger:       lg.Named("campaigns"),
	}
	ai := &service.AIService{Cache: kv, CacheTTL: cfg.AI.CacheTTL, StrictRules: cfg.StrictRules, Logger: lg.Named("ai")}
	if cfg.AI.APIKey != "" {
		ai.Generator = service.NewGeminiClient(cfg.AI, lg.Named("ai"))
	} else {
		lg.Info("AI_API_KEY not set, natural-language endpoints use local fallbacks")
	}

	router := controller.NewRouter(controller.Routes{
		Campaigns:     &controller.CampaignController{CampaignService: campaigns, Logger: lg},
		CampaignReads: handler.NewCampaignHandler(campaigns, lg),
		Customers:     &controller.CustomerController{Customers: customers, Logger: lg},
		Orders:        &controller.OrderController{Orders: orders, Logger: lg},
		Segments:      &controller.SegmentController{Segments: segments, Logger: lg},
		AI:            &controller.AIController{AI: ai, Logger: lg},
		Delivery: &handler.DeliveryHandler{
			Receipts: service.NewReceiptService(store.Messages, rec, lg),
			Queue:    drain,
			Logger:   lg,
		},
		Metrics: m,
		Logger:  lg,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		lg.Info("server running",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.Store),
			zap.String("delivery_mode", cfg.DeliveryMode),
			zap.String("receipt_mode", cfg.ReceiptMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	drain.Stop()
	// pending receipts go out before the sinks close
	sim.Stop()
	closeSink(shutdownCtx)
	cancelBG()
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		lg.Warn("using in-memory store, data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil
	}
	conn, err := db.Open(cfg.Database, lg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return repository.NewPostgresStore(conn), func() { _ = conn.Close() }, nil
}

func openKV(ctx context.Context, cfg *config.Config, lg *zap.Logger) (cache.KVStore, func()) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryKVStore(), func() {}
	}
	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		lg.Warn("redis unavailable, caching in memory", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return cache.NewMemoryKVStore(), func() {}
	}
	return cache.NewRedisKVStore(client), func() { closeRedis(client, lg) }
}

func closeRedis(client *redis.Client, lg *zap.Logger) {
	if err := client.Close(); err != nil {
		lg.Warn("redis close", zap.Error(err))
	}
}

// receiptSink builds the path vendor receipts take back to the recorder.
func receiptSink(ctx context.Context, cfg *config.Config, rec *delivery.Recorder, lg *zap.Logger) (vendor.ReceiptSink, func(context.Context), error) {
	batched := func() *vendor.BatchSink {
		b := vendor.NewBatchSink(rec.ApplyReceipts, cfg.ReceiptFlushInterval, cfg.ReceiptBatchSize, lg.Named("receipts"))
		b.Start(ctx)
		return b
	}

	switch cfg.ReceiptMode {
	case config.ReceiptDirect:
		bus := queue.NewInMemoryBus(queue.DefaultMaxAttempts, lg.Named("bus"))
		if err := queue.StartReceiptSubscriber(bus, rec, lg); err != nil {
			return nil, nil, err
		}
		return queue.ReceiptPublisher{Queue: bus, Logger: lg}, func(context.Context) { bus.Close() }, nil

	case config.ReceiptAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to broker: %w", err)
		}
		sink, ch, err := vendor.NewAMQPSink(conn, cfg.ReceiptQueue, lg.Named("receipts"))
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		fallback := batched()
		sink.Fallback = fallback
		return sink, func(ctx context.Context) {
			fallback.Stop(ctx)
			_ = ch.Close()
			_ = conn.Close()
		}, nil

	default:
		b := batched()
		return b, b.Stop, nil
	}
}
