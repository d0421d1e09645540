// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/config"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/db"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/logger"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/vendor"
)

// prefetch bounds unacked receipts held by this consumer.
const prefetch = 32

// consumer is the part of *amqp.Channel the worker uses.
type consumer interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "crm-worker")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("worker exited", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.Database, lg)
	if err != nil {
		return err
	}
	defer conn.Close()
	store := repository.NewPostgresStore(conn)

	mq, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer mq.Close()

	ch, err := mq.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := vendor.DeclareReceiptQueue(ch, cfg.ReceiptQueue); err != nil {
		return err
	}
	deliveries, err := subscribe(ch, cfg.ReceiptQueue, prefetch)
	if err != nil {
		return err
	}

	rec := delivery.NewStoreRecorder(store, nil, lg)
	receipts := service.NewReceiptService(store.Messages, rec, lg)
	worker := service.NewReceiptWorker(receipts, deliveries, lg.Named("worker"))

	lg.Info("worker running, waiting for receipts", zap.String("queue", cfg.ReceiptQueue))
	worker.Start(ctx)
	lg.Info("worker stopped")
	return nil
}

// subscribe sets the prefetch window and starts a manual-ack consumer.
func subscribe(ch consumer, queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(
		queue,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register consumer on %s: %w", queue, err)
	}
	return deliveries, nil
}
