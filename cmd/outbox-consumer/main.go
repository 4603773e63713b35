// Command outbox-consumer drains the Kafka mirror of wallet events. It is a
// sink for downstream systems (analytics, accounting exports) that must not
// read the gateway's database directly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	topic := "casino.wallet"
	if t := os.Getenv("OUTBOX_CONSUMER_TOPIC"); t != "" {
		topic = t
	}
	groupID := "outbox-consumer"
	if g := os.Getenv("OUTBOX_CONSUMER_GROUP"); g != "" {
		groupID = g
	}

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, groupID, true, logger)
	if !consumer.Enabled() {
		return fmt.Errorf("kafka consumer requires KAFKA_BROKERS")
	}
	defer consumer.Close()

	logger.Info("outbox consumer started", "topic", topic, "group", groupID)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("outbox consumer shutting down")
				return nil
			}
			logger.Error("read message", "error", err)
			continue
		}

		var event domain.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn("skipping malformed event", "offset", msg.Offset, "error", err)
			continue
		}
		logger.Info("event",
			"event_id", event.EventID,
			"type", event.Type,
			"aggregate_id", event.AggregateID,
			"version", event.Version)
	}
}
