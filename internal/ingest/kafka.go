package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"ultraseeker/internal/config"
	"ultraseeker/internal/model"
	"ultraseeker/internal/normalize"
)

// StartKafka consumes capture-node payloads from a Kafka topic. Delivery
// is at-least-once; the engine's dedupe window absorbs redeliveries.
func StartKafka(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawInput, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			fields, err := parser.ParseLine(string(m.Value))
			if err != nil || fields == nil {
				continue
			}
			input, err := normalize.Normalize(*fields, cfg.Get())
			if err != nil {
				if logger != nil {
					logger.Warn("kafka normalize error", "err", err)
				}
				continue
			}
			input.Source = "kafka"
			SendNonBlocking(ctx, out, input, logger)
		}
	}()
}
