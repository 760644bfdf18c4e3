package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"ironclad/internal/platform/kafka"
)

// AlertSink receives ALERTED and PURGED outcomes.
type AlertSink interface {
	Publish(ctx context.Context, alert Alert) error
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, alert Alert) error {
	s.logger.WarnContext(ctx, "verification alert raised",
		"request_id", alert.RequestID,
		"tier", string(alert.Tier),
		"score", alert.Score,
		"policy_context", alert.PolicyContext,
		"token_count", alert.TokenCount,
		"purged", alert.Purged,
	)
	return nil
}

// Publisher is the subset of kafka.Producer the sink needs.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaSink publishes alerts as JSON keyed by request ID, so all alerts for
// one request land on the same partition.
type KafkaSink struct {
	producer Publisher
	topic    string
}

func NewKafkaSink(producer Publisher, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, alert Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return s.producer.Publish(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(alert.RequestID),
		Value: value,
		Headers: map[string]string{
			"tier": string(alert.Tier),
		},
	})
}

// MultiSink fans an alert out to every sink and joins their errors.
type MultiSink []AlertSink

func (m MultiSink) Publish(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
