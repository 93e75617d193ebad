package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/config"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes compliance verdicts to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a producer for the configured verdict topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return newWriter(cfg.KafkaBrokers, cfg.KafkaVerdictTopic, logger)
}

func newWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// LoadBatch publishes one message per verdict in a single WriteMessages call.
// Messages are keyed by parcel id so a parcel's verdicts stay on one
// partition, in period order.
func (w *Writer) LoadBatch(ctx context.Context, verdicts []domain.ComplianceVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(verdicts))
	for i := range verdicts {
		msg, err := serializeToMessage(verdicts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write verdicts: %w", err)
	}
	w.logger.Debug("verdicts published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(v domain.ComplianceVerdict) (kafkago.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize verdict: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(v.ParcelID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(v.Status)},
			{Key: "period_id", Value: []byte(v.PeriodID)},
			{Key: "evaluated_at", Value: []byte(v.EvaluatedAt.Format(time.RFC3339))},
		},
	}, nil
}

// DecodeMessage maps a consumed message back to the verdict it carries.
func DecodeMessage(msg kafkago.Message) (domain.ComplianceVerdict, error) {
	var v domain.ComplianceVerdict
	if err := json.Unmarshal(msg.Value, &v); err != nil {
		return domain.ComplianceVerdict{}, fmt.Errorf("decode verdict at offset %d: %w", msg.Offset, err)
	}
	if v.ParcelID != string(msg.Key) {
		return domain.ComplianceVerdict{}, fmt.Errorf("decode verdict at offset %d: key %q does not match parcel %q", msg.Offset, msg.Key, v.ParcelID)
	}
	return v, nil
}
