// Package kafka produces enriched feature documents to a Kafka topic as JSON,
// keyed by connection UID.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/enrich"
	"Go2NetKDD/internal/factory"
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func init() {
	factory.RegisterSink("kafka", func(def config.SinkDef) (model.Writer, error) {
		return NewWriter(def.Kafka)
	})
}

// messageWriter is the subset of *kafka.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer produces one message per feature vector.
type Writer struct {
	producer messageWriter
	builder  *enrich.Builder
	topic    string
}

// NewWriter creates the producer. Brokers are dialled lazily.
func NewWriter(cfg config.KafkaConfig) (*Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	producer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	zap.S().Infof("Kafka producer ready for topic '%s' on %v", cfg.Topic, cfg.Brokers)
	return &Writer{producer: producer, builder: &enrich.Builder{}, topic: cfg.Topic}, nil
}

// Name returns "kafka".
func (w *Writer) Name() string { return "kafka" }

// Write produces the whole batch in one call.
func (w *Writer) Write(ctx context.Context, batch *model.Batch) error {
	docs := w.builder.BuildBatch(ctx, batch)
	if len(docs) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(docs))
	for _, doc := range docs {
		value, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		key, _ := doc["conn_uid"].(string)
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Headers: []kafka.Header{
				{Key: "source", Value: []byte("zeek")},
			},
		})
	}

	if err := w.producer.WriteMessages(ctx, msgs...); err != nil {
		failed := len(msgs)
		var writeErrs kafka.WriteErrors
		if errors.As(err, &writeErrs) {
			failed = writeErrs.Count()
		}
		metrics.SinkDocuments.WithLabelValues(w.Name(), "success").Add(float64(len(msgs) - failed))
		metrics.SinkDocuments.WithLabelValues(w.Name(), "failure").Add(float64(failed))
		return fmt.Errorf("failed to produce %d of %d messages to '%s': %w", failed, len(msgs), w.topic, err)
	}

	metrics.SinkDocuments.WithLabelValues(w.Name(), "success").Add(float64(len(msgs)))
	zap.S().Infof("Produced %d messages to Kafka topic '%s'", len(msgs), w.topic)
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.producer.Close()
}
