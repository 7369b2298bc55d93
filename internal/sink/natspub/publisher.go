// Package natspub publishes enriched feature documents on a NATS subject as
// protobuf Struct messages.
package natspub

import (
	"context"
	"errors"
	"fmt"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/enrich"
	"Go2NetKDD/internal/factory"
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func init() {
	factory.RegisterSink("nats", func(def config.SinkDef) (model.Writer, error) {
		return NewPublisher(def.NATS)
	})
}

// Publisher is responsible for publishing feature documents to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	builder *enrich.Builder
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats sink requires a url")
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("kdd-engine"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	zap.S().Infof("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject, builder: &enrich.Builder{}}, nil
}

// Name returns "nats".
func (p *Publisher) Name() string { return "nats" }

// Write publishes one message per vector and flushes the connection.
func (p *Publisher) Write(ctx context.Context, batch *model.Batch) error {
	var published, failed int
	var firstErr error
	for _, doc := range p.builder.BuildBatch(ctx, batch) {
		data, err := Encode(doc)
		if err == nil {
			err = p.nc.Publish(p.subject, data)
		}
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		published++
	}
	if published > 0 {
		if err := p.nc.FlushWithContext(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	metrics.SinkDocuments.WithLabelValues(p.Name(), "success").Add(float64(published))
	metrics.SinkDocuments.WithLabelValues(p.Name(), "failure").Add(float64(failed))
	if firstErr != nil {
		return fmt.Errorf("published %d of %d documents to '%s': %w", published, batch.Len(), p.subject, firstErr)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	zap.S().Info("NATS connection drained and closed.")
	return err
}

// Encode serializes a document as a protobuf Struct.
func Encode(doc enrich.Document) ([]byte, error) {
	s, err := structpb.NewStruct(normalize(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	return proto.Marshal(s)
}

// Decode is the inverse of Encode, for subscribers. Numbers decode as float64.
func Decode(data []byte) (enrich.Document, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error unmarshalling protobuf: %w", err)
	}
	return enrich.Document(s.AsMap()), nil
}

// normalize converts the value types structpb cannot take directly.
func normalize(doc enrich.Document) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case []string:
			list := make([]interface{}, len(t))
			for i, s := range t {
				list[i] = s
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}
