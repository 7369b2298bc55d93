// Package elasticsearch ships enriched feature documents to an Elasticsearch
// index through the _bulk API.
package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/enrich"
	"Go2NetKDD/internal/factory"
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

func init() {
	factory.RegisterSink("elasticsearch", func(def config.SinkDef) (model.Writer, error) {
		return NewWriter(def.Elasticsearch)
	})
}

// Writer indexes one document per feature vector, in bulk requests of at
// most BatchSize documents.
type Writer struct {
	client    *elasticsearch.Client
	breaker   *gobreaker.CircuitBreaker
	builder   *enrich.Builder
	index     string
	batchSize int
	timeout   time.Duration
}

type bulkResponse struct {
	Errors bool                                `json:"errors"`
	Items  []map[string]bulkResponseItemResult `json:"items"`
}

type bulkResponseItemResult struct {
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// NewWriter creates the client. The cluster is not contacted until the first
// Write.
func NewWriter(cfg config.ElasticsearchConfig) (*Writer, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("elasticsearch sink requires at least one address")
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "elasticsearch-sink",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			zap.S().Warnf("Circuit breaker '%s' changed from %s to %s", name, from, to)
		},
	})

	builder := &enrich.Builder{}
	if cfg.ResolveHostnames {
		builder.Resolver = net.DefaultResolver
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	return &Writer{
		client:    client,
		breaker:   breaker,
		builder:   builder,
		index:     cfg.Index,
		batchSize: batchSize,
		timeout:   timeout,
	}, nil
}

// Name returns "elasticsearch".
func (w *Writer) Name() string { return "elasticsearch" }

// Write enriches the batch and indexes it. Failed requests or documents are
// counted and reported; remaining chunks are still sent.
func (w *Writer) Write(ctx context.Context, batch *model.Batch) error {
	docs := w.builder.BuildBatch(ctx, batch)
	if len(docs) == 0 {
		return nil
	}

	var totalIndexed, totalFailed int
	var lastErr error
	for start := 0; start < len(docs); start += w.batchSize {
		end := min(start+w.batchSize, len(docs))
		chunk := docs[start:end]

		indexed, failed, err := w.bulk(ctx, chunk)
		if err != nil {
			zap.S().Errorf("Bulk request of %d documents failed: %v", len(chunk), err)
			lastErr = err
			failed = len(chunk) - indexed
		}
		zap.S().Infof("Elasticsearch: %d documents indexed, %d failures", indexed, failed)
		totalIndexed += indexed
		totalFailed += failed
	}

	metrics.SinkDocuments.WithLabelValues(w.Name(), "success").Add(float64(totalIndexed))
	metrics.SinkDocuments.WithLabelValues(w.Name(), "failure").Add(float64(totalFailed))

	if totalFailed > 0 {
		if lastErr != nil {
			return fmt.Errorf("%d of %d documents not indexed: %w", totalFailed, len(docs), lastErr)
		}
		return fmt.Errorf("%d of %d documents not indexed", totalFailed, len(docs))
	}
	return nil
}

// bulk sends one _bulk request and counts the per-item results.
func (w *Writer) bulk(ctx context.Context, docs []enrich.Document) (indexed, failed int, err error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	action := map[string]map[string]string{"index": {"_index": w.index}}
	for _, doc := range docs {
		if err := enc.Encode(action); err != nil {
			return 0, 0, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return 0, 0, fmt.Errorf("failed to encode bulk document: %w", err)
		}
	}

	result, err := w.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		res, err := w.client.Bulk(
			bytes.NewReader(buf.Bytes()),
			w.client.Bulk.WithContext(reqCtx),
		)
		if err != nil {
			return nil, fmt.Errorf("bulk request failed: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			body, _ := io.ReadAll(res.Body)
			return nil, fmt.Errorf("bulk operation failed with status %s: %s", res.Status(), string(body))
		}

		var parsed bulkResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode bulk response: %w", err)
		}
		return &parsed, nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, item := range result.(*bulkResponse).Items {
		for _, r := range item {
			if r.Status >= 200 && r.Status < 300 {
				indexed++
			} else {
				failed++
			}
		}
	}
	// Items missing from the response count as failures.
	if missing := len(docs) - indexed - failed; missing > 0 {
		failed += missing
	}
	return indexed, failed, nil
}

// Close is a no-op; the client holds no resources that need releasing.
func (w *Writer) Close() error { return nil }
