// Package metrics defines the Prometheus collectors shared by the engine and
// the predictor.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	RecordsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdd_records_parsed_total",
		Help: "Log records parsed, by log type.",
	}, []string{"log"})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdd_records_dropped_total",
		Help: "Log lines dropped with a diagnostic, by reason.",
	}, []string{"reason"})

	Connections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kdd_connections_total",
		Help: "New connections inserted into the correlator.",
	})

	FeaturesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kdd_features_emitted_total",
		Help: "Feature vectors handed to the sinks.",
	})

	SinkDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdd_sink_documents_total",
		Help: "Documents written by each sink, by result.",
	}, []string{"sink", "result"})

	LedgerResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdd_ledger_resets_total",
		Help: "Ledger entries reset to zero, by reason.",
	}, []string{"reason"})

	EmptyScanStreak = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kdd_scan_empty_streak",
		Help: "Consecutive real-time scans without new connections.",
	})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdd_predictions_total",
		Help: "Classifier predictions, by label.",
	}, []string{"label"})
)

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the exporter.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		zap.S().Infof("Metrics exporter listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorf("Metrics exporter stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
