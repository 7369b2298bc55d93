package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2NetKDD/internal/ai"
	"Go2NetKDD/internal/alerter"
	"Go2NetKDD/internal/classifier"
	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/logging"
	"Go2NetKDD/internal/model"
	"Go2NetKDD/internal/notification"
	"Go2NetKDD/internal/predictor"

	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	input := flag.String("input", "", "CSV file written by kdd-engine")
	modelAddr := flag.String("model", "", "Address of the classifier service")
	interval := flag.Int("interval", 0, "Poll interval in seconds")
	history := flag.Int("history", 0, "Number of predictions kept in memory")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *input != "" {
		cfg.Predictor.Input = *input
	}
	if *modelAddr != "" {
		cfg.Predictor.ClassifierAddr = *modelAddr
	}
	if *interval > 0 {
		cfg.Predictor.Interval = (time.Duration(*interval) * time.Second).String()
	}
	if *history > 0 {
		cfg.Predictor.History = *history
	}

	flush, err := logging.Init(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hist := predictor.NewHistory(cfg.Predictor.History)
	p, predictorDone := startPredictor(ctx, cfg, hist)

	var a *alerter.Alerter
	if p != nil && cfg.Alerter.Enabled {
		a, err = alerter.NewAlerter(&cfg.Alerter, p.Notifications(), notification.NewEmailNotifier(cfg.SMTP), newAnalyzer(cfg))
		if err != nil {
			zap.S().Fatalf("Failed to create alerter: %v", err)
		}
		a.Start()
	}

	server := &http.Server{
		Addr:    cfg.Predictor.ListenAddr,
		Handler: predictor.NewRouter(hist),
	}
	go func() {
		zap.S().Infof("Prediction API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	<-ctx.Done()
	zap.S().Info("Prediction service shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorf("Server forced to shutdown: %v", err)
	}
	<-predictorDone
	if a != nil {
		a.Stop()
	}
	zap.S().Info("Prediction service exited.")
}

// startPredictor returns nil when no classifier can be reached; the API then
// serves an empty history. The returned channel is closed once the worker has
// stopped and the classifier connection is released.
func startPredictor(ctx context.Context, cfg *config.Config, hist *predictor.History) (*predictor.Predictor, <-chan struct{}) {
	done := make(chan struct{})
	clf, err := classifier.Dial(ctx, cfg.Predictor.ClassifierAddr)
	if err != nil {
		zap.S().Errorf("Prediction disabled: %v", err)
		close(done)
		return nil, done
	}

	interval, _ := time.ParseDuration(cfg.Predictor.Interval)
	p, err := predictor.New(predictor.Options{
		Input:       cfg.Predictor.Input,
		Interval:    interval,
		NormalLabel: cfg.Predictor.NormalLabel,
		QueueSize:   cfg.Predictor.QueueSize,
	}, clf, hist)
	if err != nil {
		zap.S().Errorf("Prediction disabled: %v", err)
		clf.Close()
		close(done)
		return nil, done
	}

	go func() {
		defer close(done)
		p.Run(ctx)
		if err := clf.Close(); err != nil {
			zap.S().Warnf("Failed to close classifier connection: %v", err)
		}
	}()
	return p, done
}

func newAnalyzer(cfg *config.Config) model.Analyzer {
	if !cfg.Alerter.AIAnalysis.Enabled {
		return nil
	}
	analyzer, err := ai.NewAlertAnalyzer(&cfg.AI)
	if err != nil {
		zap.S().Warnf("AI analysis disabled: %v", err)
		return nil
	}
	return analyzer
}
