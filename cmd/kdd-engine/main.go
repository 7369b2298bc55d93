package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/engine/batch"
	"Go2NetKDD/internal/engine/pipeline"
	"Go2NetKDD/internal/engine/realtime"
	"Go2NetKDD/internal/factory"
	"Go2NetKDD/internal/ledger"
	"Go2NetKDD/internal/logging"
	"Go2NetKDD/internal/metrics"

	// Sinks register themselves with the factory.
	_ "Go2NetKDD/internal/sink/clickhouse"
	_ "Go2NetKDD/internal/sink/csv"
	_ "Go2NetKDD/internal/sink/elasticsearch"
	_ "Go2NetKDD/internal/sink/kafka"
	_ "Go2NetKDD/internal/sink/natspub"
	_ "Go2NetKDD/internal/sink/snapshot"

	"go.uber.org/zap"
)

// overrides holds the command line values that take precedence over the
// config file. Zero values leave the config untouched.
type overrides struct {
	logsDir       string
	output        string
	realTime      bool
	interval      int
	elasticsearch bool
}

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	var o overrides
	flag.StringVar(&o.logsDir, "logs-dir", "", "Zeek log directory (archive root in batch mode, spool in real-time mode)")
	flag.StringVar(&o.output, "output", "", "CSV output file")
	flag.BoolVar(&o.realTime, "real-time", false, "Follow the live spool directory")
	flag.IntVar(&o.interval, "interval", 0, "Real-time poll interval in seconds")
	flag.BoolVar(&o.elasticsearch, "elasticsearch", false, "Also index enriched documents into Elasticsearch")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := applyOverrides(cfg, o); err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	flush, err := logging.Init(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	code := run(cfg)
	flush()
	os.Exit(code)
}

func run(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr)

	writers, err := factory.Create(cfg)
	if err != nil {
		zap.S().Errorf("Failed to create sinks: %v", err)
		return 1
	}
	if len(writers) == 0 {
		zap.S().Warn("No sink enabled, feature vectors will be discarded.")
	}
	pipe := pipeline.New(writers)
	defer pipe.Close()

	if cfg.Engine.Mode == config.ModeBatch {
		zap.S().Infof("Batch conversion of %s", cfg.Input.LogsDir)
		if _, err := batch.New(cfg.Input.LogsDir, pipe).Run(ctx); err != nil {
			zap.S().Errorf("Batch conversion failed: %v", err)
			return 1
		}
		zap.S().Info("Batch conversion complete.")
		return 0
	}

	l, err := ledger.Open(cfg.Ledger)
	if err != nil {
		zap.S().Errorf("Failed to open ledger: %v", err)
		return 1
	}
	defer l.Close()
	if err := l.Load(ctx); err != nil {
		zap.S().Warnf("Starting with an empty ledger: %v", err)
	}

	interval, _ := cfg.PollInterval()
	runner := realtime.New(realtime.Options{
		SpoolDir:       cfg.Input.SpoolDir,
		Interval:       interval,
		EmptyScanReset: cfg.Engine.EmptyScanReset,
		Verify: ledger.VerifyOptions{
			ToleranceBytes:  cfg.Engine.LedgerToleranceByte,
			OvercountFactor: cfg.Engine.OvercountFactor,
			MinLines:        int64(cfg.Engine.MinLinesForEstimate),
		},
	}, l, pipe)

	if err := runner.Run(ctx); err != nil {
		zap.S().Errorf("Failed to flush ledger on shutdown: %v", err)
		return 1
	}
	zap.S().Info("Shutdown complete.")
	return 0
}

func applyOverrides(cfg *config.Config, o overrides) error {
	if o.realTime {
		cfg.Engine.Mode = config.ModeRealtime
	}
	if o.logsDir != "" {
		if cfg.Engine.Mode == config.ModeRealtime {
			cfg.Input.SpoolDir = o.logsDir
		} else {
			cfg.Input.LogsDir = o.logsDir
		}
	}
	if o.interval < 0 {
		return fmt.Errorf("interval must be positive")
	}
	if o.interval > 0 {
		cfg.Engine.PollInterval = (time.Duration(o.interval) * time.Second).String()
	}
	if o.output != "" {
		if s := cfg.SinkByType("csv"); s != nil {
			s.Enabled = true
			s.CSV.Path = o.output
		} else {
			cfg.Sinks = append(cfg.Sinks, config.SinkDef{Type: "csv", Enabled: true, CSV: config.CSVConfig{Path: o.output}})
		}
	}
	if o.elasticsearch {
		if s := cfg.SinkByType("elasticsearch"); s != nil {
			s.Enabled = true
		} else {
			cfg.Sinks = append(cfg.Sinks, config.SinkDef{Type: "elasticsearch", Enabled: true})
		}
	}
	cfg.ApplyDefaults()
	return cfg.Validate()
}
