package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// InputConfig describes where the Zeek logs live.
type InputConfig struct {
	LogsDir  string `yaml:"logs_dir"`  // batch mode: <logs_dir>/<date>/<type>.<rotation>.log.gz
	SpoolDir string `yaml:"spool_dir"` // real-time mode: <spool_dir>/<type>.log
}

// EngineConfig holds the conversion engine settings.
type EngineConfig struct {
	Mode                string  `yaml:"mode"` // "batch" or "realtime"
	PollInterval        string  `yaml:"poll_interval"`
	EmptyScanReset      int     `yaml:"empty_scan_reset"`
	LedgerToleranceByte int64   `yaml:"ledger_tolerance_bytes"`
	OvercountFactor     float64 `yaml:"overcount_factor"`
	MinLinesForEstimate int     `yaml:"min_lines_for_estimate"`
}

// RedisConfig holds the connection details of the redis ledger backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// LedgerConfig selects where per-file read positions are persisted.
type LedgerConfig struct {
	Backend string      `yaml:"backend"` // "file" or "redis"
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// CSVConfig holds the CSV sink settings.
type CSVConfig struct {
	Path string `yaml:"path"`
}

// ElasticsearchConfig holds the bulk indexing sink settings.
type ElasticsearchConfig struct {
	Addresses          []string `yaml:"addresses"`
	APIKey             string   `yaml:"api_key"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Index              string   `yaml:"index"`
	BatchSize          int      `yaml:"batch_size"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	ResolveHostnames   bool     `yaml:"resolve_hostnames"`
	Timeout            string   `yaml:"timeout"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig holds the NATS sink settings.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// KafkaConfig holds the Kafka sink settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// SnapshotConfig holds the gob snapshot sink settings.
type SnapshotConfig struct {
	RootPath string `yaml:"root_path"`
}

// SinkDef defines a single output sink from the config file.
type SinkDef struct {
	Type          string              `yaml:"type"`
	Enabled       bool                `yaml:"enabled"`
	CSV           CSVConfig           `yaml:"csv"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	NATS          NATSConfig          `yaml:"nats"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
}

// PredictorConfig holds the real-time predictor settings.
type PredictorConfig struct {
	Input          string `yaml:"input"`
	ClassifierAddr string `yaml:"classifier_addr"`
	History        int    `yaml:"history"`
	Interval       string `yaml:"interval"`
	ListenAddr     string `yaml:"listen_addr"`
	NormalLabel    int    `yaml:"normal_label"`
	QueueSize      int    `yaml:"queue_size"`
}

// AIAnalysisConfig toggles AI analysis of alert summaries.
type AIAnalysisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
}

// AlerterConfig holds the settings for attack alerting.
type AlerterConfig struct {
	Enabled       bool             `yaml:"enabled"`
	CheckInterval string           `yaml:"check_interval"`
	MinConfidence float64          `yaml:"min_confidence"`
	AIAnalysis    AIAnalysisConfig `yaml:"ai_analysis"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AIConfig holds the settings for the OpenAI-compatible endpoint.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig holds the Prometheus exporter settings.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Engine    EngineConfig    `yaml:"engine"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Sinks     []SinkDef       `yaml:"sinks"`
	Predictor PredictorConfig `yaml:"predictor"`
	Alerter   AlerterConfig   `yaml:"alerter"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	AI        AIConfig        `yaml:"ai"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

const (
	ModeBatch    = "batch"
	ModeRealtime = "realtime"

	LedgerBackendFile  = "file"
	LedgerBackendRedis = "redis"
)

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Defaults are applied and the result is validated.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no sinks
// other than the CSV output.
func Default() *Config {
	cfg := &Config{
		Sinks: []SinkDef{{Type: "csv", Enabled: true}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Input.LogsDir == "" {
		c.Input.LogsDir = "/opt/zeek/logs"
	}
	if c.Input.SpoolDir == "" {
		c.Input.SpoolDir = "/opt/zeek/spool/zeek"
	}
	if c.Engine.Mode == "" {
		c.Engine.Mode = ModeBatch
	}
	if c.Engine.PollInterval == "" {
		c.Engine.PollInterval = "60s"
	}
	if c.Engine.EmptyScanReset <= 0 {
		c.Engine.EmptyScanReset = 3
	}
	if c.Engine.LedgerToleranceByte <= 0 {
		c.Engine.LedgerToleranceByte = 100
	}
	if c.Engine.OvercountFactor <= 0 {
		c.Engine.OvercountFactor = 1.5
	}
	if c.Engine.MinLinesForEstimate <= 0 {
		c.Engine.MinLinesForEstimate = 10
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerBackendFile
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "zeek_log_positions.json"
	}
	if c.Ledger.Redis.Key == "" {
		c.Ledger.Redis.Key = "kdd:ledger"
	}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		switch s.Type {
		case "csv":
			if s.CSV.Path == "" {
				s.CSV.Path = "nslkdd_format.csv"
			}
		case "elasticsearch":
			if len(s.Elasticsearch.Addresses) == 0 {
				s.Elasticsearch.Addresses = []string{"https://elasticsearch.service:9200"}
			}
			if s.Elasticsearch.Index == "" {
				s.Elasticsearch.Index = "zeek-ids-analytics"
			}
			if s.Elasticsearch.BatchSize <= 0 {
				s.Elasticsearch.BatchSize = 1000
			}
			if s.Elasticsearch.Timeout == "" {
				s.Elasticsearch.Timeout = "30s"
			}
		case "nats":
			if s.NATS.Subject == "" {
				s.NATS.Subject = "kdd.features"
			}
		case "kafka":
			if s.Kafka.Topic == "" {
				s.Kafka.Topic = "kdd-features"
			}
		case "snapshot":
			if s.Snapshot.RootPath == "" {
				s.Snapshot.RootPath = "snapshots"
			}
		}
	}
	if c.Predictor.Input == "" {
		c.Predictor.Input = "nslkdd_format.csv"
	}
	if c.Predictor.History <= 0 {
		c.Predictor.History = 500
	}
	if c.Predictor.Interval == "" {
		c.Predictor.Interval = "1s"
	}
	if c.Predictor.ListenAddr == "" {
		c.Predictor.ListenAddr = ":8088"
	}
	if c.Predictor.QueueSize <= 0 {
		c.Predictor.QueueSize = 1024
	}
	if c.Alerter.CheckInterval == "" {
		c.Alerter.CheckInterval = "1m"
	}
	if c.Alerter.AIAnalysis.Timeout == "" {
		c.Alerter.AIAnalysis.Timeout = "60s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Engine.Mode {
	case ModeBatch, ModeRealtime:
	default:
		return fmt.Errorf("unknown engine mode '%s'", c.Engine.Mode)
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	switch c.Ledger.Backend {
	case LedgerBackendFile, LedgerBackendRedis:
	default:
		return fmt.Errorf("unknown ledger backend '%s'", c.Ledger.Backend)
	}
	if c.Ledger.Backend == LedgerBackendRedis && c.Ledger.Redis.Addr == "" {
		return fmt.Errorf("ledger backend 'redis' requires ledger.redis.addr")
	}
	if _, err := positiveDuration("predictor.interval", c.Predictor.Interval); err != nil {
		return err
	}
	if c.Alerter.Enabled {
		if _, err := positiveDuration("alerter.check_interval", c.Alerter.CheckInterval); err != nil {
			return err
		}
	}
	return nil
}

// PollInterval returns the parsed real-time poll interval.
func (c *Config) PollInterval() (time.Duration, error) {
	return positiveDuration("engine.poll_interval", c.Engine.PollInterval)
}

// SinkByType returns the first sink definition of the given type, enabled or not.
func (c *Config) SinkByType(sinkType string) *SinkDef {
	for i := range c.Sinks {
		if c.Sinks[i].Type == sinkType {
			return &c.Sinks[i]
		}
	}
	return nil
}

func positiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", name)
	}
	return d, nil
}
