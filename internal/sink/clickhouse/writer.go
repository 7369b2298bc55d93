// Package clickhouse stores feature vectors in a ClickHouse table.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/factory"
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS nslkdd_features (
    Timestamp       DateTime64(6),
    ConnUID         String,
    SrcIP           Nullable(String),
    DstIP           Nullable(String),
    Duration        Float64,
    ProtocolType    LowCardinality(String),
    Service         LowCardinality(String),
    Flag            LowCardinality(String),
    SrcBytes        Int64,
    DstBytes        Int64,
    WrongFragment   UInt32,
    Hot             UInt32,
    LoggedIn        UInt8,
    NumCompromised  UInt32,
    Count           UInt32,
    SrvCount        UInt32,
    SerrorRate      Float64,
    SrvSerrorRate   Float64,
    RerrorRate      Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Service, Timestamp);
`

func init() {
	factory.RegisterSink("clickhouse", func(def config.SinkDef) (model.Writer, error) {
		return NewWriter(def.ClickHouse)
	})
}

// Writer implements the model.Writer interface for ClickHouse.
type Writer struct {
	conn driver.Conn
}

// NewWriter connects and ensures the table exists.
func NewWriter(cfg config.ClickHouseConfig) (*Writer, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	zap.S().Info("Successfully connected to ClickHouse and ensured table exists.")

	return &Writer{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Name returns "clickhouse".
func (w *Writer) Name() string { return "clickhouse" }

// Write inserts one row per vector.
func (w *Writer) Write(ctx context.Context, b *model.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO nslkdd_features")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for i, fv := range b.Vectors {
		if err := batch.Append(Row(fv, connectionAt(b, i))...); err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		metrics.SinkDocuments.WithLabelValues(w.Name(), "failure").Add(float64(b.Len()))
		return fmt.Errorf("failed to send batch: %w", err)
	}
	metrics.SinkDocuments.WithLabelValues(w.Name(), "success").Add(float64(b.Len()))
	zap.S().Infof("Wrote %d feature rows to ClickHouse", b.Len())
	return nil
}

// Close closes the connection.
func (w *Writer) Close() error {
	return w.conn.Close()
}

// Row returns the column values of one vector in table order.
func Row(fv model.FeatureVector, conn *model.Connection) []interface{} {
	ts := time.Unix(0, 0).UTC()
	var uid string
	var src, dst interface{}
	if conn != nil {
		ts = time.UnixMicro(int64(conn.TS * 1e6)).UTC()
		uid = conn.UID
		src = nullable(conn.OrigH)
		dst = nullable(conn.RespH)
	}
	return []interface{}{
		ts,
		uid,
		src,
		dst,
		fv.Duration,
		fv.ProtocolType,
		fv.Service,
		fv.Flag,
		fv.SrcBytes,
		fv.DstBytes,
		uint32(fv.WrongFragment),
		uint32(fv.Hot),
		uint8(fv.LoggedIn),
		uint32(fv.NumCompromised),
		uint32(fv.Count),
		uint32(fv.SrvCount),
		fv.SerrorRate,
		fv.SrvSerrorRate,
		fv.RerrorRate,
	}
}

func connectionAt(b *model.Batch, i int) *model.Connection {
	if i < len(b.Connections) {
		return b.Connections[i]
	}
	return nil
}

// nullable maps an absent value to NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
