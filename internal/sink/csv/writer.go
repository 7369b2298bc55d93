// Package csv writes feature vectors to an append-only CSV file.
package csv

import (
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/factory"
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"go.uber.org/zap"
)

func init() {
	factory.RegisterSink("csv", func(def config.SinkDef) (model.Writer, error) {
		return NewWriter(def.CSV.Path)
	})
}

// Writer appends rows to the output file. The header is written only when
// the file is created or empty; existing rows are never rewritten.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter validates that the output directory exists.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, errors.New("csv sink requires a path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &Writer{path: path}, nil
}

// Name returns "csv".
func (w *Writer) Name() string { return "csv" }

// Path returns the output file.
func (w *Writer) Path() string { return w.path }

// Write appends one row per vector.
func (w *Writer) Write(_ context.Context, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", w.path, err)
	}

	cw := stdcsv.NewWriter(file)
	if info.Size() == 0 {
		if err := cw.Write(model.FeatureNames()); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, fv := range batch.Vectors {
		if err := cw.Write(fv.Row()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		metrics.SinkDocuments.WithLabelValues(w.Name(), "failure").Add(float64(batch.Len()))
		return fmt.Errorf("failed to flush %s: %w", w.path, err)
	}

	metrics.SinkDocuments.WithLabelValues(w.Name(), "success").Add(float64(batch.Len()))
	zap.S().Infof("Appended %d rows to %s", batch.Len(), w.path)
	return nil
}

// Close is a no-op; every Write closes the file.
func (w *Writer) Close() error { return nil }

// ReadAll parses the rows of a file written by Writer.
func ReadAll(path string) ([]model.FeatureVector, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFrom(file, true)
}

// ReadFrom parses feature rows from r, optionally skipping a header row. It
// stops at the first malformed row.
func ReadFrom(r io.Reader, header bool) ([]model.FeatureVector, error) {
	return read(r, header, nil)
}

// ReadLenient is ReadFrom that hands malformed rows to skip and keeps going.
// Only read errors from r are returned.
func ReadLenient(r io.Reader, header bool, skip func(line int, err error)) ([]model.FeatureVector, error) {
	return read(r, header, skip)
}

func read(r io.Reader, header bool, skip func(line int, err error)) ([]model.FeatureVector, error) {
	cr := stdcsv.NewReader(r)
	cr.FieldsPerRecord = model.NumFeatures

	var out []model.FeatureVector
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		var parseErr *stdcsv.ParseError
		if err != nil && (skip == nil || !errors.As(err, &parseErr)) {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		if err != nil {
			skip(line, err)
			continue
		}
		if header && line == 1 {
			continue
		}
		fv, err := model.ParseFeatureRow(row)
		if err != nil {
			if skip == nil {
				return out, fmt.Errorf("line %d: %w", line, err)
			}
			skip(line, err)
			continue
		}
		out = append(out, fv)
	}
}
