package predictor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"
	"Go2NetKDD/internal/sink/csv"

	"go.uber.org/zap"
)

// Tailer follows the engine's CSV output by byte offset. Only complete lines
// are consumed; a trailing partial row is picked up on a later call.
type Tailer struct {
	path    string
	offset  int64
	skipped int
}

// NewTailer starts at the beginning of path, so the header is skipped on the
// first read.
func NewTailer(path string) *Tailer {
	return &Tailer{path: path}
}

// Offset returns the byte position of the next unread row.
func (t *Tailer) Offset() int64 { return t.offset }

// Skipped returns the number of malformed rows dropped so far.
func (t *Tailer) Skipped() int { return t.skipped }

// Read returns the vectors appended since the previous call. A missing file
// yields no rows. If the file shrank it is read again from the start.
// Malformed rows are logged and skipped; the rows around them are kept.
func (t *Tailer) Read() ([]model.FeatureVector, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", t.path, err)
	}
	if info.Size() < t.offset {
		t.offset = 0
	}
	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek %s: %w", t.path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}
	complete := data[:end+1]

	rows, err := csv.ReadLenient(bytes.NewReader(complete), t.offset == 0, func(line int, err error) {
		t.skipped++
		metrics.RecordsDropped.WithLabelValues("csv_row").Inc()
		zap.S().Warnf("Skipping malformed row in %s: line %d: %v", t.path, line, err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", t.path, err)
	}
	t.offset += int64(len(complete))
	return rows, nil
}
