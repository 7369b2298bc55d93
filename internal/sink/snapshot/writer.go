// Package snapshot dumps every emitted batch to a timestamped directory: the
// vectors as gob and a JSON summary next to them.
package snapshot

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/factory"
	"Go2NetKDD/internal/model"
)

const (
	dataFile    = "features.dat"
	summaryFile = "summary.json"
	dirLayout   = "20060102-150405.000000000"
)

func init() {
	factory.RegisterSink("snapshot", func(def config.SinkDef) (model.Writer, error) {
		return NewWriter(def.Snapshot.RootPath)
	})
}

// Summary holds the metadata written next to a snapshot.
type Summary struct {
	TotalVectors  int            `json:"total_vectors"`
	TotalSrcBytes int64          `json:"total_src_bytes"`
	TotalDstBytes int64          `json:"total_dst_bytes"`
	FirstTS       float64        `json:"first_ts,omitempty"`
	LastTS        float64        `json:"last_ts,omitempty"`
	Protocols     map[string]int `json:"protocols"`
	Flags         map[string]int `json:"flags"`
	TopServices   []ServiceCount `json:"top_services"`
	Timestamp     string         `json:"timestamp"`
}

// ServiceCount is one entry of Summary.TopServices.
type ServiceCount struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

// Writer handles writing snapshot data to disk.
type Writer struct {
	rootPath string
	now      func() time.Time
}

// NewWriter creates a new snapshot writer under rootPath.
func NewWriter(rootPath string) (*Writer, error) {
	if rootPath == "" {
		return nil, errors.New("snapshot sink requires a root_path")
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot root: %w", err)
	}
	return &Writer{rootPath: rootPath, now: time.Now}, nil
}

// Name returns "snapshot".
func (w *Writer) Name() string { return "snapshot" }

// Write creates <root>/<timestamp>/ holding the gob encoded vectors and the
// summary. Empty batches write nothing.
func (w *Writer) Write(_ context.Context, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	now := w.now().UTC()
	dir := filepath.Join(w.rootPath, now.Format(dirLayout))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, dataFile))
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(batch.Vectors); err != nil {
		return fmt.Errorf("failed to encode vectors to gob: %w", err)
	}

	summary := Summarize(batch)
	summary.Timestamp = now.Format(time.RFC3339)
	out, err := os.Create(filepath.Join(dir, summaryFile))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer out.Close()

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

// Close is a no-op.
func (w *Writer) Close() error { return nil }

// Summarize counts the batch by protocol, flag and service.
func Summarize(batch *model.Batch) Summary {
	s := Summary{
		TotalVectors: batch.Len(),
		Protocols:    make(map[string]int),
		Flags:        make(map[string]int),
	}
	services := make(map[string]int)
	for i, fv := range batch.Vectors {
		s.TotalSrcBytes += fv.SrcBytes
		s.TotalDstBytes += fv.DstBytes
		s.Protocols[fv.ProtocolType]++
		s.Flags[fv.Flag]++
		services[fv.Service]++
		if i < len(batch.Connections) && batch.Connections[i] != nil {
			ts := batch.Connections[i].TS
			if s.FirstTS == 0 || ts < s.FirstTS {
				s.FirstTS = ts
			}
			s.LastTS = max(s.LastTS, ts)
		}
	}

	for name, n := range services {
		s.TopServices = append(s.TopServices, ServiceCount{Service: name, Count: n})
	}
	sort.Slice(s.TopServices, func(i, j int) bool {
		if s.TopServices[i].Count != s.TopServices[j].Count {
			return s.TopServices[i].Count > s.TopServices[j].Count
		}
		return s.TopServices[i].Service < s.TopServices[j].Service
	})
	if len(s.TopServices) > 10 {
		s.TopServices = s.TopServices[:10]
	}
	return s
}

// ReadVectors decodes the vectors of one snapshot directory.
func ReadVectors(dir string) ([]model.FeatureVector, error) {
	file, err := os.Open(filepath.Join(dir, dataFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var vectors []model.FeatureVector
	if err := gob.NewDecoder(file).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return vectors, nil
}
