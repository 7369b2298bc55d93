package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Go2NetKDD/internal/model"
)

func TestWriter_Write(t *testing.T) {
	root, err := os.MkdirTemp("", "snapshot_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(root)

	w, err := NewWriter(root)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	w.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	batch := &model.Batch{
		Vectors: []model.FeatureVector{
			{ProtocolType: "tcp", Service: "http", Flag: "SF", SrcBytes: 100, DstBytes: 2000},
			{ProtocolType: "tcp", Service: "http", Flag: "S0"},
			{ProtocolType: "udp", Service: "domain", Flag: "SF", SrcBytes: 40, DstBytes: 80},
		},
		Connections: []*model.Connection{{TS: 1700000002}, {TS: 1700000001}, {TS: 1700000005}},
	}
	if err := w.Write(context.Background(), batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	dir := filepath.Join(root, "20240301-120000.000000000")
	vectors, err := ReadVectors(dir)
	if err != nil {
		t.Fatalf("ReadVectors failed: %v", err)
	}
	if len(vectors) != 3 || vectors[2] != batch.Vectors[2] {
		t.Errorf("Unexpected vectors: %+v", vectors)
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("Invalid summary: %v", err)
	}
	if s.TotalVectors != 3 || s.TotalSrcBytes != 140 || s.TotalDstBytes != 2080 {
		t.Errorf("Unexpected totals: %+v", s)
	}
	if s.FirstTS != 1700000001 || s.LastTS != 1700000005 {
		t.Errorf("Unexpected time range: %v..%v", s.FirstTS, s.LastTS)
	}
	if s.Protocols["tcp"] != 2 || s.Flags["S0"] != 1 {
		t.Errorf("Unexpected breakdown: %+v %+v", s.Protocols, s.Flags)
	}
	if len(s.TopServices) != 2 || s.TopServices[0].Service != "http" || s.TopServices[0].Count != 2 {
		t.Errorf("Unexpected top services: %+v", s.TopServices)
	}
}

func TestWriter_EmptyBatch(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write(context.Background(), &model.Batch{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("Expected no snapshot for an empty batch, got %d entries", len(entries))
	}
}
