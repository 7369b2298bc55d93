package predictor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"Go2NetKDD/internal/model"
	"Go2NetKDD/internal/sink/csv"
)

// flagClassifier predicts class 1 for every flag other than the first
// encoder class.
type flagClassifier struct {
	failPredict bool
}

func (c *flagClassifier) Columns() []string { return model.FeatureNames() }

func (c *flagClassifier) Encoders() map[string][]string {
	return map[string][]string{
		"protocol_type": {"icmp", "tcp", "udp"},
		"service":       {"other", "http", "domain"},
		"flag":          {"SF", "REJ", "S0"},
	}
}

func (c *flagClassifier) Predict(_ context.Context, rows [][]float64) ([]int, error) {
	if c.failPredict {
		return nil, errors.New("model offline")
	}
	out := make([]int, len(rows))
	for i, row := range rows {
		if row[3] != 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func (c *flagClassifier) PredictProba(_ context.Context, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if row[3] != 0 {
			out[i] = []float64{0.2, 0.8}
		} else {
			out[i] = []float64{0.9, 0.1}
		}
	}
	return out, nil
}

func writeVectors(t *testing.T, path string, vectors ...model.FeatureVector) {
	t.Helper()
	w, err := csv.NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write(context.Background(), &model.Batch{Vectors: vectors}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func newTestPredictor(t *testing.T, clf model.Classifier, queue int) (*Predictor, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nslkdd.csv")
	p, err := New(Options{Input: path, QueueSize: queue}, clf, NewHistory(50))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, path
}

func TestEncode(t *testing.T) {
	clf := &flagClassifier{}
	fv := model.FeatureVector{Duration: 1.5, ProtocolType: "udp", Service: "telnet", Flag: "S0", SrcBytes: 40, Count: 3, SerrorRate: 0.5}

	row, err := Encode(clf.Columns(), clf.Encoders(), fv)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(row) != model.NumFeatures {
		t.Fatalf("Expected %d columns, got %d", model.NumFeatures, len(row))
	}
	if row[0] != 1.5 || row[1] != 2 || row[3] != 2 || row[4] != 40 || row[10] != 3 || row[12] != 0.5 {
		t.Errorf("Unexpected encoding: %v", row)
	}
	if row[2] != 0 {
		t.Errorf("Unknown service should map to the first class, got %v", row[2])
	}

	if _, err := Encode([]string{"bogus"}, nil, fv); err == nil {
		t.Errorf("Expected an error for an unknown column")
	}
	if _, err := Encode([]string{"flag"}, nil, fv); err == nil {
		t.Errorf("Expected an error for a categorical column without encoder")
	}
}

func TestPredictor_Tick(t *testing.T) {
	p, path := newTestPredictor(t, &flagClassifier{}, 10)

	if preds, err := p.Tick(context.Background()); err != nil || len(preds) != 0 {
		t.Fatalf("Expected nothing before the file exists, got %v (err %v)", preds, err)
	}

	writeVectors(t, path,
		model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "SF"},
		model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "REJ"},
	)
	preds, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("Expected 2 predictions, got %d", len(preds))
	}
	if preds[0].Label != LabelNormal || preds[0].Confidence != 0.9 {
		t.Errorf("Unexpected first prediction: %+v", preds[0])
	}
	if preds[1].Label != LabelAttack || preds[1].Confidence != 0.8 {
		t.Errorf("Unexpected second prediction: %+v", preds[1])
	}

	writeVectors(t, path, model.FeatureVector{ProtocolType: "udp", Service: "domain", Flag: "S0"})
	preds, err = p.Tick(context.Background())
	if err != nil || len(preds) != 1 || preds[0].Features.Service != "domain" {
		t.Fatalf("Expected only the appended row, got %+v (err %v)", preds, err)
	}

	if p.history.Len() != 3 {
		t.Errorf("Expected 3 predictions in history, got %d", p.history.Len())
	}
	if len(p.Notifications()) != 3 {
		t.Errorf("Expected 3 queued notifications, got %d", len(p.Notifications()))
	}
}

func TestPredictor_NormalLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nslkdd.csv")
	p, err := New(Options{Input: path, NormalLabel: 1}, &flagClassifier{}, NewHistory(5))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	writeVectors(t, path, model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "REJ"})

	preds, err := p.Tick(context.Background())
	if err != nil || len(preds) != 1 {
		t.Fatalf("Tick failed: %v", err)
	}
	if preds[0].Label != LabelNormal {
		t.Errorf("Expected class 1 to be NORMAL, got %s", preds[0].Label)
	}
}

func TestPredictor_QueueFull(t *testing.T) {
	p, path := newTestPredictor(t, &flagClassifier{}, 1)
	writeVectors(t, path,
		model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "SF"},
		model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "S0"},
		model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "REJ"},
	)
	preds, err := p.Tick(context.Background())
	if err != nil || len(preds) != 3 {
		t.Fatalf("Tick failed: %v (%d predictions)", err, len(preds))
	}
	if len(p.Notifications()) != 1 {
		t.Errorf("Expected the queue to hold 1 notification, got %d", len(p.Notifications()))
	}
	if p.history.Len() != 3 {
		t.Errorf("Dropped notifications must still be recorded, got %d", p.history.Len())
	}
}

func TestPredictor_ClassifierError(t *testing.T) {
	p, path := newTestPredictor(t, &flagClassifier{failPredict: true}, 10)
	writeVectors(t, path, model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "SF"})
	if _, err := p.Tick(context.Background()); err == nil {
		t.Fatalf("Expected the classifier error to be returned")
	}
	if p.history.Len() != 0 {
		t.Errorf("Expected no predictions recorded")
	}
}

func TestNew_RequiresClassifier(t *testing.T) {
	if _, err := New(Options{}, nil, NewHistory(1)); err == nil {
		t.Fatalf("Expected an error without a classifier")
	}
}

func TestTailer_PartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nslkdd.csv")
	writeVectors(t, path, model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "SF"})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	f.WriteString("0,udp,domain,SF,0,0")
	f.Close()

	tl := NewTailer(path)
	rows, err := tl.Read()
	if err != nil || len(rows) != 1 {
		t.Fatalf("Expected 1 complete row, got %d (err %v)", len(rows), err)
	}

	f, _ = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	f.WriteString(",0,0,0,0,1,1,0.0,0.0,0.0\n")
	f.Close()

	rows, err = tl.Read()
	if err != nil || len(rows) != 1 || rows[0].Service != "domain" {
		t.Fatalf("Expected the completed row, got %+v (err %v)", rows, err)
	}
	if rows, _ := tl.Read(); len(rows) != 0 {
		t.Errorf("Expected nothing new, got %d rows", len(rows))
	}
}

func TestTailer_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nslkdd.csv")
	writeVectors(t, path,
		model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "SF"},
		model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "SF"},
	)
	tl := NewTailer(path)
	if rows, _ := tl.Read(); len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}

	os.Remove(path)
	writeVectors(t, path, model.FeatureVector{ProtocolType: "icmp", Service: "other", Flag: "SF"})
	rows, err := tl.Read()
	if err != nil || len(rows) != 1 || rows[0].ProtocolType != "icmp" {
		t.Fatalf("Expected the recreated file to be read from the start, got %+v (err %v)", rows, err)
	}
}

func TestTailer_MalformedRowInChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nslkdd.csv")
	writeVectors(t, path, model.FeatureVector{ProtocolType: "tcp", Service: "http", Flag: "SF"})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	f.WriteString("abc,tcp,http,SF,0,0,0,0,0,0,1,1,0.0,0.0,0.0\n")
	f.WriteString("1,2,3\n")
	f.WriteString("0,udp,domain,SF,0,0,0,0,0,0,1,1,0.0,0.0,0.0\n")
	f.WriteString("0,icmp,other,SF,0,0,0,0,0,0,1,1,0.0,0.0,0.0\n")
	f.Close()

	tl := NewTailer(path)
	rows, err := tl.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 valid rows around the malformed ones, got %d", len(rows))
	}
	if rows[1].Service != "domain" || rows[2].ProtocolType != "icmp" {
		t.Errorf("Unexpected rows: %+v", rows)
	}
	if tl.Skipped() != 2 {
		t.Errorf("Expected 2 skipped rows, got %d", tl.Skipped())
	}
	if rows, err := tl.Read(); err != nil || len(rows) != 0 {
		t.Errorf("Expected nothing left to read, got %d rows (err %v)", len(rows), err)
	}
}
