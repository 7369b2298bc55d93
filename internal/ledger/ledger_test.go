package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLines(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("1700000000.000000\tCabcdef\t10.0.0.1\t10.0.0.2\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "positions.json")

	l := New(NewFileStore(path))
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load of a missing file should succeed: %v", err)
	}
	l.Advance("/spool/conn.log", 42)
	l.Advance("/spool/http.log", 7)
	if err := l.Persist(context.Background()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Expected the temporary file to be renamed away")
	}

	reloaded := New(NewFileStore(path))
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Get("/spool/conn.log") != 42 || reloaded.Get("/spool/http.log") != 7 {
		t.Errorf("Unexpected state after reload: %v", reloaded.Snapshot())
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	l := New(NewFileStore(path))
	l.Advance("/stale", 3)
	if err := l.Load(context.Background()); err == nil {
		t.Fatalf("Expected an error for a corrupt ledger")
	}
	if l.Len() != 0 {
		t.Errorf("Expected an empty ledger after a failed load, got %v", l.Snapshot())
	}
}

func TestLedger_Sync(t *testing.T) {
	l := New(NewFileStore(filepath.Join(t.TempDir(), "p.json")))
	l.Advance("/spool/old.log", 5)
	l.Advance("/spool/conn.log", 9)

	added, removed := l.Sync([]string{"/spool/conn.log", "/spool/dns.log", "/spool/http.log"})
	if strings.Join(added, ",") != "/spool/dns.log,/spool/http.log" {
		t.Errorf("Unexpected added files: %v", added)
	}
	if len(removed) != 1 || removed[0] != "/spool/old.log" {
		t.Errorf("Unexpected removed files: %v", removed)
	}
	if l.Get("/spool/conn.log") != 9 || l.Get("/spool/dns.log") != 0 || l.Len() != 3 {
		t.Errorf("Unexpected state after sync: %v", l.Snapshot())
	}
}

func TestLedger_ResetAll(t *testing.T) {
	l := New(NewFileStore(filepath.Join(t.TempDir(), "p.json")))
	l.Advance("a", 5)
	l.Advance("b", 0)

	resets := l.ResetAll()
	if len(resets) != 1 || resets[0].Path != "a" || resets[0].Offset != 5 {
		t.Errorf("Unexpected resets: %+v", resets)
	}
	if l.Get("a") != 0 {
		t.Errorf("Expected offset 0 after reset")
	}
}

func TestLedger_Verify(t *testing.T) {
	dir := t.TempDir()
	healthy := filepath.Join(dir, "conn.log")
	shrunk := filepath.Join(dir, "dns.log")
	writeLines(t, healthy, 20) // 44 bytes per line
	writeLines(t, shrunk, 1)

	l := New(NewFileStore(filepath.Join(dir, "p.json")))
	l.Advance(healthy, 20)
	l.Advance(shrunk, 1000)
	l.Advance(filepath.Join(dir, "gone.log"), 3)

	resets := l.Verify(DefaultVerifyOptions())
	reasons := map[string]string{}
	for _, r := range resets {
		reasons[filepath.Base(r.Path)] = r.Reason
	}
	if reasons["dns.log"] != ReasonBeyondSize {
		t.Errorf("Expected dns.log to be reset as %s, got %q", ReasonBeyondSize, reasons["dns.log"])
	}
	if reasons["gone.log"] != ReasonMissing {
		t.Errorf("Expected gone.log to be reset as %s, got %q", ReasonMissing, reasons["gone.log"])
	}
	if _, ok := reasons["conn.log"]; ok {
		t.Errorf("Healthy entry should not be reset")
	}
	if l.Get(healthy) != 20 || l.Get(shrunk) != 0 {
		t.Errorf("Unexpected state after verify: %v", l.Snapshot())
	}
}

func TestCheck_Overcount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conn.log")
	writeLines(t, path, 20)
	if reason, err := check(path, 20, DefaultVerifyOptions()); err != nil || reason != "" {
		t.Errorf("Expected no reset for a consistent offset, got %q (%v)", reason, err)
	}

	// 40 bytes over 20 lines: an offset of 62 stays within the size
	// tolerance but estimates 31 lines read.
	short := filepath.Join(dir, "weird.log")
	if err := os.WriteFile(short, []byte(strings.Repeat("x\n", 20)), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	if reason, err := check(short, 62, DefaultVerifyOptions()); err != nil || reason != ReasonOvercount {
		t.Errorf("Expected an overcount reset, got %q (%v)", reason, err)
	}

	tiny := filepath.Join(dir, "ntp.log")
	if err := os.WriteFile(tiny, []byte(strings.Repeat("x\n", 5)), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	if reason, _ := check(tiny, 100, DefaultVerifyOptions()); reason != "" {
		t.Errorf("Expected no reset below the line threshold, got %q", reason)
	}
}

func TestCountLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	cases := map[string]int64{"": 0, "a\n": 1, "a\nb": 2, "a\nb\n": 2}
	for body, want := range cases {
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write fixture: %v", err)
		}
		if got, err := countLines(path); err != nil || got != want {
			t.Errorf("countLines(%q) = %d, %v; want %d", body, got, err, want)
		}
	}
}
