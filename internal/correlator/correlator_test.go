package correlator

import (
	"testing"

	"Go2NetKDD/internal/model"
)

func record(values map[string]string) model.LogRecord {
	return model.LogRecord{Values: values}
}

func TestCorrelator_FirstSeenWins(t *testing.T) {
	c := New()
	added := c.Ingest([]model.LogRecord{
		record(map[string]string{"ts": "100.0", "uid": "C1", "id.orig_h": "10.0.0.1", "conn_state": "SF"}),
		record(map[string]string{"ts": "101.0", "uid": "C1", "id.orig_h": "10.9.9.9", "conn_state": "REJ"}),
		record(map[string]string{"ts": "bad", "uid": "C2"}),
		record(map[string]string{"ts": "99.0"}),
	})
	if added != 1 || c.Len() != 1 {
		t.Fatalf("Expected 1 connection, got %d added / %d total", added, c.Len())
	}
	conn, _ := c.Get("C1")
	if conn.OrigH != "10.0.0.1" || conn.ConnState != "SF" || conn.TS != 100.0 {
		t.Errorf("Primary fields were overwritten: %+v", conn)
	}
}

func TestCorrelator_Enrich(t *testing.T) {
	c := New()
	c.Ingest([]model.LogRecord{
		record(map[string]string{"ts": "100.0", "uid": "C1"}),
		record(map[string]string{"ts": "100.0", "uid": "C2", "service": "dns"}),
	})

	uri := record(map[string]string{"uid": "C1", "uri": "/index.php?cmd=ls"})
	if n := c.Enrich(HTTP, []model.LogRecord{uri, uri, record(map[string]string{"uid": "C9"})}); n != 2 {
		t.Errorf("Expected 2 matched records, got %d", n)
	}
	c.Enrich(Weird, []model.LogRecord{record(map[string]string{"uid": "C2", "name": "fragment_overlap"})})
	c.Enrich(SSH, []model.LogRecord{record(map[string]string{"uid": "C2"})})

	c1, _ := c.Get("C1")
	if len(c1.Records("http")) != 2 {
		t.Errorf("Expected enrichment to append duplicates, got %d", len(c1.Records("http")))
	}
	if c1.Service != "http" {
		t.Errorf("Expected service to be set from http, got '%s'", c1.Service)
	}
	c2, _ := c.Get("C2")
	if c2.Service != "dns" {
		t.Errorf("Expected existing service to be kept, got '%s'", c2.Service)
	}

	c.Ingest([]model.LogRecord{record(map[string]string{"ts": "101.0", "uid": "C3"})})
	c.Enrich(Weird, []model.LogRecord{record(map[string]string{"uid": "C3"})})
	c3, _ := c.Get("C3")
	if c3.Service != "" {
		t.Errorf("weird records must not set the service, got '%s'", c3.Service)
	}
}

func TestCorrelator_Order(t *testing.T) {
	c := New()
	c.Ingest([]model.LogRecord{
		record(map[string]string{"ts": "103.0", "uid": "Ca"}),
		record(map[string]string{"ts": "100.5", "uid": "Cz"}),
		record(map[string]string{"ts": "100.5", "uid": "Cb"}),
		record(map[string]string{"ts": "100.0", "uid": "Cy"}),
	})
	var got []string
	for _, conn := range c.Connections() {
		got = append(got, conn.UID)
	}
	want := []string{"Cy", "Cb", "Cz", "Ca"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}

	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Expected an empty map after reset")
	}
}

func TestParseProtocol(t *testing.T) {
	for _, p := range Protocols() {
		parsed, ok := ParseProtocol(p.String())
		if !ok || parsed != p {
			t.Errorf("ParseProtocol(%s) = %v, %v", p, parsed, ok)
		}
	}
	if _, ok := ParseProtocol("files"); ok {
		t.Errorf("Expected files to be unrecognized")
	}
	if !SSL.SetsService() || Notice.SetsService() {
		t.Errorf("Unexpected service rules")
	}
}
