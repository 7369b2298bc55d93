package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"Go2NetKDD/internal/model"
)

type staticResolver map[string]string

func (r staticResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if name, ok := r[addr]; ok {
		return []string{name + "."}, nil
	}
	return nil, errors.New("no such host")
}

func testConnection() *model.Connection {
	return &model.Connection{
		UID:       "CmES5u32sYpV7JYN",
		TS:        1700000000.25,
		RawTS:     "1700000000.250000",
		OrigH:     "192.168.1.10",
		OrigP:     "51544",
		RespH:     "192.168.1.1",
		RespP:     "80",
		Proto:     "tcp",
		Service:   "http",
		OrigBytes: "312",
		RespBytes: "1024",
		OrigPkts:  "5",
		ConnState: "SF",
		Enrichment: map[string][]model.LogRecord{
			"notice": {
				{Values: map[string]string{"note": "HTTP::SQL_Injection_Attacker"}},
				{Values: map[string]string{}},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	b := &Builder{Resolver: staticResolver{"192.168.1.1": "router.lan"}}
	fv := model.FeatureVector{Service: "http", Flag: "SF", Count: 3}
	doc := b.Build(context.Background(), fv, testConnection())

	checks := map[string]interface{}{
		"@timestamp":      "2023-11-14T22:13:20.250000Z",
		"src_ip":          "192.168.1.10",
		"src_port":        int64(51544),
		"dst_port":        int64(80),
		"dst_port_name":   "http",
		"bytes_in":        int64(312),
		"bytes_out":       int64(1024),
		"packets_in":      int64(5),
		"service_name":    "http",
		"service_mapped":  "http",
		"conn_uid":        "CmES5u32sYpV7JYN",
		"conn_state_desc": "Normal establishment and termination",
		"source":          "zeek",
		"event_type":      "network_connection",
		"dst_hostname":    "router.lan",
		"count":           3,
	}
	for key, want := range checks {
		if got := doc[key]; got != want {
			t.Errorf("%s: got %v (%T), want %v (%T)", key, got, got, want, want)
		}
	}
	if _, ok := doc["packets_out"]; ok {
		t.Errorf("Absent counters should be omitted")
	}
	if _, ok := doc["src_hostname"]; ok {
		t.Errorf("Unresolvable addresses should be omitted")
	}
	notices, _ := doc["security_notices"].([]string)
	if len(notices) != 1 || notices[0] != "HTTP::SQL_Injection_Attacker" {
		t.Errorf("Unexpected notices: %v", doc["security_notices"])
	}
}

func TestBuildBatch_PairsByIndex(t *testing.T) {
	first := testConnection()
	second := testConnection()
	second.UID = "C2"
	second.ConnState = "XX"

	batch := &model.Batch{
		Vectors:     []model.FeatureVector{{Count: 1}, {Count: 2}, {Count: 3}},
		Connections: []*model.Connection{first, second},
	}
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := (&Builder{Now: func() time.Time { return fixed }}).BuildBatch(context.Background(), batch)

	if len(docs) != 3 {
		t.Fatalf("Expected 3 documents, got %d", len(docs))
	}
	if docs[1]["conn_uid"] != "C2" || docs[1]["conn_state_desc"] != "Unknown state" {
		t.Errorf("Second document paired with the wrong connection: %v", docs[1])
	}
	if docs[2]["@timestamp"] != "2024-01-01T00:00:00.000000Z" {
		t.Errorf("Expected the current time without a connection, got %v", docs[2]["@timestamp"])
	}
}

func TestPortName(t *testing.T) {
	if got := PortName("udp", "53"); got != "domain" {
		t.Errorf("Expected domain for udp/53, got '%s'", got)
	}
	if got := PortName("tcp", "49999"); got != "" {
		t.Errorf("Expected no name for an ephemeral port, got '%s'", got)
	}
	if got := PortName("icmp", "3"); got != "" {
		t.Errorf("Expected no name for icmp, got '%s'", got)
	}
}
