package natspub

import (
	"testing"

	"Go2NetKDD/internal/enrich"
)

func TestEncodeDecode(t *testing.T) {
	doc := enrich.Document{
		"conn_uid":         "C1",
		"count":            3,
		"src_port":         int64(51544),
		"serror_rate":      0.5,
		"security_notices": []string{"Scan::Port_Scan"},
	}

	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got["conn_uid"] != "C1" || got["count"] != 3.0 || got["src_port"] != 51544.0 || got["serror_rate"] != 0.5 {
		t.Errorf("Unexpected decoded document: %v", got)
	}
	notices, ok := got["security_notices"].([]interface{})
	if !ok || len(notices) != 1 || notices[0] != "Scan::Port_Scan" {
		t.Errorf("Unexpected notices: %v", got["security_notices"])
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatalf("Expected an error for garbage input")
	}
}
