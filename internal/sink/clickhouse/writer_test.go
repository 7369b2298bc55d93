package clickhouse

import (
	"testing"
	"time"

	"Go2NetKDD/internal/model"
)

func TestRow(t *testing.T) {
	fv := model.FeatureVector{Service: "http", Flag: "SF", LoggedIn: 1, Count: 2, SerrorRate: 0.5}
	conn := &model.Connection{UID: "C1", TS: 1700000000.5, OrigH: "10.0.0.1"}

	row := Row(fv, conn)
	if len(row) != 19 {
		t.Fatalf("Expected 19 columns, got %d", len(row))
	}
	if ts := row[0].(time.Time); !ts.Equal(time.Unix(1700000000, 500000000)) {
		t.Errorf("Unexpected timestamp: %v", ts)
	}
	if row[1] != "C1" || row[2] != "10.0.0.1" || row[3] != nil {
		t.Errorf("Unexpected identity columns: %v", row[:4])
	}
	if row[12] != uint8(1) || row[14] != uint32(2) || row[16] != 0.5 {
		t.Errorf("Unexpected feature columns: %v", row[4:])
	}

	if row := Row(fv, nil); row[1] != "" || row[2] != nil {
		t.Errorf("Expected empty identity columns without a connection: %v", row[:4])
	}
}
