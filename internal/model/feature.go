package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FeatureVector is one NSL-KDD style record derived from a Connection.
type FeatureVector struct {
	Duration       float64
	ProtocolType   string
	Service        string
	Flag           string
	SrcBytes       int64
	DstBytes       int64
	WrongFragment  int
	Hot            int
	LoggedIn       int
	NumCompromised int
	Count          int
	SrvCount       int
	SerrorRate     float64
	SrvSerrorRate  float64
	RerrorRate     float64
}

var featureNames = [...]string{
	"duration", "protocol_type", "service", "flag", "src_bytes", "dst_bytes",
	"wrong_fragment", "hot", "logged_in", "num_compromised", "count",
	"srv_count", "serror_rate", "srv_serror_rate", "rerror_rate",
}

// NumFeatures is the width of the fixed feature schema.
const NumFeatures = len(featureNames)

// FeatureNames returns the fixed, ordered feature schema.
func FeatureNames() []string {
	names := featureNames
	return names[:]
}

// Row renders the vector in schema order.
func (f FeatureVector) Row() []string {
	return []string{
		formatFloat(f.Duration, false),
		f.ProtocolType,
		f.Service,
		f.Flag,
		strconv.FormatInt(f.SrcBytes, 10),
		strconv.FormatInt(f.DstBytes, 10),
		strconv.Itoa(f.WrongFragment),
		strconv.Itoa(f.Hot),
		strconv.Itoa(f.LoggedIn),
		strconv.Itoa(f.NumCompromised),
		strconv.Itoa(f.Count),
		strconv.Itoa(f.SrvCount),
		formatFloat(f.SerrorRate, true),
		formatFloat(f.SrvSerrorRate, true),
		formatFloat(f.RerrorRate, true),
	}
}

// Map returns the vector keyed by feature name, for document sinks.
func (f FeatureVector) Map() map[string]interface{} {
	return map[string]interface{}{
		"duration":        f.Duration,
		"protocol_type":   f.ProtocolType,
		"service":         f.Service,
		"flag":            f.Flag,
		"src_bytes":       f.SrcBytes,
		"dst_bytes":       f.DstBytes,
		"wrong_fragment":  f.WrongFragment,
		"hot":             f.Hot,
		"logged_in":       f.LoggedIn,
		"num_compromised": f.NumCompromised,
		"count":           f.Count,
		"srv_count":       f.SrvCount,
		"serror_rate":     f.SerrorRate,
		"srv_serror_rate": f.SrvSerrorRate,
		"rerror_rate":     f.RerrorRate,
	}
}

// ParseFeatureRow is the inverse of Row.
func ParseFeatureRow(row []string) (FeatureVector, error) {
	var f FeatureVector
	if len(row) != NumFeatures {
		return f, fmt.Errorf("expected %d columns, got %d", NumFeatures, len(row))
	}

	var err error
	floatAt := func(i int) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			err = fmt.Errorf("column %s: %w", featureNames[i], err)
		}
		return v
	}
	intAt := func(i int) int64 {
		if err != nil {
			return 0
		}
		var v int64
		v, err = strconv.ParseInt(strings.TrimSpace(row[i]), 10, 64)
		if err != nil {
			err = fmt.Errorf("column %s: %w", featureNames[i], err)
		}
		return v
	}

	f.Duration = floatAt(0)
	f.ProtocolType = row[1]
	f.Service = row[2]
	f.Flag = row[3]
	f.SrcBytes = intAt(4)
	f.DstBytes = intAt(5)
	f.WrongFragment = int(intAt(6))
	f.Hot = int(intAt(7))
	f.LoggedIn = int(intAt(8))
	f.NumCompromised = int(intAt(9))
	f.Count = int(intAt(10))
	f.SrvCount = int(intAt(11))
	f.SerrorRate = floatAt(12)
	f.SrvSerrorRate = floatAt(13)
	f.RerrorRate = floatAt(14)
	return f, err
}

// formatFloat uses the shortest representation; rates always keep a decimal
// point so that 0 is written as 0.0.
func formatFloat(v float64, keepPoint bool) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if keepPoint && !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
