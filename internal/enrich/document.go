// Package enrich turns a feature vector and its connection into the document
// shipped to the analytics sinks.
package enrich

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"Go2NetKDD/internal/features"
	"Go2NetKDD/internal/model"

	"github.com/google/gopacket/layers"
)

// Document is one enriched record, serializable as JSON.
type Document map[string]interface{}

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Resolver looks up host names for an address; *net.Resolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Builder creates documents. The zero value builds documents without
// reverse DNS.
type Builder struct {
	Resolver Resolver
	// Now is used for connections without a timestamp.
	Now func() time.Time
}

// Build returns the enriched copy of fv. conn may be nil, in which case only
// the feature fields and the constant metadata are set.
func (b *Builder) Build(ctx context.Context, fv model.FeatureVector, conn *model.Connection) Document {
	doc := Document(fv.Map())
	doc["source"] = "zeek"
	doc["event_type"] = "network_connection"

	if conn == nil || conn.RawTS == "" {
		doc["@timestamp"] = b.now().UTC().Format(timestampLayout)
	} else {
		doc["@timestamp"] = FormatTimestamp(conn.TS)
	}
	if conn == nil {
		return doc
	}

	setString(doc, "src_ip", conn.OrigH)
	setNumber(doc, "src_port", conn.OrigP)
	setString(doc, "dst_ip", conn.RespH)
	setNumber(doc, "dst_port", conn.RespP)
	setString(doc, "dst_port_name", PortName(conn.Proto, conn.RespP))

	setNumber(doc, "bytes_in", conn.OrigBytes)
	setNumber(doc, "bytes_out", conn.RespBytes)
	setNumber(doc, "packets_in", conn.OrigPkts)
	setNumber(doc, "packets_out", conn.RespPkts)

	if conn.Service != "" {
		doc["service_name"] = conn.Service
		doc["service_mapped"] = features.MapService(conn.Service)
	}
	doc["conn_uid"] = conn.UID
	doc["conn_state_desc"] = features.DescribeState(conn.ConnState)

	var notices []string
	for _, rec := range conn.Records("notice") {
		if note := rec.Value("note"); note != "" {
			notices = append(notices, note)
		}
	}
	if len(notices) > 0 {
		doc["security_notices"] = notices
	}

	if b.Resolver != nil {
		b.resolve(ctx, doc, "src_hostname", conn.OrigH)
		b.resolve(ctx, doc, "dst_hostname", conn.RespH)
	}
	return doc
}

// BuildBatch enriches every vector of a batch with its paired connection.
func (b *Builder) BuildBatch(ctx context.Context, batch *model.Batch) []Document {
	docs := make([]Document, 0, batch.Len())
	for i, fv := range batch.Vectors {
		var conn *model.Connection
		if i < len(batch.Connections) {
			conn = batch.Connections[i]
		}
		docs = append(docs, b.Build(ctx, fv, conn))
	}
	return docs
}

func (b *Builder) resolve(ctx context.Context, doc Document, key, addr string) {
	if addr == "" {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	names, err := b.Resolver.LookupAddr(lookupCtx, addr)
	if err != nil || len(names) == 0 {
		return
	}
	doc[key] = strings.TrimSuffix(names[0], ".")
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// FormatTimestamp renders an epoch timestamp as ISO-8601 UTC with
// microsecond precision.
func FormatTimestamp(ts float64) string {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3).UTC().Format(timestampLayout)
}

// PortName returns the well-known name of a tcp or udp port, or "".
func PortName(proto, port string) string {
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return ""
	}
	var s string
	switch strings.ToLower(proto) {
	case "tcp":
		s = layers.TCPPort(n).String()
	case "udp":
		s = layers.UDPPort(n).String()
	default:
		return ""
	}
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return ""
	}
	return s[open+1 : len(s)-1]
}

func setString(doc Document, key, value string) {
	if value != "" {
		doc[key] = value
	}
}

func setNumber(doc Document, key, value string) {
	if value == "" {
		return
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		doc[key] = n
		return
	}
	doc[key] = value
}
