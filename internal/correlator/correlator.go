// Package correlator joins conn.log records with the protocol log records
// that share their UID.
package correlator

import (
	"sort"

	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"
	"Go2NetKDD/internal/zeeklog"
)

// Correlator owns the active connection map of one processing pass.
// It is not safe for concurrent use.
type Correlator struct {
	conns map[string]*model.Connection
}

// New creates an empty correlator.
func New() *Correlator {
	return &Correlator{conns: make(map[string]*model.Connection)}
}

// Add inserts the connection described by a conn.log record. It returns
// false when the UID is already known (first seen wins) or the record has no
// usable UID or timestamp.
func (c *Correlator) Add(rec model.LogRecord) bool {
	uid := rec.Value("uid")
	if uid == "" {
		return false
	}
	if _, ok := c.conns[uid]; ok {
		return false
	}
	ts, err := zeeklog.ParseTimestamp(rec.Value("ts"))
	if err != nil {
		return false
	}

	c.conns[uid] = &model.Connection{
		UID:         uid,
		TS:          ts,
		RawTS:       rec.Value("ts"),
		OrigH:       rec.Value("id.orig_h"),
		OrigP:       rec.Value("id.orig_p"),
		RespH:       rec.Value("id.resp_h"),
		RespP:       rec.Value("id.resp_p"),
		Proto:       rec.Value("proto"),
		Service:     rec.Value("service"),
		Duration:    rec.Value("duration"),
		OrigBytes:   rec.Value("orig_bytes"),
		RespBytes:   rec.Value("resp_bytes"),
		ConnState:   rec.Value("conn_state"),
		MissedBytes: rec.Value("missed_bytes"),
		History:     rec.Value("history"),
		OrigPkts:    rec.Value("orig_pkts"),
		OrigIPBytes: rec.Value("orig_ip_bytes"),
		RespPkts:    rec.Value("resp_pkts"),
		RespIPBytes: rec.Value("resp_ip_bytes"),
	}
	metrics.Connections.Inc()
	return true
}

// Ingest adds every record and returns how many new connections were created.
func (c *Correlator) Ingest(records []model.LogRecord) int {
	added := 0
	for _, rec := range records {
		if c.Add(rec) {
			added++
		}
	}
	return added
}

// Attach appends a protocol record to the connection with the same UID.
// Records are never deduplicated. It returns false for unknown UIDs.
func (c *Correlator) Attach(p Protocol, rec model.LogRecord) bool {
	conn, ok := c.conns[rec.Value("uid")]
	if !ok {
		return false
	}
	if conn.Enrichment == nil {
		conn.Enrichment = make(map[string][]model.LogRecord)
	}
	conn.Enrichment[p.String()] = append(conn.Enrichment[p.String()], rec)
	if conn.Service == "" && p.SetsService() {
		conn.Service = p.String()
	}
	return true
}

// Enrich attaches every record and returns how many matched a connection.
func (c *Correlator) Enrich(p Protocol, records []model.LogRecord) int {
	matched := 0
	for _, rec := range records {
		if c.Attach(p, rec) {
			matched++
		}
	}
	return matched
}

// Get returns the connection with the given UID.
func (c *Correlator) Get(uid string) (*model.Connection, bool) {
	conn, ok := c.conns[uid]
	return conn, ok
}

// Connections returns the connections in ascending timestamp order, ties
// broken by UID.
func (c *Correlator) Connections() []*model.Connection {
	out := make([]*model.Connection, 0, len(c.conns))
	for _, conn := range c.conns {
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TS != out[j].TS {
			return out[i].TS < out[j].TS
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// Len returns the number of active connections.
func (c *Correlator) Len() int {
	return len(c.conns)
}

// Reset discards every connection.
func (c *Correlator) Reset() {
	c.conns = make(map[string]*model.Connection)
}
