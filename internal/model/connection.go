package model

// Connection is the unit of correlation: one conn.log record plus the
// protocol-specific records that share its UID. Identity fields are set once
// by the correlator; only Enrichment grows afterwards.
// Optional fields hold "" when the log had no value.
type Connection struct {
	UID   string
	TS    float64
	RawTS string

	OrigH string
	OrigP string
	RespH string
	RespP string
	Proto string

	Service     string
	Duration    string
	OrigBytes   string
	RespBytes   string
	ConnState   string
	MissedBytes string
	History     string
	OrigPkts    string
	OrigIPBytes string
	RespPkts    string
	RespIPBytes string

	// Enrichment maps a protocol log name (http, dns, weird, ...) to its
	// records in the order they were read.
	Enrichment map[string][]LogRecord
}

// Records returns the enrichment records of the given protocol log.
func (c *Connection) Records(protocol string) []LogRecord {
	if c.Enrichment == nil {
		return nil
	}
	return c.Enrichment[protocol]
}

// Batch is the unit handed to sinks: feature vectors in emission order and,
// aligned by index, the connection each vector was derived from.
type Batch struct {
	Vectors     []FeatureVector
	Connections []*Connection
}

// Len returns the number of vectors in the batch.
func (b *Batch) Len() int {
	return len(b.Vectors)
}
