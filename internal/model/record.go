package model

// LogRecord is one data line of a Zeek log, keyed by the field names declared
// by the most recent #fields header. Absent values ("-" or missing trailing
// tokens) are not stored in Values.
type LogRecord struct {
	Fields []string
	Values map[string]string
	Line   int64 // 1-based line number within the file
}

// Get returns the value of a field and whether it is present.
func (r LogRecord) Get(name string) (string, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Value returns the value of a field, or "" when it is absent.
func (r LogRecord) Value(name string) string {
	return r.Values[name]
}
