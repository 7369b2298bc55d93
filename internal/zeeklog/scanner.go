// Package zeeklog reads Zeek TSV logs (plain or gzip-compressed) into
// field-keyed records, resuming from a line offset.
package zeeklog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	fieldsDirective = "#fields"
	fieldSeparator  = "\t"
	absentValue     = "-"
)

var (
	// ErrNoHeader is reported for data lines seen before any #fields line.
	ErrNoHeader = errors.New("data line before #fields header")
	// ErrMissingUID is reported for records without a uid value.
	ErrMissingUID = errors.New("record has no uid")
	// ErrTimestamp is reported for an empty or unparseable ts value.
	ErrTimestamp = errors.New("invalid timestamp")
)

// Options control where a scan starts and how the tail of the file is treated.
type Options struct {
	// StartLine is the number of lines already consumed. They are skipped,
	// except that #fields lines among them still declare the schema.
	StartLine int64
	// StopAtPartial leaves a trailing line without a newline unconsumed, for
	// files that are still being written.
	StopAtPartial bool
}

// Scanner yields the records of one log file lazily.
type Scanner struct {
	r       *bufio.Reader
	closer  io.Closer
	name    string
	opts    Options
	fields  []string
	line    int64
	skipped bool
	done    bool
	record  model.LogRecord
	dropped int
	err     error
}

// Open opens a log file; names ending in .gz are decompressed on the fly.
// Open failures wrap the underlying *fs.PathError.
func Open(path string, opts Options) (*Scanner, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var r io.Reader = file
	var closer io.Closer = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to open gzip stream '%s': %w", path, err)
		}
		r = gz
		closer = multiCloser{gz, file}
	}

	s := NewScanner(r, opts)
	s.closer = closer
	s.name = filepath.Base(path)
	return s, nil
}

// NewScanner reads records from r.
func NewScanner(r io.Reader, opts Options) *Scanner {
	if opts.StartLine < 0 {
		opts.StartLine = 0
	}
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024), opts: opts, name: "stream"}
}

// Next advances to the next valid record. Malformed lines are dropped with
// a diagnostic and never stop the scan.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	if !s.skipped {
		s.skip()
		if s.done {
			return false
		}
	}

	for {
		text, ok := s.readLine()
		if !ok {
			return false
		}
		s.line++

		rec, err := s.parse(text)
		if err != nil {
			s.drop(err)
			continue
		}
		if rec == nil {
			continue
		}
		s.record = *rec
		return true
	}
}

// Record returns the record produced by the last successful Next.
func (s *Scanner) Record() model.LogRecord {
	return s.record
}

// Err returns the first read error other than io.EOF.
func (s *Scanner) Err() error {
	return s.err
}

// Line returns the ending offset: the number of lines consumed so far,
// counting the skipped ones.
func (s *Scanner) Line() int64 {
	return s.line
}

// LinesRead returns the number of lines consumed by this scan.
func (s *Scanner) LinesRead() int64 {
	if s.line < s.opts.StartLine {
		return 0
	}
	return s.line - s.opts.StartLine
}

// Dropped returns the number of lines dropped with a diagnostic.
func (s *Scanner) Dropped() int {
	return s.dropped
}

// Fields returns the currently declared field names.
func (s *Scanner) Fields() []string {
	return s.fields
}

// Close releases the underlying file.
func (s *Scanner) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// skip consumes StartLine lines while keeping track of #fields declarations.
// A file shorter than StartLine keeps the recorded offset.
func (s *Scanner) skip() {
	s.skipped = true
	for s.line < s.opts.StartLine {
		text, ok := s.readLine()
		if !ok {
			s.line = s.opts.StartLine
			return
		}
		s.line++
		if strings.HasPrefix(text, fieldsDirective) {
			s.fields = parseFields(text)
		}
	}
}

// readLine returns the next line without its terminator.
func (s *Scanner) readLine() (string, bool) {
	text, err := s.r.ReadString('\n')
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.err = fmt.Errorf("failed to read %s: %w", s.name, err)
			return "", false
		}
		if text == "" || s.opts.StopAtPartial {
			return "", false
		}
		return strings.TrimRight(text, "\r"), true
	}
	return strings.TrimRight(text, "\r\n"), true
}

// parse turns one line into a record. Comments, blank lines and headers
// yield (nil, nil).
func (s *Scanner) parse(text string) (*model.LogRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if strings.HasPrefix(text, "#") {
		if strings.HasPrefix(text, fieldsDirective) {
			s.fields = parseFields(text)
		}
		return nil, nil
	}
	if len(s.fields) == 0 {
		return nil, ErrNoHeader
	}

	tokens := strings.Split(text, fieldSeparator)
	values := make(map[string]string, len(s.fields))
	for i, name := range s.fields {
		if i >= len(tokens) || tokens[i] == absentValue {
			continue
		}
		values[name] = tokens[i]
	}

	if values["uid"] == "" {
		return nil, ErrMissingUID
	}
	if _, err := ParseTimestamp(values["ts"]); err != nil {
		return nil, err
	}

	return &model.LogRecord{Fields: s.fields, Values: values, Line: s.line}, nil
}

func (s *Scanner) drop(err error) {
	s.dropped++
	reason := "parse"
	switch {
	case errors.Is(err, ErrMissingUID):
		reason = "missing_uid"
	case errors.Is(err, ErrTimestamp):
		reason = "timestamp"
	case errors.Is(err, ErrNoHeader):
		reason = "no_header"
	}
	metrics.RecordsDropped.WithLabelValues(reason).Inc()
	zap.S().Warnf("Skipping line %d of %s: %v", s.line, s.name, err)
}

func parseFields(text string) []string {
	rest := strings.TrimSpace(strings.TrimPrefix(text, fieldsDirective))
	if rest == "" {
		return nil
	}
	return strings.Split(rest, fieldSeparator)
}

// LogType derives the log type from a file name: "conn" for both
// "conn.log" and "conn.00:00:00-01:00:00.log.gz".
func LogType(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
