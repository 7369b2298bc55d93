package zeeklog

import (
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"
)

// Summary reports one pass over a file.
type Summary struct {
	Start     int64 // offset the pass started from
	End       int64 // offset after the pass
	LinesRead int64
	Records   int
	Dropped   int
}

// Each opens path and calls fn for every valid record.
func Each(path string, opts Options, fn func(model.LogRecord)) (Summary, error) {
	sum := Summary{Start: opts.StartLine, End: opts.StartLine}

	s, err := Open(path, opts)
	if err != nil {
		return sum, err
	}
	defer s.Close()

	for s.Next() {
		sum.Records++
		fn(s.Record())
	}
	sum.End = s.Line()
	sum.LinesRead = s.LinesRead()
	sum.Dropped = s.Dropped()
	metrics.RecordsParsed.WithLabelValues(LogType(path)).Add(float64(sum.Records))
	return sum, s.Err()
}
