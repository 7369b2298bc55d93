package model

import "context"

// Writer defines a generic interface for an output sink of feature vectors.
type Writer interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write persists or forwards one batch. A sink may partially succeed; the
	// error reports what failed and is never fatal to the pipeline.
	Write(ctx context.Context, batch *Batch) error

	// Close releases connections and flushes buffered data.
	Close() error
}
