// Package pipeline turns the correlated connections of a pass into feature
// vectors and fans them out to the sinks.
package pipeline

import (
	"context"
	"sync"
	"time"

	"Go2NetKDD/internal/features"
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"go.uber.org/zap"
)

// Pipeline owns the feature engine and the sinks.
type Pipeline struct {
	engine  *features.Engine
	writers []model.Writer
}

// New creates a pipeline writing to the given sinks.
func New(writers []model.Writer) *Pipeline {
	return &Pipeline{engine: features.NewEngine(), writers: writers}
}

// Writers returns the configured sinks.
func (p *Pipeline) Writers() []model.Writer {
	return p.writers
}

// Emit computes the feature vectors of conns and hands the batch to every
// sink concurrently. Sink errors are logged, never returned.
func (p *Pipeline) Emit(ctx context.Context, conns []*model.Connection) *model.Batch {
	batch := p.engine.Compute(conns)
	if batch.Len() == 0 {
		return batch
	}
	metrics.FeaturesEmitted.Add(float64(batch.Len()))
	zap.S().Infof("Computed %d feature vectors, writing to %d sinks.", batch.Len(), len(p.writers))

	var wg sync.WaitGroup
	wg.Add(len(p.writers))
	for _, w := range p.writers {
		go func(w model.Writer) {
			defer wg.Done()
			start := time.Now()
			if err := w.Write(ctx, batch); err != nil {
				zap.S().Errorf("Error writing %d vectors to sink '%s': %v", batch.Len(), w.Name(), err)
				return
			}
			zap.S().Debugf("Sink '%s' wrote %d vectors in %s", w.Name(), batch.Len(), time.Since(start))
		}(w)
	}
	wg.Wait()

	return batch
}

// Close closes every sink and returns the first error.
func (p *Pipeline) Close() error {
	var first error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			zap.S().Warnf("Failed to close sink '%s': %v", w.Name(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
