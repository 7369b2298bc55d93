// Package predictor classifies the engine's feature vectors as they are
// appended to the CSV output.
package predictor

import (
	"context"
	"fmt"
	"time"

	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"

	"go.uber.org/zap"
)

// Options configures a Predictor.
type Options struct {
	Input       string
	Interval    time.Duration
	NormalLabel int
	QueueSize   int
}

// Predictor tails the CSV, classifies new rows and records the results.
type Predictor struct {
	opts       Options
	classifier model.Classifier
	tailer     *Tailer
	history    *History
	notify     chan Prediction
	now        func() time.Time
}

// New creates a predictor writing into history. Predictions are also pushed
// onto a bounded channel returned by Notifications.
func New(opts Options, classifier model.Classifier, history *History) (*Predictor, error) {
	if classifier == nil {
		return nil, fmt.Errorf("predictor requires a classifier")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &Predictor{
		opts:       opts,
		classifier: classifier,
		tailer:     NewTailer(opts.Input),
		history:    history,
		notify:     make(chan Prediction, opts.QueueSize),
		now:        time.Now,
	}, nil
}

// Notifications delivers every prediction made. When the consumer falls
// behind, predictions are dropped from the channel but kept in the history.
func (p *Predictor) Notifications() <-chan Prediction { return p.notify }

// Run ticks until ctx is cancelled.
func (p *Predictor) Run(ctx context.Context) {
	zap.S().Infof("Predictor tailing %s every %v", p.opts.Input, p.opts.Interval)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.Tick(ctx); err != nil {
			zap.S().Errorf("Prediction failed: %v", err)
		}
		select {
		case <-ctx.Done():
			zap.S().Info("Predictor stopped.")
			return
		case <-ticker.C:
		}
	}
}

// Tick classifies the rows appended since the previous tick and returns them.
func (p *Predictor) Tick(ctx context.Context) ([]Prediction, error) {
	rows, readErr := p.tailer.Read()
	if readErr != nil {
		zap.S().Warnf("Predictor input: %v", readErr)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := p.classifier.Columns()
	encoders := p.classifier.Encoders()
	matrix := make([][]float64, len(rows))
	for i, fv := range rows {
		encoded, err := Encode(columns, encoders, fv)
		if err != nil {
			return nil, err
		}
		matrix[i] = encoded
	}

	classes, err := p.classifier.Predict(ctx, matrix)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	probas, err := p.classifier.PredictProba(ctx, matrix)
	if err != nil {
		return nil, fmt.Errorf("predict proba: %w", err)
	}
	if len(classes) != len(rows) || len(probas) != len(rows) {
		return nil, fmt.Errorf("classifier returned %d labels and %d probabilities for %d rows",
			len(classes), len(probas), len(rows))
	}

	now := p.now()
	out := make([]Prediction, len(rows))
	for i, fv := range rows {
		pred := Prediction{
			Time:       now,
			Label:      LabelAttack,
			Class:      classes[i],
			Confidence: confidence(probas[i], classes[i]),
			Features:   fv,
		}
		if classes[i] == p.opts.NormalLabel {
			pred.Label = LabelNormal
		}
		out[i] = pred
		p.history.Add(pred)
		metrics.Predictions.WithLabelValues(pred.Label).Inc()

		select {
		case p.notify <- pred:
		default:
			zap.S().Warnf("Prediction queue full, dropping notification for %s/%s", fv.Service, fv.Flag)
		}
	}
	return out, nil
}

// Encode lays fv out in the classifier's column order. Categorical columns are
// replaced by the index of their value in the encoder's class list; values
// the encoder has never seen map to the first class.
func Encode(columns []string, encoders map[string][]string, fv model.FeatureVector) ([]float64, error) {
	values := fv.Map()
	out := make([]float64, len(columns))
	for i, col := range columns {
		v, ok := values[col]
		if !ok {
			return nil, fmt.Errorf("unknown feature column '%s'", col)
		}
		if classes, ok := encoders[col]; ok {
			out[i] = float64(classIndex(classes, fmt.Sprint(v)))
			continue
		}
		switch n := v.(type) {
		case float64:
			out[i] = n
		case int64:
			out[i] = float64(n)
		case int:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("column '%s' is categorical but has no encoder", col)
		}
	}
	return out, nil
}

func classIndex(classes []string, value string) int {
	for i, c := range classes {
		if c == value {
			return i
		}
	}
	return 0
}

func confidence(proba []float64, class int) float64 {
	if class < 0 || class >= len(proba) {
		return 0
	}
	return proba[class]
}
