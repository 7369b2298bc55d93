package model

import "context"

// Classifier is the opaque model consumed by the predictor. Rows are encoded
// in Columns() order; categorical columns are replaced by their index in the
// matching Encoders() class list.
type Classifier interface {
	Columns() []string
	Encoders() map[string][]string
	Predict(ctx context.Context, rows [][]float64) ([]int, error)
	PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error)
}
