package learning

import (
	"context"
	"encoding/gob"
)

// Regressor is a fitted or fittable regression model over dense feature rows.
type Regressor interface {
	// Fit trains the model on X (one row per sample) and targets y.
	Fit(ctx context.Context, X [][]float64, y []float64) error
	// Predict returns the estimate for a single feature row laid out in
	// training column order.
	Predict(x []float64) (float64, error)
	// Kind names the model family; it is persisted in the training metadata.
	Kind() string
}

func init() {
	gob.Register(&Forest{})
}
